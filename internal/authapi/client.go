// Package authapi is the client of the REST auth API (/auth/*).
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/and161185/drivepass/internal/convert"
	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/wire"
)

// Config holds auth API client settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Breaker trips after MinRequests calls when the failure ratio reaches FailureRatio,
	// and stays open for OpenTimeout.
	BreakerName  string
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 5 * time.Second,
		BreakerName:  "auth-api",
		MinRequests:  5,
		FailureRatio: 0.5,
		OpenTimeout:  30 * time.Second,
	}
}

// Client calls the auth API with retries behind a circuit breaker.
type Client struct {
	base    *url.URL
	http    *http.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[*response]
	log     *zap.Logger
	metrics *Metrics
}

type response struct {
	status int
	body   []byte
}

// New constructs a Client. log and m may be nil.
func New(cfg Config, log *zap.Logger, m *Metrics) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid auth API url %q", errs.ErrValidation, cfg.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.setState(name, to)
		},
	})
	m.setState(cfg.BreakerName, gobreaker.StateClosed)
	return c, nil
}

// Login exchanges email/password for a token and user.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	env, err := c.call(ctx, "login", http.MethodPost, "/auth/login", wire.LoginRequest{Email: email, Password: password})
	if err != nil {
		var re *errs.RemoteError
		if errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusBadRequest) {
			re.Err = errs.ErrInvalidCredentials
		}
		return model.LoginResult{}, err
	}
	var data wire.LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.LoginResult{}, &errs.RemoteError{Status: http.StatusOK, Message: "malformed login response"}
	}
	res, err := convert.LoginFromWire(data)
	if err != nil {
		return model.LoginResult{}, &errs.RemoteError{Status: http.StatusOK, Message: err.Error()}
	}
	return res, nil
}

// SignUp registers an account. A verified email is required before Login succeeds.
func (c *Client) SignUp(ctx context.Context, req model.SignUpRequest) error {
	_, err := c.call(ctx, "signup", http.MethodPost, "/auth/signup", wire.SignUpRequest{
		FullName:    req.FullName,
		Email:       req.Email,
		Password:    req.Password,
		TermsAgreed: req.TermsAgreed,
	})
	return err
}

// VerifyEmail confirms an address with the token from the verification email.
func (c *Client) VerifyEmail(ctx context.Context, token string) (model.VerificationResult, error) {
	env, err := c.call(ctx, "verify_email", http.MethodPost, "/auth/verify-email", wire.VerifyEmailRequest{Token: token})
	if err != nil {
		return model.VerificationResult{}, err
	}
	res := model.VerificationResult{Verified: true, Message: env.Message}
	if len(env.Data) > 0 {
		var data wire.VerificationData
		if json.Unmarshal(env.Data, &data) == nil && (data.Verified != nil || data.EmailVerified != nil) {
			res.Verified = convert.VerifiedFromWire(data)
		}
	}
	return res, nil
}

// ResendVerification asks the API to send another verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) (model.VerificationResult, error) {
	env, err := c.call(ctx, "resend_verification", http.MethodPost, "/auth/resend-verification", wire.ResendRequest{Email: email})
	if err != nil {
		return model.VerificationResult{}, err
	}
	return model.VerificationResult{Sent: true, Message: env.Message}, nil
}

// CheckVerification reports whether email has been verified.
func (c *Client) CheckVerification(ctx context.Context, email string) (bool, error) {
	env, err := c.call(ctx, "check_verification", http.MethodGet, "/auth/check-verification/"+url.PathEscape(email), nil)
	if err != nil {
		return false, err
	}
	var data wire.VerificationData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return false, &errs.RemoteError{Status: http.StatusOK, Message: "malformed verification response"}
		}
	}
	return convert.VerifiedFromWire(data), nil
}

// call sends one logical request and decodes the envelope. Rejections come back
// as *errs.RemoteError, missing responses as errs.ErrNetwork.
func (c *Client) call(ctx context.Context, op, method, path string, in any) (wire.Envelope, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return wire.Envelope{}, fmt.Errorf("encode %s: %w", op, err)
		}
		payload = b
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		r, err := c.doWithRetry(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if r.status >= 500 {
			// count against the breaker but keep the body for the caller
			return r, fmt.Errorf("server error %d", r.status)
		}
		return r, nil
	})

	status := 0
	if resp != nil {
		status = resp.status
	}
	c.log.Info("auth api",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", redactPath(path)),
		zap.Int("status", status),
		zap.Duration("dur", time.Since(start)),
	)

	if resp == nil {
		c.metrics.observe(op, outcomeNetwork)
		c.log.Warn("auth api unreachable", zap.String("op", op), zap.Error(err))
		return wire.Envelope{}, fmt.Errorf("%s: %w: %w", op, errs.ErrNetwork, err)
	}

	env, derr := decode(resp)
	if derr != nil {
		c.metrics.observe(op, outcomeRemote)
		return wire.Envelope{}, derr
	}
	c.metrics.observe(op, outcomeOK)
	return env, nil
}

func decode(r *response) (wire.Envelope, error) {
	var env wire.Envelope
	jerr := json.Unmarshal(r.body, &env)
	ok := r.status >= 200 && r.status < 300
	if ok && jerr == nil && env.Success {
		return env, nil
	}
	msg := env.Message
	if msg == "" {
		msg = convert.DetailMessage(env.Detail)
	}
	if msg == "" && jerr != nil && ok {
		msg = "malformed response"
	}
	if msg == "" {
		msg = http.StatusText(r.status)
	}
	return wire.Envelope{}, &errs.RemoteError{Status: r.status, Message: msg}
}

// doWithRetry retries transport errors and 5xx (except 501) with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var (
		last *response
		err  error
	)
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryWaitMin * time.Duration(1<<uint(attempt-1))
			if wait > c.cfg.RetryWaitMax {
				wait = c.cfg.RetryWaitMax
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		last, err = c.doOnce(ctx, method, path, payload)
		if err != nil {
			if isRetryableError(err) && attempt < c.cfg.MaxRetries {
				continue
			}
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
		}
		if last.status >= 500 && last.status != http.StatusNotImplemented && attempt < c.cfg.MaxRetries {
			continue
		}
		return last, nil
	}
	return last, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, body: b}, nil
}

// isRetryableError reports whether err is a network error worth retrying.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// redactPath drops the email segment of check-verification paths.
func redactPath(p string) string {
	const prefix = "/auth/check-verification/"
	if strings.HasPrefix(p, prefix) {
		return prefix + "{email}"
	}
	return p
}
