package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/drivepass/internal/convert"
	"github.com/and161185/drivepass/internal/crypto/clientcrypto"
	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/limiter"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/password"
	"github.com/and161185/drivepass/internal/repository"
)

// Options tune a Manager. Zero values pick defaults.
type Options struct {
	Logger *zap.Logger
	// OnNotice receives user-visible interrupts. It runs after the operation that
	// raised the notice has released the manager, so it may call back into it.
	OnNotice func(Notice)
	// Sealer protects the pending-verification password at rest. Without one the
	// password is not stored and verification ends without automatic sign-in.
	Sealer *clientcrypto.Sealer
	// Limiter gates resend-verification; nil disables the cooldown.
	Limiter      limiter.Limiter
	PollInterval time.Duration
	Now          func() time.Time
}

// Manager owns the client's session. All writes to the credential store go
// through it, one operation at a time.
type Manager struct {
	oracle   IdentityOracle
	store    repository.CredentialStore
	log      *zap.Logger
	notify   func(Notice)
	sealer   *clientcrypto.Sealer
	lim      limiter.Limiter
	now      func() time.Time
	validate *validator.Validate

	// ops serializes sign-in, sign-up, validation and store writes.
	ops chan struct{}

	mu       sync.RWMutex
	snap     model.Session
	subs     map[int]func(model.Session)
	nextSub  int
	outbox   []func()
	draining bool

	poll   *poller
	base   context.Context
	cancel context.CancelFunc
}

// NewManager constructs a Manager in the Uninitialized state.
func NewManager(oracle IdentityOracle, store repository.CredentialStore, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	notify := opts.OnNotice
	if notify == nil {
		notify = func(Notice) {}
	}

	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		oracle:   oracle,
		store:    store,
		log:      log,
		notify:   notify,
		sealer:   opts.Sealer,
		lim:      opts.Limiter,
		now:      now,
		validate: validator.New(),
		ops:      make(chan struct{}, 1),
		snap:     model.Session{State: model.StateUninitialized, Loading: model.LoadingInitializing},
		subs:     map[int]func(model.Session){},
		base:     base,
		cancel:   cancel,
	}
	m.poll = &poller{
		interval:   interval,
		check:      oracle.CheckVerification,
		onVerified: m.completeVerification,
		log:        log,
	}
	return m
}

// Close stops verification polling.
func (m *Manager) Close() {
	m.poll.stop()
	m.cancel()
}

// --- snapshot ---

// Current returns a copy of the published session.
func (m *Manager) Current() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// Subscribe registers fn for every published snapshot. The returned func unsubscribes.
// Snapshots are delivered in order, outside any manager operation.
func (m *Manager) Subscribe(fn func(model.Session)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) publish(s model.Session) {
	m.mu.Lock()
	prev := m.snap.State
	m.snap = s.Clone()
	for _, fn := range m.subs {
		fn, snap := fn, s.Clone()
		m.outbox = append(m.outbox, func() { fn(snap) })
	}
	m.mu.Unlock()

	if prev != s.State {
		m.log.Info("session state", zap.Stringer("from", prev), zap.Stringer("to", s.State))
	}
}

// emit queues n for OnNotice.
func (m *Manager) emit(n Notice) {
	m.mu.Lock()
	m.outbox = append(m.outbox, func() { m.notify(n) })
	m.mu.Unlock()
}

// drain runs queued callbacks in order. Only one goroutine drains at a time;
// callbacks queued by a re-entrant call are picked up by the running drain.
// It must not be called while holding ops.
func (m *Manager) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.outbox) > 0 {
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Manager) publishAuthenticated(token string, u model.UserRecord) {
	m.publish(model.Session{Token: token, User: &u, Loading: model.LoadingReady, State: model.StateAuthenticated})
}

func (m *Manager) publishUnauthenticated() {
	m.publish(model.Session{Loading: model.LoadingReady, State: model.StateUnauthenticated})
}

// --- serialization ---

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.ops <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.ops
	m.drain()
}

// --- startup ---

// Start validates the cached session against the oracle. Validation failures
// clear the store and raise NoticeSessionExpired; they are not returned.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	// a settled session stays ready while it is re-validated
	cur := m.Current()
	m.publish(model.Session{Token: cur.Token, User: cur.User, Loading: cur.Loading, State: model.StateValidating})

	token, user, ok := m.loadCached(ctx)
	if !ok {
		m.publishUnauthenticated()
		return nil
	}

	if tokenExpired(token, m.now()) {
		m.log.Info("cached token expired", zap.String("user_id", user.ID.String()))
		m.expireLocked(ctx)
		return nil
	}

	fresh, err := m.validateCached(ctx, user)
	if err != nil {
		if ctx.Err() != nil {
			m.publishUnauthenticated()
			return ctx.Err()
		}
		m.log.Info("cached session rejected", zap.String("user_id", user.ID.String()), zap.Error(err))
		m.expireLocked(ctx)
		return nil
	}

	m.persistUser(ctx, fresh)
	m.publishAuthenticated(token, fresh)
	return nil
}

// loadCached reads token and user. Read errors count as absent; a partial pair is cleared.
func (m *Manager) loadCached(ctx context.Context) (string, model.UserRecord, bool) {
	tok := m.read(ctx, repository.KeyToken)
	raw := m.read(ctx, repository.KeyUser)

	var u model.UserRecord
	valid := raw != nil && json.Unmarshal(raw, &u) == nil && u.ID != uuid.Nil
	if len(tok) > 0 && valid {
		return string(tok), u, true
	}
	if tok != nil || raw != nil {
		m.log.Info("discarding partial cached session")
		if err := m.store.ClearAll(ctx); err != nil {
			m.log.Warn("clear partial session", zap.Error(err))
		}
	}
	return "", model.UserRecord{}, false
}

func (m *Manager) read(ctx context.Context, key string) []byte {
	v, err := m.store.Get(ctx, key)
	if err != nil {
		m.log.Warn("credential store read", zap.String("key", key), zap.Error(err))
		return nil
	}
	return v
}

// validateCached runs the record lookup and the verification check together.
// Both must succeed and the record must be active.
func (m *Manager) validateCached(ctx context.Context, u model.UserRecord) (model.UserRecord, error) {
	var (
		row      *model.IdentityRow
		verified bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		row, err = m.confirmIdentity(gctx, u.ID)
		return err
	})
	g.Go(func() error {
		var err error
		verified, err = m.oracle.CheckVerification(gctx, u.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.UserRecord{}, err
	}
	fresh := convert.MergeIdentity(u, *row)
	fresh.EmailVerified = fresh.EmailVerified || verified
	return fresh, nil
}

// confirmIdentity is the database-of-record half of the session check. A missing
// or inactive row yields errs.ErrAccountUnavailable; lookup failures pass through.
func (m *Manager) confirmIdentity(ctx context.Context, id uuid.UUID) (*model.IdentityRow, error) {
	row, err := m.oracle.LookupUserRecord(ctx, id)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("%w: no record", errs.ErrAccountUnavailable)
	case err != nil:
		return nil, err
	case row == nil || row.Status != model.StatusActive:
		return nil, fmt.Errorf("%w: account not active", errs.ErrAccountUnavailable)
	}
	return row, nil
}

// --- sign-in / sign-out ---

// SignIn authenticates against the token issuer and confirms the account in the
// database-of-record before anything is persisted.
func (m *Manager) SignIn(ctx context.Context, email, pw string) error {
	email = strings.TrimSpace(email)
	if email == "" || pw == "" {
		return fmt.Errorf("%w: email and password are required", errs.ErrValidation)
	}
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return m.signInLocked(ctx, email, pw)
}

func (m *Manager) signInLocked(ctx context.Context, email, pw string) error {
	res, err := m.oracle.Login(ctx, email, pw)
	if err != nil {
		m.log.Info("login rejected", zap.String("email", email), zap.Error(err))
		return err
	}

	row, err := m.confirmIdentity(ctx, res.User.ID)
	if err != nil {
		if errors.Is(err, errs.ErrAccountUnavailable) {
			m.log.Warn("login for unavailable account", zap.String("user_id", res.User.ID.String()))
			if cerr := m.store.ClearAll(ctx); cerr != nil {
				m.log.Warn("credential store clear", zap.Error(cerr))
			}
			m.publishUnauthenticated()
		}
		return err
	}

	u := convert.MergeIdentity(res.User, *row)
	m.persistSession(ctx, res.Token, u)
	m.publishAuthenticated(res.Token, u)
	return nil
}

// SignOut clears the session. The in-memory session is cleared even when the
// store cannot be, so it never fails.
func (m *Manager) SignOut(ctx context.Context) {
	m.ops <- struct{}{}
	defer m.release()
	m.signOutLocked(context.WithoutCancel(ctx))
}

// ForceLogout signs out and raises NoticeSessionExpired.
func (m *Manager) ForceLogout(ctx context.Context) {
	m.ops <- struct{}{}
	defer m.release()
	m.expireLocked(context.WithoutCancel(ctx))
}

func (m *Manager) signOutLocked(ctx context.Context) {
	m.poll.stop()
	m.publishUnauthenticated()
	if err := m.store.ClearAll(ctx); err != nil {
		m.log.Warn("credential store clear", zap.Error(err))
	}
}

func (m *Manager) expireLocked(ctx context.Context) {
	m.signOutLocked(ctx)
	m.emit(NoticeSessionExpired)
}

// persistSession writes token and user as one pair. On failure the stored pair
// is cleared so an older session cannot come back on restart; the new session
// stays valid in memory.
func (m *Manager) persistSession(ctx context.Context, token string, u model.UserRecord) {
	b, err := json.Marshal(u)
	if err == nil {
		err = m.store.SetSession(ctx, []byte(token), b)
	}
	if err == nil {
		return
	}
	m.log.Warn("credential store write", zap.String("key", repository.KeyToken+","+repository.KeyUser), zap.Error(err))
	for _, k := range []string{repository.KeyToken, repository.KeyUser} {
		if rerr := m.store.Remove(ctx, k); rerr != nil {
			m.log.Warn("credential store remove", zap.String("key", k), zap.Error(rerr))
		}
	}
}

func (m *Manager) persistUser(ctx context.Context, u model.UserRecord) {
	b, err := json.Marshal(u)
	if err == nil {
		err = m.store.Set(ctx, repository.KeyUser, b)
	}
	if err != nil {
		m.log.Warn("credential store write", zap.String("key", repository.KeyUser), zap.Error(err))
	}
}

// --- sign-up / verification ---

// SignUp validates input, registers the account and starts verification polling.
// The session state does not change.
func (m *Manager) SignUp(ctx context.Context, req model.SignUpRequest) error {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if err := m.validateSignUp(req); err != nil {
		return err
	}
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if err := m.oracle.SignUp(ctx, req); err != nil {
		m.log.Info("sign-up rejected", zap.String("email", req.Email), zap.Error(err))
		return err
	}
	m.storePending(ctx, model.PendingVerification{Email: req.Email, Password: req.Password})
	m.poll.start(m.base, req.Email)
	return nil
}

func (m *Manager) validateSignUp(req model.SignUpRequest) error {
	if err := m.validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s", errs.ErrValidation, signUpFieldMessage(ve[0]))
		}
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if rep := password.Evaluate(req.Password); !rep.Valid {
		return fmt.Errorf("%w: password requirements not met: %s", errs.ErrValidation, strings.Join(rep.Failed(), "; "))
	}
	return nil
}

func signUpFieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "FullName":
		return "full name is required"
	case "Email":
		return "a valid email is required"
	case "Password":
		return "password is required"
	case "TermsAgreed":
		return "terms must be agreed"
	default:
		return fe.Error()
	}
}

// storePending writes the single pending-verification slot.
func (m *Manager) storePending(ctx context.Context, p model.PendingVerification) {
	if err := m.store.Set(ctx, repository.KeyPendingEmail, []byte(p.Email)); err != nil {
		m.log.Warn("credential store write", zap.String("key", repository.KeyPendingEmail), zap.Error(err))
		return
	}
	if m.sealer == nil {
		if err := m.store.Remove(ctx, repository.KeyPendingPassword); err != nil {
			m.log.Warn("credential store remove", zap.String("key", repository.KeyPendingPassword), zap.Error(err))
		}
		return
	}
	sealed, err := m.sealer.Seal([]byte(p.Password), []byte(strings.ToLower(p.Email)))
	if err == nil {
		err = m.store.Set(ctx, repository.KeyPendingPassword, sealed)
	}
	if err != nil {
		m.log.Warn("credential store write", zap.String("key", repository.KeyPendingPassword), zap.Error(err))
	}
}

// loadPending reads the pending slot; nil when empty. An unreadable password is dropped.
func (m *Manager) loadPending(ctx context.Context) *model.PendingVerification {
	email := m.read(ctx, repository.KeyPendingEmail)
	if len(email) == 0 {
		return nil
	}
	p := &model.PendingVerification{Email: string(email)}
	sealed := m.read(ctx, repository.KeyPendingPassword)
	if sealed == nil || m.sealer == nil {
		return p
	}
	pt, err := m.sealer.Open(sealed, []byte(strings.ToLower(p.Email)))
	if err != nil {
		m.log.Warn("pending password unreadable", zap.Error(err))
		return p
	}
	p.Password = string(pt)
	return p
}

func (m *Manager) removePending(ctx context.Context) error {
	for _, k := range []string{repository.KeyPendingPassword, repository.KeyPendingEmail} {
		if err := m.store.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// completeVerification runs once per polling session, after the address is verified.
func (m *Manager) completeVerification(email string) {
	ctx := m.base
	m.log.Info("email verified", zap.String("email", email))
	m.emit(NoticeEmailVerified)
	m.drain()

	if err := m.acquire(ctx); err != nil {
		return
	}
	defer m.release()

	p := m.loadPending(ctx)
	if p == nil || !strings.EqualFold(p.Email, email) {
		return
	}
	defer func() {
		if err := m.removePending(ctx); err != nil {
			m.log.Warn("remove pending verification", zap.Error(err))
		}
	}()
	if p.Password == "" {
		m.emit(NoticeAutoLoginFailed)
		return
	}
	if err := m.signInLocked(ctx, p.Email, p.Password); err != nil {
		m.log.Info("automatic sign-in failed", zap.String("email", email), zap.Error(err))
		m.emit(NoticeAutoLoginFailed)
	}
}

// ResumeVerification restarts polling for a pending entry left by an earlier run.
func (m *Manager) ResumeVerification(ctx context.Context) (string, error) {
	p := m.loadPending(ctx)
	if p == nil {
		return "", errs.ErrNotFound
	}
	m.poll.start(m.base, p.Email)
	return p.Email, nil
}

// CancelVerification stops polling and deletes the pending entry.
func (m *Manager) CancelVerification(ctx context.Context) error {
	m.poll.stop()
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return m.removePending(ctx)
}

// Polling reports the email being polled for verification.
func (m *Manager) Polling() (string, bool) { return m.poll.active() }

// AwaitVerification blocks until the latest polling session ends, including any
// automatic sign-in it triggers. It returns at once when polling never started.
func (m *Manager) AwaitVerification(ctx context.Context) error {
	h := m.poll.latest()
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VerifyEmail confirms an address with a token from the verification email.
func (m *Manager) VerifyEmail(ctx context.Context, token string) (model.VerificationResult, error) {
	if strings.TrimSpace(token) == "" {
		return model.VerificationResult{}, fmt.Errorf("%w: verification token is required", errs.ErrValidation)
	}
	return m.oracle.VerifyEmail(ctx, token)
}

// ResendVerification asks for another verification email, subject to the cooldown.
// The stored pending entry for email is deleted; polling, if running, continues.
func (m *Manager) ResendVerification(ctx context.Context, email string) (model.VerificationResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.VerificationResult{}, fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	if m.lim != nil {
		ok, wait, err := m.lim.Allow(ctx, email)
		if err != nil {
			return model.VerificationResult{}, err
		}
		if !ok {
			return model.VerificationResult{}, fmt.Errorf("%w: try again in %s", errs.ErrRateLimited, wait.Round(time.Second))
		}
	}

	if err := m.acquire(ctx); err != nil {
		return model.VerificationResult{}, err
	}
	defer m.release()

	res, err := m.oracle.ResendVerification(ctx, email)
	if err != nil {
		return model.VerificationResult{}, err
	}
	if m.lim != nil {
		if err := m.lim.Hit(ctx, email); err != nil {
			m.log.Warn("resend cooldown", zap.String("email", email), zap.Error(err))
		}
	}
	if p := m.loadPending(ctx); p != nil && strings.EqualFold(p.Email, email) {
		if err := m.removePending(ctx); err != nil {
			m.log.Warn("remove pending verification", zap.Error(err))
		}
	}
	return res, nil
}

// RetryAfter returns how long until ResendVerification is allowed for email.
func (m *Manager) RetryAfter(ctx context.Context, email string) time.Duration {
	if m.lim == nil {
		return 0
	}
	ok, wait, err := m.lim.Allow(ctx, strings.TrimSpace(email))
	if err != nil || ok {
		return 0
	}
	return wait
}

// CheckVerification reports whether email is verified. A verified address of the
// signed-in user is merged into the session.
func (m *Manager) CheckVerification(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	verified, err := m.oracle.CheckVerification(ctx, email)
	if err != nil || !verified {
		return verified, err
	}

	if err := m.acquire(ctx); err != nil {
		return verified, err
	}
	defer m.release()

	cur := m.Current()
	if cur.Authenticated() && strings.EqualFold(cur.User.Email, email) && !cur.User.EmailVerified {
		u := *cur.User
		u.EmailVerified = true
		m.persistUser(ctx, u)
		m.publishAuthenticated(cur.Token, u)
	}
	return verified, nil
}

// --- profile ---

// UpdateProfile writes profile fields to the database-of-record and re-confirms
// the account before the cached user changes.
func (m *Manager) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) error {
	if err := m.validateProfile(upd); err != nil {
		return err
	}
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	cur := m.Current()
	if !cur.Authenticated() {
		return errs.ErrUnauthorized
	}
	id := cur.User.ID

	err := m.oracle.UpdateProfile(ctx, id, upd)
	if errors.Is(err, errs.ErrNotFound) {
		m.expireLocked(ctx)
		return fmt.Errorf("%w: no record", errs.ErrAccountUnavailable)
	}
	if err != nil {
		return err
	}

	row, err := m.confirmIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrAccountUnavailable) {
			m.expireLocked(ctx)
		}
		return err
	}

	u := convert.ApplyProfile(convert.MergeIdentity(*cur.User, *row), upd)
	m.persistUser(ctx, u)
	m.publishAuthenticated(cur.Token, u)
	return nil
}

func (m *Manager) validateProfile(upd model.ProfileUpdate) error {
	if upd.Empty() {
		return fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if upd.FullName != nil && strings.TrimSpace(*upd.FullName) == "" {
		return fmt.Errorf("%w: full name cannot be empty", errs.ErrValidation)
	}
	if upd.PhotoURL != nil && *upd.PhotoURL != "" {
		if err := m.validate.Var(*upd.PhotoURL, "url"); err != nil {
			return fmt.Errorf("%w: photo must be a URL", errs.ErrValidation)
		}
	}
	return nil
}
