package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the period between verification checks.
const DefaultPollInterval = 5 * time.Second

// pollHandle is one polling session. Cancel is idempotent.
type pollHandle struct {
	email  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the polling session.
func (h *pollHandle) Cancel() { h.cancel() }

// poller owns the single verification polling slot.
type poller struct {
	interval   time.Duration
	check      func(ctx context.Context, email string) (bool, error)
	onVerified func(email string)
	log        *zap.Logger

	mu   sync.Mutex
	cur  *pollHandle
	last *pollHandle
}

// start begins polling for email, replacing any running session.
func (p *poller) start(parent context.Context, email string) *pollHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &pollHandle{email: email, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	if p.cur != nil {
		p.cur.Cancel()
	}
	p.cur = h
	p.last = h
	p.mu.Unlock()

	p.log.Debug("verification polling started", zap.String("email", email))
	go p.run(ctx, h)
	return h
}

func (p *poller) run(ctx context.Context, h *pollHandle) {
	defer close(h.done)
	defer p.clear(h)

	t := time.NewTimer(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		ok, err := p.check(ctx, h.email)
		if err != nil && ctx.Err() == nil {
			p.log.Debug("verification check failed", zap.String("email", h.email), zap.Error(err))
		}
		if ok && p.release(ctx, h) {
			p.onVerified(h.email)
			return
		}
		t.Reset(p.interval)
	}
}

// release frees the slot if h still owns it and has not been cancelled.
func (p *poller) release(ctx context.Context, h *pollHandle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != h || ctx.Err() != nil {
		return false
	}
	p.cur = nil
	return true
}

// clear cancels h and frees the slot if h still holds it.
func (p *poller) clear(h *pollHandle) {
	h.cancel()
	p.mu.Lock()
	if p.cur == h {
		p.cur = nil
	}
	p.mu.Unlock()
}

// stop cancels the running session, if any.
func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		p.cur.Cancel()
		p.cur = nil
	}
}

// active returns the email being polled.
func (p *poller) active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return "", false
	}
	return p.cur.email, true
}

// latest returns the most recently started handle, running or not.
func (p *poller) latest() *pollHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
