package limiter

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cooldown is an in-process Limiter with a fixed wait after each hit.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	until  map[string]time.Time
	now    func() time.Time
}

var _ Limiter = (*Cooldown)(nil)

// NewCooldown constructs a Cooldown with the given period.
func NewCooldown(period time.Duration) *Cooldown {
	return NewCooldownWithClock(period, time.Now)
}

// NewCooldownWithClock constructs a Cooldown reading time from now.
func NewCooldownWithClock(period time.Duration, now func() time.Time) *Cooldown {
	return &Cooldown{period: period, until: map[string]time.Time{}, now: now}
}

// Keys are case-insensitive email addresses.
func normalize(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

// Allow reports whether key is outside its cooldown window.
func (c *Cooldown) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.until[normalize(key)]
	if !ok {
		return true, 0, nil
	}
	if left := until.Sub(c.now()); left > 0 {
		return false, left, nil
	}
	delete(c.until, normalize(key))
	return true, 0, nil
}

// Hit starts the cooldown window for key.
func (c *Cooldown) Hit(_ context.Context, key string) error {
	c.mu.Lock()
	c.until[normalize(key)] = c.now().Add(c.period)
	c.mu.Unlock()
	return nil
}

// Reset drops any window for key.
func (c *Cooldown) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.until, normalize(key))
	c.mu.Unlock()
	return nil
}
