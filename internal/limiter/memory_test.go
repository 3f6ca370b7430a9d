package limiter

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllow_NoHit_Allows(t *testing.T) {
	l := NewCooldown(time.Minute)

	ok, dur, err := l.Allow(context.Background(), "a@x.com")
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow fresh: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestHit_BlocksUntilPeriodElapses(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewCooldownWithClock(60*time.Second, clk.Now)
	ctx := context.Background()

	if err := l.Hit(ctx, "a@x.com"); err != nil {
		t.Fatalf("Hit: %v", err)
	}

	clk.Advance(15 * time.Second)
	ok, dur, err := l.Allow(ctx, "A@X.com ")
	if err != nil || ok || dur != 45*time.Second {
		t.Fatalf("Allow during cooldown: ok=%v dur=%v err=%v", ok, dur, err)
	}

	clk.Advance(45 * time.Second)
	ok, dur, err = l.Allow(ctx, "a@x.com")
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow after cooldown: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestCooldown_KeysIndependent(t *testing.T) {
	l := NewCooldown(time.Hour)
	ctx := context.Background()
	_ = l.Hit(ctx, "a@x.com")

	if ok, _, _ := l.Allow(ctx, "b@y.com"); !ok {
		t.Fatalf("other key must not be blocked")
	}
}

func TestReset_Unblocks(t *testing.T) {
	l := NewCooldown(time.Hour)
	ctx := context.Background()
	_ = l.Hit(ctx, "a@x.com")
	_ = l.Reset(ctx, "a@x.com")

	if ok, _, _ := l.Allow(ctx, "a@x.com"); !ok {
		t.Fatalf("Reset must unblock")
	}
}
