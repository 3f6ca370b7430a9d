// Package limiter defines interfaces and implementations for resend cooldowns.
package limiter

import (
	"context"
	"time"
)

// Limiter controls how often an action may be repeated for a key.
type Limiter interface {
	// Allow reports whether the action is currently allowed and the remaining wait otherwise.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	// Hit records a performed action and starts the cooldown for key.
	Hit(ctx context.Context, key string) error
	// Reset clears the cooldown for key.
	Reset(ctx context.Context, key string) error
}
