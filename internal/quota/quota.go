// Package quota implements the sliding-window appeal limit.
package quota

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultQuota  = 5
	DefaultWindow = time.Hour
)

// UsageLog is the part of the store the limiter reads and appends to
type UsageLog interface {
	AppendUsage(ctx context.Context, userID int64, ts time.Time) error
	CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error)
	RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error)
}

// PremiumChecker reports rate-limit exemption
type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
}

// Decision is the result of a limit check
type Decision struct {
	Allowed bool
	Premium bool
	// Used is the number of entries inside the window at check time
	Used int
	// Wait is positive only when Allowed is false, rounded up to whole seconds
	Wait time.Duration
}

// Limiter allows Quota appeals per user within any rolling Window
type Limiter struct {
	log     UsageLog
	premium PremiumChecker
	quota   int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter; non-positive quota or window fall back to defaults
func NewLimiter(log UsageLog, premium PremiumChecker, quota int, window time.Duration, opts ...Option) *Limiter {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		log:     log,
		premium: premium,
		quota:   quota,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Quota returns the number of appeals allowed per window
func (l *Limiter) Quota() int {
	return l.quota
}

// Window returns the sliding window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Check computes whether userID may relay now.
// It never polls; the wait is computed once from the usage log.
func (l *Limiter) Check(ctx context.Context, userID int64) (Decision, error) {
	premium, err := l.premium.IsPremium(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check premium status: %w", err)
	}
	if premium {
		return Decision{Allowed: true, Premium: true}, nil
	}

	now := l.now()
	used, err := l.log.CountUsageSince(ctx, userID, now.Add(-l.window))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count usage: %w", err)
	}
	if used < l.quota {
		return Decision{Allowed: true, Used: used}, nil
	}

	recent, err := l.log.RecentUsage(ctx, userID, l.quota)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read recent usage: %w", err)
	}
	if len(recent) < l.quota {
		return Decision{Allowed: true, Used: used}, nil
	}

	resetAt := recent[l.quota-1].Add(l.window)
	if !resetAt.After(now) {
		return Decision{Allowed: true, Used: used}, nil
	}

	return Decision{
		Allowed: false,
		Used:    used,
		Wait:    roundUp(resetAt.Sub(now)),
	}, nil
}

// RecordSuccess appends a usage entry for userID and returns the
// number of entries now inside the window.
// Callers skip it for premium users.
func (l *Limiter) RecordSuccess(ctx context.Context, userID int64) (int, error) {
	now := l.now()
	if err := l.log.AppendUsage(ctx, userID, now); err != nil {
		return 0, fmt.Errorf("failed to record usage: %w", err)
	}
	used, err := l.log.CountUsageSince(ctx, userID, now.Add(-l.window))
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return used, nil
}

func roundUp(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
