package service

import (
	"context"
	"time"
)

// LockoutStore is the slice of the credential store the lockout policy
// needs. Every method must be a single atomic statement at the store.
type LockoutStore interface {
	RecordFailedAttempt(ctx context.Context, userID string, now time.Time, threshold int, lockUntil time.Time) (int, *time.Time, error)
	LockedUntil(ctx context.Context, userID string) (*time.Time, error)
	ClearExpiredLock(ctx context.Context, userID string, now time.Time) (bool, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
}

type LockoutPolicy struct {
	store     LockoutStore
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func NewLockoutPolicy(store LockoutStore, threshold int, duration time.Duration) *LockoutPolicy {
	return &LockoutPolicy{
		store:     store,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// RecordFailedAttempt bumps the counter and reports whether this attempt
// locked the account.
func (p *LockoutPolicy) RecordFailedAttempt(ctx context.Context, userID string) (bool, error) {
	now := p.now().UTC()
	_, lockedUntil, err := p.store.RecordFailedAttempt(ctx, userID, now, p.threshold, now.Add(p.duration))
	if err != nil {
		return false, err
	}
	return lockedUntil != nil && lockedUntil.After(now), nil
}

// IsLocked clears a lapsed lock on the way out.
func (p *LockoutPolicy) IsLocked(ctx context.Context, userID string) (bool, error) {
	lockedUntil, err := p.store.LockedUntil(ctx, userID)
	if err != nil {
		return false, err
	}
	if lockedUntil == nil {
		return false, nil
	}

	now := p.now().UTC()
	if lockedUntil.After(now) {
		return true, nil
	}

	if _, err := p.store.ClearExpiredLock(ctx, userID, now); err != nil {
		return false, err
	}
	return false, nil
}

func (p *LockoutPolicy) ResetFailedAttempts(ctx context.Context, userID string) error {
	return p.store.ResetFailedAttempts(ctx, userID)
}
