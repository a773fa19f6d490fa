package usecase

import (
	"time"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutAction tells the caller how to update the stored lock state.
type LockoutAction int

const (
	LockoutIncrementOnly LockoutAction = iota
	LockoutLock
	LockoutReset
)

func (a LockoutAction) String() string {
	switch a {
	case LockoutLock:
		return "lock"
	case LockoutReset:
		return "reset"
	default:
		return "increment_only"
	}
}

// LockoutDecision is the state an account should move to after an attempt.
type LockoutDecision struct {
	Action         LockoutAction
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutPolicy decides lock transitions from an account snapshot. It holds no state.
type LockoutPolicy struct {
	threshold int
	duration  time.Duration
}

// NewLockoutPolicy builds a policy; non-positive values fall back to 5 attempts / 30 minutes.
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{threshold: threshold, duration: duration}
}

// Threshold returns the number of consecutive failures that triggers a lock.
func (p LockoutPolicy) Threshold() int { return p.threshold }

// Duration returns how long a lock lasts.
func (p LockoutPolicy) Duration() time.Duration { return p.duration }

// IsLockedOut reports whether the account is locked at now.
func (p LockoutPolicy) IsLockedOut(account domain.Account, now time.Time) bool {
	return account.IsLocked(now)
}

// OnFailure counts one more failed attempt. A lapsed lock restarts the count from zero.
func (p LockoutPolicy) OnFailure(account domain.Account, now time.Time) LockoutDecision {
	count := account.FailedAttempts
	if account.LockLapsed(now) || count < 0 {
		count = 0
	}
	count++

	if count >= p.threshold {
		until := now.Add(p.duration)
		return LockoutDecision{Action: LockoutLock, FailedAttempts: count, LockedUntil: &until}
	}
	return LockoutDecision{Action: LockoutIncrementOnly, FailedAttempts: count}
}

// OnSuccess clears the counter and any lock.
func (p LockoutPolicy) OnSuccess() LockoutDecision {
	return LockoutDecision{Action: LockoutReset}
}
