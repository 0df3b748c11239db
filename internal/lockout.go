package internal

import (
	"fmt"
	"time"
)

// maxLockout caps escalating lockouts
const maxLockout = 10 * time.Minute

// LockoutManager handles authentication failures and lockout periods.
// It has no timers: the session asks it on each event.
type LockoutManager struct {
	maxAttempts    int           // failures before a lockout, 0 disables
	baseDuration   time.Duration // first lockout duration
	failedAttempts int           // consecutive failures since the last lockout
	lockouts       int           // lockouts since the last success
	lockoutUntil   time.Time     // time until which submissions are refused
	now            func() time.Time
}

// NewLockoutManager creates a new lockout manager with the given configuration
func NewLockoutManager(config Configuration) *LockoutManager {
	return &LockoutManager{
		maxAttempts:  config.MaxAttempts,
		baseDuration: config.LockoutDuration,
		now:          time.Now,
	}
}

// HandleFailedAttempt records a failure.
// Returns: lockoutActive (bool), lockoutDuration (time.Duration), remainingAttempts (int)
func (lm *LockoutManager) HandleFailedAttempt() (bool, time.Duration, int) {
	if lm.maxAttempts <= 0 {
		return false, 0, 0
	}

	lm.failedAttempts++
	Info("Authentication failed (%d/%d attempts)", lm.failedAttempts, lm.maxAttempts)

	if lm.failedAttempts < lm.maxAttempts {
		return false, 0, lm.maxAttempts - lm.failedAttempts
	}

	// Each further lockout adds the base duration, capped
	lm.lockouts++
	duration := lm.baseDuration * time.Duration(lm.lockouts)
	if duration > maxLockout {
		duration = maxLockout
	}

	lm.lockoutUntil = lm.now().Add(duration)
	lm.failedAttempts = 0

	Info("Failed %d attempts, locking out for %v", lm.maxAttempts, duration)
	return true, duration, 0
}

// IsLockedOut checks if authentication is currently locked out
func (lm *LockoutManager) IsLockedOut() bool {
	return lm.now().Before(lm.lockoutUntil)
}

// GetRemainingTime returns how much time is left in the lockout
func (lm *LockoutManager) GetRemainingTime() time.Duration {
	remaining := lm.lockoutUntil.Sub(lm.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatRemainingTime returns the remaining lockout time as mm:ss, rounded up
func (lm *LockoutManager) FormatRemainingTime() string {
	remaining := lm.GetRemainingTime()
	total := int((remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ResetLockout resets the lockout state after successful authentication
func (lm *LockoutManager) ResetLockout() {
	lm.failedAttempts = 0
	lm.lockouts = 0
	lm.lockoutUntil = time.Time{}
}
