package llm

import (
	"sync"
	"time"
)

const (
	// DefaultUserLimit is the number of replies a single user may request
	// per window when no limit is configured.
	DefaultUserLimit = 10

	defaultUserWindow = time.Minute
)

// RateLimiter enforces a per-user sliding window so one user cannot burn
// the whole generation budget.
//
// Timestamps older than the window are pruned on every Allow call, so memory
// stays bounded to O(limit) entries per active user. Safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  map[string][]time.Time // user ID → call times inside the window
	now    func() time.Time
}

// NewRateLimiter allows limit calls per user per window. Non-positive values
// fall back to DefaultUserLimit and one minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultUserLimit
	}
	if window <= 0 {
		window = defaultUserWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a call for userID and reports whether it fits the quota.
// Rejected calls are not recorded.
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.prune(userID, now)
	if len(valid) >= r.limit {
		return false
	}
	r.calls[userID] = append(valid, now)
	return true
}

// Remaining returns how many calls userID can still make in the current
// window.
func (r *RateLimiter) Remaining(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rem := r.limit - len(r.prune(userID, r.now()))
	if rem < 0 {
		return 0
	}
	return rem
}

// prune drops timestamps outside the window. Must be called with mu held.
func (r *RateLimiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.calls[userID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.calls, userID)
		return nil
	}
	r.calls[userID] = valid
	return valid
}
