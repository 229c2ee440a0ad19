// Package retry retries Discord and storage calls that fail for transient
// reasons (rate limits, 5xx responses, dropped connections).
//
// Usage:
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 4}, func(ctx context.Context) error {
//	    _, err := session.ChannelMessageSend(channelID, text)
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls how many times Do calls fn and how long it waits between
// calls.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	// Values below 1 mean a single call.
	Attempts int
	// BaseDelay is the wait after the first failure. It doubles after
	// every subsequent failure.
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// When nil every error is retried unless it is wrapped with Permanent.
	Retryable func(err error) bool
}

// DefaultPolicy suits a single REST call to Discord.
var DefaultPolicy = Policy{
	Attempts:  3,
	BaseDelay: 250 * time.Millisecond,
	MaxDelay:  5 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so that Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx is done. The last error from fn is returned;
// if ctx ended the loop, ctx.Err() is joined to it.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}

	wait := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= p.Attempts {
			return err
		}

		slog.Debug("retry: call failed, backing off",
			"attempt", attempt, "attempts", p.Attempts, "wait", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}

		wait *= 2
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
	}
}
