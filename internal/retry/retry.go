// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultFactor       = 2
)

// Policy bounds a retry loop. Zero fields take the defaults above.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       int
}

// DefaultPolicy is 3 attempts starting at 1s, doubling, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
		Factor:       defaultFactor,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Factor <= 0 {
		p.Factor = defaultFactor
	}
	return p
}

// Delay returns the wait before the given attempt (attempt 1 is the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(p.Factor)
		if delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Hinted is implemented by errors that know how long the remote wants the
// caller to back off, such as a rate limit with a Retry-After header.
type Hinted interface {
	RetryDelay() time.Duration
}

// hintedDelay returns the wait requested by err, or zero.
func hintedDelay(err error) time.Duration {
	var h Hinted
	if errors.As(err, &h) {
		return h.RetryDelay()
	}
	return 0
}

// Do calls op until it succeeds, returns an error retryable rejects, or the
// attempts run out. Waiting between attempts honours ctx.
//
// An error carrying a Hinted delay replaces the backoff for the next wait.
// A hint longer than MaxDelay ends the loop with that error.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := p.Delay(attempt)
			if hint := hintedDelay(lastErr); hint > 0 {
				if hint > p.MaxDelay {
					return fmt.Errorf("retry hint %s exceeds %s: %w", hint, p.MaxDelay, lastErr)
				}
				wait = hint
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
