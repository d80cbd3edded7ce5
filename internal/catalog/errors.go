package catalog

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Credential errors; never retried.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOTPRejected        = errors.New("one-time passcode rejected")
	ErrRefreshRejected    = errors.New("refresh token rejected")
	ErrSessionExpired     = errors.New("remote session expired")

	// Transient errors; safe to retry at page or candidate granularity.
	ErrRateLimited = errors.New("rate limited by remote")
	ErrNetwork     = errors.New("network error")

	ErrInvalidMarketplace = errors.New("invalid marketplace")
	ErrMalformedEntry     = errors.New("malformed catalog entry")
	ErrAuthNotConfigured  = errors.New("remote login endpoint not configured")
)

// RateLimitError carries the remote's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by remote, retry after %s", e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryDelay reports the remote's Retry-After hint; zero means none.
func (e *RateLimitError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}

// IsCredentialError reports whether err means the credentials or session
// are no longer acceptable to the remote.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrOTPRejected) ||
		errors.Is(err, ErrRefreshRejected) ||
		errors.Is(err, ErrSessionExpired)
}
