package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession           = errors.New("no active session, interactive login required")
	ErrCredentialsRequired = errors.New("username and password required")
	ErrChallengeNotFound   = errors.New("otp challenge not found")
	ErrChallengeExpired    = errors.New("otp challenge expired")
	ErrTooManyAttempts     = errors.New("too many otp attempts")
)

// CredentialError is an authentication failure the caller must resolve
// (bad password, rejected or exhausted OTP). It is never retried.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return "credential error: " + e.Reason
	}
	return fmt.Sprintf("credential error: %s: %v", e.Reason, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
