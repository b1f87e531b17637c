package polymarket

import (
	"errors"
	"fmt"
)

// TransientError covers network failures, rate limiting and server errors.
// The client retries these a bounded number of times before surfacing one;
// the orchestrator abandons the iteration and continues on the next interval.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the API rejected our credentials. Never retried; fatal for
// live trading.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed in %s (status %d)", e.Op, e.Status)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
