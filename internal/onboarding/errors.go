// AngelaMos | 2026
// errors.go

package onboarding

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExpired marks a session whose TTL has passed; it is terminal.
	ErrExpired = errors.New("session expired")

	// ErrInvalidTransition is returned for any event that is not legal
	// from the session's current stage. The stage is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrVersionConflict signals a concurrent write detected by the
	// store's compare-and-swap. The facade retries; callers that still
	// see it should simply retry the request.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTokenCollision means a freshly generated session token already
	// exists. With 256-bit tokens this indicates a broken entropy source
	// and is treated as fatal, never retried with the same token.
	ErrTokenCollision = errors.New("session token collision")

	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrChallengeVoided = errors.New("otp challenge voided")

	ErrOAuth = errors.New("oauth exchange failed")

	// ErrSessionCompleted guards exactly-once completion: the account
	// already exists, so callers treat this as success-equivalent.
	ErrSessionCompleted = errors.New("session already completed")

	ErrDescriptorTaken = errors.New("business descriptor already taken")

	ErrEmailMismatch = errors.New("oauth email does not match session email")
)

// RateLimitedError is returned when RequestOTP lands inside the resend
// cooldown window. RetryAfter tells the client how long to wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AdapterError wraps a collaborator failure. The session stage is never
// advanced past a failed adapter call, so retrying the same event is safe.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
