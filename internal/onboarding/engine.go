// AngelaMos | 2026
// engine.go

package onboarding

import (
	"fmt"
	"time"
)

// Decision is the engine's verdict on an event: where the session goes
// next, or that the event is a harmless duplicate of one already applied.
type Decision struct {
	Next Stage

	// Replay means the event was already applied and produced the stage
	// the session is currently in. The facade returns the current state
	// without invoking any adapter, so duplicate network retries never
	// double side effects.
	Replay bool
}

// Engine is the pure decision core of the state machine. It never touches
// storage or collaborators; it only inspects the session snapshot, the
// event, and the clock it is handed.
type Engine struct {
	otpMaxAttempts int
}

func NewEngine(otpMaxAttempts int) *Engine {
	if otpMaxAttempts < 1 {
		otpMaxAttempts = 1
	}
	return &Engine{otpMaxAttempts: otpMaxAttempts}
}

func (e *Engine) MaxOTPAttempts() int {
	return e.otpMaxAttempts
}

// Decide validates ev against the session's current stage and returns the
// resulting stage. It rejects anything outside the transition table with
// ErrInvalidTransition and leaves invariant enforcement here rather than
// trusting callers: a stage always determines which fields must be set.
func (e *Engine) Decide(s *Session, ev Event, now time.Time) (Decision, error) {
	if s.IsExpired(now) {
		return Decision{}, ErrExpired
	}

	if s.Stage == StageCompleted {
		return Decision{}, ErrSessionCompleted
	}

	if s.Stage == StageCancelled {
		if ev.Kind() == EventCancel {
			return Decision{Next: StageCancelled, Replay: true}, nil
		}
		return Decision{}, fmt.Errorf(
			"session cancelled: %w", ErrInvalidTransition,
		)
	}

	if ev.Kind() == EventCancel {
		return Decision{Next: StageCancelled}, nil
	}

	if ev.Kind() == EventSelectPlan {
		// Sessions are created with a plan; switching plans means
		// starting over with a fresh token.
		return Decision{}, fmt.Errorf(
			"plan already selected: %w", ErrInvalidTransition,
		)
	}

	if d, ok := e.replayOf(s, ev); ok {
		return d, nil
	}

	next, ok := transitionFor(s.Stage, ev.Kind())
	if !ok {
		return Decision{}, fmt.Errorf(
			"%s not allowed from %s: %w",
			ev.Kind(), s.Stage, ErrInvalidTransition,
		)
	}

	switch ev := ev.(type) {
	case RequestOTP:
		if s.Email == "" {
			return Decision{}, fmt.Errorf(
				"no email on session: %w", ErrInvalidTransition,
			)
		}
		if s.OTPResendAfter != nil && now.Before(*s.OTPResendAfter) {
			return Decision{}, &RateLimitedError{
				RetryAfter: s.OTPResendAfter.Sub(now),
			}
		}

	case VerifyOTP:
		if !s.HasChallenge() {
			return Decision{}, fmt.Errorf(
				"no active challenge: %w", ErrChallengeVoided,
			)
		}
		if s.OTPAttempts >= e.otpMaxAttempts {
			return Decision{}, fmt.Errorf(
				"attempt limit reached: %w", ErrChallengeVoided,
			)
		}

	case SetBusiness:
		if !s.IdentityVerified {
			return Decision{}, fmt.Errorf(
				"identity not verified: %w", ErrInvalidTransition,
			)
		}
		if !ev.Draft.IsComplete() {
			return Decision{}, fmt.Errorf(
				"incomplete business draft: %w", ErrInvalidTransition,
			)
		}
		// Free plans never pass through payment.
		if !s.IsPaidPlan {
			next = StageReadyToCommit
		}

	case StartPayment:
		if !s.IsPaidPlan {
			return Decision{}, fmt.Errorf(
				"free plan has no checkout: %w", ErrInvalidTransition,
			)
		}
		if !s.HasBusinessDraft() {
			return Decision{}, fmt.Errorf(
				"business draft missing: %w", ErrInvalidTransition,
			)
		}

	case Complete:
		if !s.IdentityVerified || !s.HasBusinessDraft() {
			return Decision{}, fmt.Errorf(
				"session state incomplete: %w", ErrInvalidTransition,
			)
		}
		if s.IsPaidPlan && !s.PaymentCompleted {
			return Decision{}, fmt.Errorf(
				"payment not confirmed: %w", ErrInvalidTransition,
			)
		}
	}

	return Decision{Next: next}, nil
}

// replayOf recognizes the idempotent re-submission of an already-applied
// event: same event, same resulting stage, with the matching field already
// populated. RequestOTP is excluded on purpose; a repeat there is a resend
// governed by the cooldown, not a duplicate.
func (e *Engine) replayOf(s *Session, ev Event) (Decision, bool) {
	switch ev := ev.(type) {
	case VerifyOTP, OAuthExchange:
		if s.Stage == StageIdentityVerified && s.IdentityVerified {
			return Decision{Next: s.Stage, Replay: true}, true
		}

	case SetBusiness:
		applied := s.Stage == StageBusinessStaged ||
			(!s.IsPaidPlan && s.Stage == StageReadyToCommit)
		if applied && s.Draft() == ev.Draft {
			return Decision{Next: s.Stage, Replay: true}, true
		}

	case StartPayment:
		if s.Stage == StagePaymentPending && s.CheckoutURL != "" {
			return Decision{Next: s.Stage, Replay: true}, true
		}

	case ConfirmPayment:
		if s.Stage == StageReadyToCommit && s.PaymentCompleted {
			return Decision{Next: s.Stage, Replay: true}, true
		}
	}

	return Decision{}, false
}
