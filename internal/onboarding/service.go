// AngelaMos | 2026
// service.go

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/core"
)

// Result is what an advanced session reports back to the caller. Fields
// beyond Stage are populated only by the events that produce them.
type Result struct {
	Token        string
	Stage        Stage
	RetryAfter   time.Duration
	CheckoutURL  string
	UserID       string
	WorkspaceID  string
	AccessToken  string
	RefreshToken string
}

// Service is the session facade: the single entry point HTTP handlers
// use. One Advance call is one atomic Load → Decide → side effect → Save
// cycle; optimistic-concurrency conflicts restart the whole cycle a
// bounded number of times.
type Service struct {
	store    Store
	engine   *Engine
	identity IdentitySender
	oauth    OAuthExchanger
	payment  PaymentInitiator
	plans    PlanCatalog
	accounts AccountProvisioner
	cfg      config.OnboardingConfig
	now      func() time.Time
}

type ServiceConfig struct {
	Store    Store
	Identity IdentitySender
	OAuth    OAuthExchanger
	Payment  PaymentInitiator
	Plans    PlanCatalog
	Accounts AccountProvisioner
	Config   config.OnboardingConfig
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:    cfg.Store,
		engine:   NewEngine(cfg.Config.OTPMaxAttempts),
		identity: cfg.Identity,
		oauth:    cfg.OAuth,
		payment:  cfg.Payment,
		plans:    cfg.Plans,
		accounts: cfg.Accounts,
		cfg:      cfg.Config,
		now:      time.Now,
	}
}

// SetClock replaces the facade's time source. Test helper.
func (s *Service) SetClock(clock func() time.Time) {
	s.now = clock
}

// Start creates a session from a plan selection. This is the only way a
// session comes into being; every later step goes through Advance.
func (s *Service) Start(
	ctx context.Context,
	planDescriptor, email string,
) (*Result, error) {
	plan, err := s.plans.GetPlan(ctx, planDescriptor)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("plan %q: %w", planDescriptor, core.ErrNotFound)
		}
		return nil, &AdapterError{Op: "plan catalog", Err: err}
	}

	token, err := core.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now()
	session := &Session{
		Token:          token,
		Stage:          StagePlanSelected,
		PlanID:         plan.ID,
		PlanDescriptor: plan.Descriptor,
		IsPaidPlan:     plan.Paid,
		Email:          email,
		Version:        1,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
	}

	if err := s.store.Create(ctx, session); err != nil {
		// A collision on a 256-bit token means something is deeply
		// wrong; surface it instead of retrying.
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &Result{Token: token, Stage: session.Stage}, nil
}

// Get returns the current stage snapshot for resume support.
func (s *Service) Get(ctx context.Context, token string) (*Session, error) {
	return s.store.Load(ctx, token)
}

// Advance applies one event to the session behind token. On a version
// conflict the full cycle reruns against the fresh snapshot, so a
// concurrent writer's event is never clobbered; the engine's replay
// detection keeps retried side effects from running twice.
func (s *Service) Advance(
	ctx context.Context,
	token string,
	ev Event,
) (*Result, error) {
	retries := s.cfg.SaveRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		res, err := s.advanceOnce(ctx, token, ev)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			slog.Debug("session save conflict, re-evaluating",
				"event", ev.Kind(),
				"attempt", attempt+1,
			)
			continue
		}
		return res, err
	}

	return nil, lastErr
}

//nolint:funlen // one arm per event keeps the whole cycle in view
func (s *Service) advanceOnce(
	ctx context.Context,
	token string,
	ev Event,
) (*Result, error) {
	session, err := s.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expectedVersion := session.Version

	decision, err := s.engine.Decide(session, ev, now)
	if err != nil {
		return nil, err
	}

	if decision.Replay {
		return s.resultFor(session, ev), nil
	}

	result := &Result{Token: session.Token}

	switch ev := ev.(type) {
	case RequestOTP:
		challengeID, sendErr := s.identity.SendOTP(ctx, session.Email)
		if sendErr != nil {
			// The code was never confirmed sent; the stage must not
			// move or the client would wait on a code that is not
			// coming.
			return nil, &AdapterError{Op: "identity", Err: sendErr}
		}
		resendAt := now.Add(s.cfg.OTPResendCooldown)
		session.OTPChallengeID = challengeID
		session.OTPAttempts = 0
		session.OTPResendAfter = &resendAt
		result.RetryAfter = s.cfg.OTPResendCooldown

	case VerifyOTP:
		verifyErr := s.identity.VerifyOTP(ctx, session.OTPChallengeID, ev.Code)
		if verifyErr != nil {
			return nil, s.recordFailedAttempt(ctx, session, expectedVersion, verifyErr)
		}
		session.IdentityVerified = true
		session.VoidChallenge()
		session.OTPResendAfter = nil

	case OAuthExchange:
		ident, exchErr := s.oauth.Exchange(ctx, ev.Code)
		if exchErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrOAuth, exchErr)
		}
		if session.Email != "" && session.Email != ident.Email {
			return nil, ErrEmailMismatch
		}
		session.Email = ident.Email
		session.IdentityVerified = true
		session.VoidChallenge()
		session.OTPResendAfter = nil

	case SetBusiness:
		taken, checkErr := s.accounts.DescriptorTaken(ctx, ev.Draft.Descriptor)
		if checkErr != nil {
			return nil, &AdapterError{Op: "account", Err: checkErr}
		}
		if taken {
			return nil, ErrDescriptorTaken
		}
		session.SetDraft(ev.Draft)

	case StartPayment:
		checkoutURL, startErr := s.payment.StartCheckout(ctx, CheckoutRequest{
			SessionToken:   session.Token,
			PlanID:         session.PlanID,
			PlanDescriptor: session.PlanDescriptor,
			Email:          session.Email,
			SuccessURL:     ev.SuccessURL,
			CancelURL:      ev.CancelURL,
		})
		if startErr != nil {
			return nil, &AdapterError{Op: "payment", Err: startErr}
		}
		session.CheckoutURL = checkoutURL
		result.CheckoutURL = checkoutURL

	case ConfirmPayment:
		session.PaymentCompleted = true

	case Complete:
		account, createErr := s.accounts.CreateAccount(ctx, session)
		if createErr != nil {
			return nil, &AdapterError{Op: "account", Err: createErr}
		}
		session.UserID = account.UserID
		session.WorkspaceID = account.WorkspaceID
		result.UserID = account.UserID
		result.WorkspaceID = account.WorkspaceID
		result.AccessToken = account.AccessToken
		result.RefreshToken = account.RefreshToken

	case Cancel:
		// No side effect; the session is simply voided.
	}

	session.Stage = decision.Next
	result.Stage = decision.Next

	if err := s.store.Save(ctx, session, expectedVersion); err != nil {
		return nil, err
	}

	return result, nil
}

// recordFailedAttempt persists the incremented attempt counter before the
// verification error is surfaced, so retries cannot reset the budget. A
// save conflict here is swallowed: the concurrent writer either recorded
// its own attempt or verified successfully, and either way the caller's
// code was wrong.
func (s *Service) recordFailedAttempt(
	ctx context.Context,
	session *Session,
	expectedVersion int,
	verifyErr error,
) error {
	if !errors.Is(verifyErr, ErrCodeMismatch) &&
		!errors.Is(verifyErr, ErrCodeExpired) {
		return &AdapterError{Op: "identity", Err: verifyErr}
	}

	// Expired codes spend the budget too; probing a dead challenge is
	// still probing.
	session.OTPAttempts++
	if session.OTPAttempts >= s.engine.MaxOTPAttempts() {
		session.VoidChallenge()
	}

	if saveErr := s.store.Save(ctx, session, expectedVersion); saveErr != nil &&
		!errors.Is(saveErr, ErrVersionConflict) {
		return saveErr
	}

	return verifyErr
}

// resultFor rebuilds the response for a replayed event from persisted
// state, without re-running its side effect.
func (s *Service) resultFor(session *Session, ev Event) *Result {
	result := &Result{
		Token: session.Token,
		Stage: session.Stage,
	}

	if ev.Kind() == EventStartPayment {
		result.CheckoutURL = session.CheckoutURL
	}

	return result
}
