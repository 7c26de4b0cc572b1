// AngelaMos | 2026
// engine_test.go

package onboarding

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func baseSession(stage Stage) *Session {
	return &Session{
		Token:          "onb_test",
		Stage:          stage,
		PlanID:         "plan-1",
		PlanDescriptor: "pro",
		IsPaidPlan:     true,
		Email:          "founder@example.com",
		Version:        1,
		ExpiresAt:      testNow.Add(24 * time.Hour),
	}
}

func verifiedSession(stage Stage) *Session {
	s := baseSession(stage)
	s.IdentityVerified = true
	return s
}

func stagedSession(stage Stage) *Session {
	s := verifiedSession(stage)
	s.SetDraft(BusinessDraft{
		Name:       "Acme Coffee",
		Descriptor: "acmecoffee",
		Country:    "DE",
		Currency:   "EUR",
	})
	return s
}

func TestEngineDecide(t *testing.T) {
	tests := []struct {
		name     string
		session  *Session
		event    Event
		wantNext Stage
		wantErr  error
	}{
		{
			name:     "request otp from plan selected",
			session:  baseSession(StagePlanSelected),
			event:    RequestOTP{},
			wantNext: StageIdentityPending,
		},
		{
			name: "request otp resend",
			session: func() *Session {
				s := baseSession(StageIdentityPending)
				s.OTPChallengeID = "ch-1"
				return s
			}(),
			event:    RequestOTP{},
			wantNext: StageIdentityPending,
		},
		{
			name: "request otp without email",
			session: func() *Session {
				s := baseSession(StagePlanSelected)
				s.Email = ""
				return s
			}(),
			event:   RequestOTP{},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "verify otp",
			session: func() *Session {
				s := baseSession(StageIdentityPending)
				s.OTPChallengeID = "ch-1"
				return s
			}(),
			event:    VerifyOTP{Code: "123456"},
			wantNext: StageIdentityVerified,
		},
		{
			name:    "verify otp without challenge",
			session: baseSession(StageIdentityPending),
			event:   VerifyOTP{Code: "123456"},
			wantErr: ErrChallengeVoided,
		},
		{
			name:    "verify otp before requesting one",
			session: baseSession(StagePlanSelected),
			event:   VerifyOTP{Code: "123456"},
			wantErr: ErrInvalidTransition,
		},
		{
			name:     "oauth straight from plan selected",
			session:  baseSession(StagePlanSelected),
			event:    OAuthExchange{Code: "authcode"},
			wantNext: StageIdentityVerified,
		},
		{
			name:    "set business before identity",
			session: baseSession(StagePlanSelected),
			event: SetBusiness{Draft: BusinessDraft{
				Name: "Acme", Descriptor: "acme",
				Country: "DE", Currency: "EUR",
			}},
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "set business with incomplete draft",
			session: verifiedSession(StageIdentityVerified),
			event:   SetBusiness{Draft: BusinessDraft{Name: "Acme"}},
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "set business paid plan",
			session: verifiedSession(StageIdentityVerified),
			event: SetBusiness{Draft: BusinessDraft{
				Name: "Acme", Descriptor: "acme",
				Country: "DE", Currency: "EUR",
			}},
			wantNext: StageBusinessStaged,
		},
		{
			name: "set business free plan skips payment",
			session: func() *Session {
				s := verifiedSession(StageIdentityVerified)
				s.IsPaidPlan = false
				return s
			}(),
			event: SetBusiness{Draft: BusinessDraft{
				Name: "Acme", Descriptor: "acme",
				Country: "DE", Currency: "EUR",
			}},
			wantNext: StageReadyToCommit,
		},
		{
			name:     "start payment",
			session:  stagedSession(StageBusinessStaged),
			event:    StartPayment{SuccessURL: "https://a", CancelURL: "https://b"},
			wantNext: StagePaymentPending,
		},
		{
			name: "start payment on free plan",
			session: func() *Session {
				s := stagedSession(StageReadyToCommit)
				s.IsPaidPlan = false
				return s
			}(),
			event:   StartPayment{SuccessURL: "https://a", CancelURL: "https://b"},
			wantErr: ErrInvalidTransition,
		},
		{
			name:     "confirm payment",
			session:  stagedSession(StagePaymentPending),
			event:    ConfirmPayment{},
			wantNext: StageReadyToCommit,
		},
		{
			name:    "confirm payment before checkout",
			session: stagedSession(StageBusinessStaged),
			event:   ConfirmPayment{},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "complete paid plan",
			session: func() *Session {
				s := stagedSession(StageReadyToCommit)
				s.PaymentCompleted = true
				return s
			}(),
			event:    Complete{},
			wantNext: StageCompleted,
		},
		{
			name:    "complete paid plan without payment",
			session: stagedSession(StageReadyToCommit),
			event:   Complete{},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "complete free plan without payment",
			session: func() *Session {
				s := stagedSession(StageReadyToCommit)
				s.IsPaidPlan = false
				return s
			}(),
			event:    Complete{},
			wantNext: StageCompleted,
		},
		{
			name:    "complete too early",
			session: verifiedSession(StageIdentityVerified),
			event:   Complete{},
			wantErr: ErrInvalidTransition,
		},
		{
			name:     "cancel from any stage",
			session:  stagedSession(StagePaymentPending),
			event:    Cancel{},
			wantNext: StageCancelled,
		},
		{
			name:    "select plan on existing session",
			session: baseSession(StagePlanSelected),
			event:   SelectPlan{PlanDescriptor: "growth"},
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "event on completed session",
			session: baseSession(StageCompleted),
			event:   Complete{},
			wantErr: ErrSessionCompleted,
		},
		{
			name:    "event on cancelled session",
			session: baseSession(StageCancelled),
			event:   RequestOTP{},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "expired session",
			session: func() *Session {
				s := baseSession(StageIdentityPending)
				s.ExpiresAt = testNow.Add(-time.Minute)
				return s
			}(),
			event:   RequestOTP{},
			wantErr: ErrExpired,
		},
	}

	engine := NewEngine(5)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Decide(tt.session, tt.event, testNow)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decide() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Decide() unexpected error: %v", err)
			}
			if decision.Next != tt.wantNext {
				t.Errorf(
					"Decide() next = %s, want %s",
					decision.Next, tt.wantNext,
				)
			}
			if decision.Replay {
				t.Errorf("Decide() replay = true, want false")
			}
		})
	}
}

func TestEngineDecideReplay(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		event   Event
	}{
		{
			name:    "verify otp after already verified",
			session: verifiedSession(StageIdentityVerified),
			event:   VerifyOTP{Code: "123456"},
		},
		{
			name:    "oauth after already verified",
			session: verifiedSession(StageIdentityVerified),
			event:   OAuthExchange{Code: "authcode"},
		},
		{
			name:    "set business with identical draft",
			session: stagedSession(StageBusinessStaged),
			event: SetBusiness{Draft: BusinessDraft{
				Name: "Acme Coffee", Descriptor: "acmecoffee",
				Country: "DE", Currency: "EUR",
			}},
		},
		{
			name: "start payment with checkout already open",
			session: func() *Session {
				s := stagedSession(StagePaymentPending)
				s.CheckoutURL = "https://pay.example.com/cs_1"
				return s
			}(),
			event: StartPayment{SuccessURL: "https://a", CancelURL: "https://b"},
		},
		{
			name: "confirm payment twice",
			session: func() *Session {
				s := stagedSession(StageReadyToCommit)
				s.PaymentCompleted = true
				return s
			}(),
			event: ConfirmPayment{},
		},
		{
			name:    "cancel a cancelled session",
			session: baseSession(StageCancelled),
			event:   Cancel{},
		},
	}

	engine := NewEngine(5)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Decide(tt.session, tt.event, testNow)
			if err != nil {
				t.Fatalf("Decide() unexpected error: %v", err)
			}
			if !decision.Replay {
				t.Fatalf("Decide() replay = false, want true")
			}
			if decision.Next != tt.session.Stage {
				t.Errorf(
					"Decide() next = %s, want current stage %s",
					decision.Next, tt.session.Stage,
				)
			}
		})
	}
}

func TestEngineDecideNewDraftIsNotReplay(t *testing.T) {
	engine := NewEngine(5)
	s := stagedSession(StageBusinessStaged)

	decision, err := engine.Decide(s, SetBusiness{Draft: BusinessDraft{
		Name: "Acme Tea", Descriptor: "acmetea",
		Country: "DE", Currency: "EUR",
	}}, testNow)
	if err != nil {
		t.Fatalf("Decide() unexpected error: %v", err)
	}
	if decision.Replay {
		t.Fatal("editing the draft must not be treated as a replay")
	}
	if decision.Next != StageBusinessStaged {
		t.Errorf("Decide() next = %s, want %s", decision.Next, StageBusinessStaged)
	}
}

func TestEngineOTPCooldown(t *testing.T) {
	engine := NewEngine(5)

	s := baseSession(StageIdentityPending)
	resendAt := testNow.Add(30 * time.Second)
	s.OTPChallengeID = "ch-1"
	s.OTPResendAfter = &resendAt

	_, err := engine.Decide(s, RequestOTP{}, testNow)

	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("Decide() error = %v, want RateLimitedError", err)
	}
	if rateLimited.RetryAfter != 30*time.Second {
		t.Errorf(
			"RetryAfter = %s, want 30s",
			rateLimited.RetryAfter,
		)
	}

	// Past the cooldown the resend goes through.
	if _, err := engine.Decide(s, RequestOTP{}, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("Decide() after cooldown: %v", err)
	}
}

func TestEngineOTPAttemptLimit(t *testing.T) {
	engine := NewEngine(5)

	s := baseSession(StageIdentityPending)
	s.OTPChallengeID = "ch-1"
	s.OTPAttempts = 5

	_, err := engine.Decide(s, VerifyOTP{Code: "000000"}, testNow)
	if !errors.Is(err, ErrChallengeVoided) {
		t.Fatalf("Decide() error = %v, want ErrChallengeVoided", err)
	}
}

// Every stage must either be terminal or have at least one legal way
// forward, so no session can get stuck short of completion.
func TestTransitionTableClosure(t *testing.T) {
	stages := []Stage{
		StagePlanSelected,
		StageIdentityPending,
		StageIdentityVerified,
		StageBusinessStaged,
		StagePaymentPending,
		StageReadyToCommit,
		StageCompleted,
		StageCancelled,
	}

	events := []EventKind{
		EventRequestOTP,
		EventVerifyOTP,
		EventOAuthExchange,
		EventSetBusiness,
		EventStartPayment,
		EventConfirmPayment,
		EventComplete,
	}

	for _, stage := range stages {
		if stage.IsTerminal() {
			for _, ev := range events {
				if _, ok := transitionFor(stage, ev); ok {
					t.Errorf(
						"terminal stage %s has outgoing edge for %s",
						stage, ev,
					)
				}
			}
			continue
		}

		hasExit := false
		for _, ev := range events {
			if next, ok := transitionFor(stage, ev); ok {
				if !next.IsValid() {
					t.Errorf(
						"%s + %s leads to invalid stage %q",
						stage, ev, next,
					)
				}
				if next != stage {
					hasExit = true
				}
			}
		}
		if !hasExit {
			t.Errorf("stage %s has no forward edge", stage)
		}
	}
}
