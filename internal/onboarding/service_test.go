// AngelaMos | 2026
// service_test.go

package onboarding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/core"
)

type fakeIdentity struct {
	sendCalls   int
	verifyCalls int
	code        string
	sendErr     error
	verifyErr   error
}

func (f *fakeIdentity) SendOTP(_ context.Context, _ string) (string, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return fmt.Sprintf("ch-%d", f.sendCalls), nil
}

func (f *fakeIdentity) VerifyOTP(_ context.Context, _, code string) error {
	f.verifyCalls++
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if code != f.code {
		return ErrCodeMismatch
	}
	return nil
}

type fakeOAuth struct {
	identity OAuthIdentity
	err      error
}

func (f *fakeOAuth) Exchange(_ context.Context, _ string) (*OAuthIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	ident := f.identity
	return &ident, nil
}

type fakePayment struct {
	calls int
	err   error
}

func (f *fakePayment) StartCheckout(
	_ context.Context,
	req CheckoutRequest,
) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://pay.example.com/cs_%d", f.calls), nil
}

type fakePlans struct {
	plans map[string]PlanInfo
}

func (f *fakePlans) GetPlan(
	_ context.Context,
	descriptor string,
) (*PlanInfo, error) {
	p, ok := f.plans[descriptor]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

type fakeAccounts struct {
	taken       map[string]bool
	createCalls int
	created     map[string]*AccountResult
}

func (f *fakeAccounts) DescriptorTaken(
	_ context.Context,
	descriptor string,
) (bool, error) {
	return f.taken[descriptor], nil
}

func (f *fakeAccounts) CreateAccount(
	_ context.Context,
	s *Session,
) (*AccountResult, error) {
	if existing, ok := f.created[s.Token]; ok {
		return existing, nil
	}
	f.createCalls++
	result := &AccountResult{
		UserID:       fmt.Sprintf("user-%d", f.createCalls),
		WorkspaceID:  fmt.Sprintf("ws-%d", f.createCalls),
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
	}
	if f.created == nil {
		f.created = make(map[string]*AccountResult)
	}
	f.created[s.Token] = result
	return result, nil
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	identity *fakeIdentity
	oauth    *fakeOAuth
	payment  *fakePayment
	accounts *fakeAccounts
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemoryStore(),
		identity: &fakeIdentity{code: "123456"},
		oauth: &fakeOAuth{identity: OAuthIdentity{
			Email:      "founder@example.com",
			ExternalID: "ext-1",
		}},
		payment:  &fakePayment{},
		accounts: &fakeAccounts{taken: map[string]bool{}},
		now:      testNow,
	}

	f.svc = NewService(ServiceConfig{
		Store:    f.store,
		Identity: f.identity,
		OAuth:    f.oauth,
		Payment:  f.payment,
		Plans: &fakePlans{plans: map[string]PlanInfo{
			"starter": {ID: "plan-free", Descriptor: "starter", Name: "Starter"},
			"pro": {
				ID: "plan-pro", Descriptor: "pro", Name: "Pro",
				Paid: true, PriceRef: "price_pro",
			},
		}},
		Accounts: f.accounts,
		Config: config.OnboardingConfig{
			SessionTTL:        24 * time.Hour,
			OTPLength:         6,
			OTPTTL:            10 * time.Minute,
			OTPMaxAttempts:    5,
			OTPResendCooldown: time.Minute,
			SaveRetries:       3,
		},
	})

	clock := func() time.Time { return f.now }
	f.svc.SetClock(clock)
	f.store.SetClock(clock)

	return f
}

func (f *fixture) advance(t *testing.T, token string, ev Event) *Result {
	t.Helper()
	res, err := f.svc.Advance(context.Background(), token, ev)
	if err != nil {
		t.Fatalf("Advance(%s) failed: %v", ev.Kind(), err)
	}
	return res
}

func TestFreePlanOTPJourney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "starter", "founder@example.com")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if start.Stage != StagePlanSelected {
		t.Fatalf("Start() stage = %s, want %s", start.Stage, StagePlanSelected)
	}

	res := f.advance(t, start.Token, RequestOTP{})
	if res.Stage != StageIdentityPending {
		t.Fatalf("stage = %s, want %s", res.Stage, StageIdentityPending)
	}
	if res.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %s, want 1m", res.RetryAfter)
	}

	res = f.advance(t, start.Token, VerifyOTP{Code: "123456"})
	if res.Stage != StageIdentityVerified {
		t.Fatalf("stage = %s, want %s", res.Stage, StageIdentityVerified)
	}

	res = f.advance(t, start.Token, SetBusiness{Draft: BusinessDraft{
		Name: "Acme", Descriptor: "acme", Country: "DE", Currency: "EUR",
	}})
	if res.Stage != StageReadyToCommit {
		t.Fatalf(
			"free plan stage = %s, want %s (payment skipped)",
			res.Stage, StageReadyToCommit,
		)
	}

	res = f.advance(t, start.Token, Complete{})
	if res.Stage != StageCompleted {
		t.Fatalf("stage = %s, want %s", res.Stage, StageCompleted)
	}
	if res.UserID == "" || res.WorkspaceID == "" || res.AccessToken == "" {
		t.Error("Complete() result missing account identifiers or tokens")
	}
	if f.payment.calls != 0 {
		t.Errorf("payment adapter called %d times on free plan", f.payment.calls)
	}
}

func TestPaidPlanOAuthJourney(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "pro", "")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	res := f.advance(t, start.Token, OAuthExchange{Code: "authcode"})
	if res.Stage != StageIdentityVerified {
		t.Fatalf("stage = %s, want %s", res.Stage, StageIdentityVerified)
	}

	session, err := f.svc.Get(ctx, start.Token)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if session.Email != "founder@example.com" {
		t.Errorf("session email = %q, want provider email", session.Email)
	}

	f.advance(t, start.Token, SetBusiness{Draft: BusinessDraft{
		Name: "Acme", Descriptor: "acme", Country: "DE", Currency: "EUR",
	}})

	res = f.advance(t, start.Token, StartPayment{
		SuccessURL: "https://app.example.com/done",
		CancelURL:  "https://app.example.com/back",
	})
	if res.Stage != StagePaymentPending {
		t.Fatalf("stage = %s, want %s", res.Stage, StagePaymentPending)
	}
	if res.CheckoutURL == "" {
		t.Fatal("StartPayment returned no checkout URL")
	}

	// Completing before the provider confirms must fail.
	_, err = f.svc.Advance(ctx, start.Token, Complete{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete before confirm: error = %v, want ErrInvalidTransition", err)
	}

	res = f.advance(t, start.Token, ConfirmPayment{})
	if res.Stage != StageReadyToCommit {
		t.Fatalf("stage = %s, want %s", res.Stage, StageReadyToCommit)
	}

	res = f.advance(t, start.Token, Complete{})
	if res.Stage != StageCompleted {
		t.Fatalf("stage = %s, want %s", res.Stage, StageCompleted)
	}
	if f.accounts.createCalls != 1 {
		t.Errorf("CreateAccount called %d times, want 1", f.accounts.createCalls)
	}
}

func TestOAuthEmailMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "pro", "someone-else@example.com")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	_, err = f.svc.Advance(ctx, start.Token, OAuthExchange{Code: "authcode"})
	if !errors.Is(err, ErrEmailMismatch) {
		t.Fatalf("error = %v, want ErrEmailMismatch", err)
	}

	session, err := f.svc.Get(ctx, start.Token)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if session.IdentityVerified {
		t.Error("identity marked verified despite email mismatch")
	}
}

func TestOTPAttemptsPersistAcrossFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "starter", "founder@example.com")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.advance(t, start.Token, RequestOTP{})

	for i := 0; i < 5; i++ {
		_, err := f.svc.Advance(ctx, start.Token, VerifyOTP{Code: "000000"})
		if !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: error = %v, want ErrCodeMismatch", i+1, err)
		}
	}

	// The sixth try finds the challenge voided, even with the right code.
	_, err = f.svc.Advance(ctx, start.Token, VerifyOTP{Code: "123456"})
	if !errors.Is(err, ErrChallengeVoided) {
		t.Fatalf("error = %v, want ErrChallengeVoided", err)
	}

	// A fresh challenge restores the budget, after the cooldown.
	f.now = f.now.Add(2 * time.Minute)
	f.advance(t, start.Token, RequestOTP{})
	res := f.advance(t, start.Token, VerifyOTP{Code: "123456"})
	if res.Stage != StageIdentityVerified {
		t.Fatalf("stage = %s, want %s", res.Stage, StageIdentityVerified)
	}
}

func TestOTPExpiredCodesSpendTheBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "starter", "founder@example.com")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.advance(t, start.Token, RequestOTP{})

	f.identity.verifyErr = ErrCodeExpired
	for i := 0; i < 5; i++ {
		_, err := f.svc.Advance(ctx, start.Token, VerifyOTP{Code: "123456"})
		if !errors.Is(err, ErrCodeExpired) {
			t.Fatalf("attempt %d: error = %v, want ErrCodeExpired", i+1, err)
		}
	}

	// The budget is gone even though the right code arrives against a
	// live challenge.
	f.identity.verifyErr = nil
	_, err = f.svc.Advance(ctx, start.Token, VerifyOTP{Code: "123456"})
	if !errors.Is(err, ErrChallengeVoided) {
		t.Fatalf("error = %v, want ErrChallengeVoided", err)
	}
}

func TestOTPResendCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.svc.Start(ctx, "starter", "founder@example.com")
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	f.advance(t, start.Token, RequestOTP{})

	_, err = f.svc.Advance(ctx, start.Token, RequestOTP{})
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("error = %v, want RateLimitedError", err)
	}
	if f.identity.sendCalls != 1 {
		t.Errorf("SendOTP called %d times, want 1", f.identity.sendCalls)
	}

	f.now = f.now.Add(2 * time.Minute)
	f.advance(t, start.Token, RequestOTP{})
	if f.identity.sendCalls != 2 {
		t.Errorf("SendOTP called %d times after cooldown, want 2", f.identity.sendCalls)
	}
}

func TestDuplicateStartPaymentReusesCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, "pro", "")
	f.advance(t, start.Token, OAuthExchange{Code: "authcode"})
	f.advance(t, start.Token, SetBusiness{Draft: BusinessDraft{
		Name: "Acme", Descriptor: "acme", Country: "DE", Currency: "EUR",
	}})

	first := f.advance(t, start.Token, StartPayment{
		SuccessURL: "https://a", CancelURL: "https://b",
	})
	second := f.advance(t, start.Token, StartPayment{
		SuccessURL: "https://a", CancelURL: "https://b",
	})

	if second.CheckoutURL != first.CheckoutURL {
		t.Errorf(
			"duplicate StartPayment URL = %q, want %q",
			second.CheckoutURL, first.CheckoutURL,
		)
	}
	if f.payment.calls != 1 {
		t.Errorf("StartCheckout called %d times, want 1", f.payment.calls)
	}
}

func TestCompleteIsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")
	f.advance(t, start.Token, RequestOTP{})
	f.advance(t, start.Token, VerifyOTP{Code: "123456"})
	f.advance(t, start.Token, SetBusiness{Draft: BusinessDraft{
		Name: "Acme", Descriptor: "acme", Country: "DE", Currency: "EUR",
	}})
	f.advance(t, start.Token, Complete{})

	_, err := f.svc.Advance(ctx, start.Token, Complete{})
	if !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("second Complete: error = %v, want ErrSessionCompleted", err)
	}
	if f.accounts.createCalls != 1 {
		t.Errorf("CreateAccount called %d times, want 1", f.accounts.createCalls)
	}
}

func TestDescriptorTakenRejectsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accounts.taken["acme"] = true

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")
	f.advance(t, start.Token, RequestOTP{})
	f.advance(t, start.Token, VerifyOTP{Code: "123456"})

	_, err := f.svc.Advance(ctx, start.Token, SetBusiness{Draft: BusinessDraft{
		Name: "Acme", Descriptor: "acme", Country: "DE", Currency: "EUR",
	}})
	if !errors.Is(err, ErrDescriptorTaken) {
		t.Fatalf("error = %v, want ErrDescriptorTaken", err)
	}

	session, _ := f.svc.Get(ctx, start.Token)
	if session.Stage != StageIdentityVerified {
		t.Errorf("stage = %s, want unchanged %s", session.Stage, StageIdentityVerified)
	}
}

func TestAdapterFailureLeavesStageUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.identity.sendErr = errors.New("smtp relay down")

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")

	_, err := f.svc.Advance(ctx, start.Token, RequestOTP{})
	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("error = %v, want AdapterError", err)
	}

	session, _ := f.svc.Get(ctx, start.Token)
	if session.Stage != StagePlanSelected {
		t.Errorf("stage = %s, want unchanged %s", session.Stage, StagePlanSelected)
	}
}

func TestExpiredSessionRejectsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")

	f.now = f.now.Add(25 * time.Hour)

	_, err := f.svc.Advance(ctx, start.Token, RequestOTP{})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("error = %v, want ErrExpired", err)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")

	res := f.advance(t, start.Token, Cancel{})
	if res.Stage != StageCancelled {
		t.Fatalf("stage = %s, want %s", res.Stage, StageCancelled)
	}

	_, err := f.svc.Advance(ctx, start.Token, RequestOTP{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}

	// Cancel is itself idempotent.
	res = f.advance(t, start.Token, Cancel{})
	if res.Stage != StageCancelled {
		t.Fatalf("repeat cancel stage = %s, want %s", res.Stage, StageCancelled)
	}
}

func TestUnknownPlanRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), "enterprise", "a@b.com")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want core.ErrNotFound", err)
	}
}

// Simulates a concurrent writer bumping the version between Load and
// Save: the facade must re-evaluate against the fresh snapshot and
// succeed, not fail or clobber the other write.
func TestAdvanceRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, _ := f.svc.Start(ctx, "starter", "founder@example.com")

	conflicting := &conflictOnceStore{MemoryStore: f.store}
	f.svc.store = conflicting

	res, err := f.svc.Advance(ctx, start.Token, RequestOTP{})
	if err != nil {
		t.Fatalf("Advance() failed after conflict: %v", err)
	}
	if res.Stage != StageIdentityPending {
		t.Fatalf("stage = %s, want %s", res.Stage, StageIdentityPending)
	}
	if conflicting.conflicts != 1 {
		t.Errorf("injected %d conflicts, want 1", conflicting.conflicts)
	}
}

// conflictOnceStore fails the first Save with a version conflict and then
// delegates to the real store.
type conflictOnceStore struct {
	*MemoryStore
	conflicts int
}

func (c *conflictOnceStore) Save(
	ctx context.Context,
	s *Session,
	expectedVersion int,
) error {
	if c.conflicts == 0 {
		c.conflicts++
		return fmt.Errorf("save session: %w", ErrVersionConflict)
	}
	return c.MemoryStore.Save(ctx, s, expectedVersion)
}
