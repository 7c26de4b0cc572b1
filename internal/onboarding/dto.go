// AngelaMos | 2026
// dto.go

package onboarding

import (
	"time"
)

type StartRequest struct {
	PlanDescriptor string `json:"plan_descriptor" validate:"required,min=2,max=50"`
	Email          string `json:"email"           validate:"required,email,max=255"`
}

type StartResponse struct {
	Token string `json:"token"`
	Stage Stage  `json:"stage"`
}

type TokenRequest struct {
	Token string `json:"token" validate:"required,min=8,max=128"`
}

type RequestOTPResponse struct {
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

type VerifyOTPRequest struct {
	Token string `json:"token" validate:"required,min=8,max=128"`
	Code  string `json:"code"  validate:"required,min=4,max=10,numeric"`
}

type OAuthExchangeRequest struct {
	Token string `json:"token" validate:"required,min=8,max=128"`
	Code  string `json:"code"  validate:"required,min=1,max=512"`
}

type SetBusinessRequest struct {
	Token      string `json:"token"      validate:"required,min=8,max=128"`
	Name       string `json:"name"       validate:"required,min=1,max=100"`
	Descriptor string `json:"descriptor" validate:"required,min=2,max=50,lowercase,alphanum"`
	Country    string `json:"country"    validate:"required,iso3166_1_alpha2"`
	Currency   string `json:"currency"   validate:"required,iso4217"`
}

type StartPaymentRequest struct {
	Token      string `json:"token"       validate:"required,min=8,max=128"`
	SuccessURL string `json:"success_url" validate:"required,url,max=2000"`
	CancelURL  string `json:"cancel_url"  validate:"required,url,max=2000"`
}

type StartPaymentResponse struct {
	Stage       Stage  `json:"stage"`
	CheckoutURL string `json:"checkout_url"`
}

type StageResponse struct {
	Stage Stage `json:"stage"`
}

type CompleteResponse struct {
	Stage        Stage  `json:"stage"`
	UserID       string `json:"user_id"`
	WorkspaceID  string `json:"workspace_id"`
	AuthToken    string `json:"auth_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionSnapshot is the resume view. It deliberately omits OTP challenge
// internals and anything else a holder of a leaked token could abuse.
type SessionSnapshot struct {
	Stage            Stage          `json:"stage"`
	PlanDescriptor   string         `json:"plan_descriptor"`
	IsPaidPlan       bool           `json:"is_paid_plan"`
	Email            string         `json:"email,omitempty"`
	IdentityVerified bool           `json:"identity_verified"`
	Business         *BusinessDraft `json:"business,omitempty"`
	CheckoutURL      string         `json:"checkout_url,omitempty"`
	PaymentCompleted bool           `json:"payment_completed"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

func newSessionSnapshot(s *Session) SessionSnapshot {
	snapshot := SessionSnapshot{
		Stage:            s.Stage,
		PlanDescriptor:   s.PlanDescriptor,
		IsPaidPlan:       s.IsPaidPlan,
		Email:            s.Email,
		IdentityVerified: s.IdentityVerified,
		CheckoutURL:      s.CheckoutURL,
		PaymentCompleted: s.PaymentCompleted,
		ExpiresAt:        s.ExpiresAt,
	}

	if s.HasBusinessDraft() {
		draft := s.Draft()
		snapshot.Business = &draft
	}

	return snapshot
}
