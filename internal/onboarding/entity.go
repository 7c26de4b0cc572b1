// AngelaMos | 2026
// entity.go

package onboarding

import (
	"time"
)

// BusinessDraft is the workspace-to-be captured during onboarding. The
// descriptor becomes the workspace's unique handle once the account is
// committed and is immutable from then on.
type BusinessDraft struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Country    string `json:"country"`
	Currency   string `json:"currency"`
}

func (d BusinessDraft) IsComplete() bool {
	return d.Name != "" && d.Descriptor != "" &&
		d.Country != "" && d.Currency != ""
}

// Session is one resumable onboarding attempt, addressed externally only
// by its opaque capability token. Version is the optimistic-concurrency
// counter bumped on every persisted transition.
type Session struct {
	Token string `db:"token"`
	Stage Stage  `db:"stage"`

	PlanID         string `db:"plan_id"`
	PlanDescriptor string `db:"plan_descriptor"`
	IsPaidPlan     bool   `db:"is_paid_plan"`

	Email            string `db:"email"`
	IdentityVerified bool   `db:"identity_verified"`

	BusinessName       string `db:"business_name"`
	BusinessDescriptor string `db:"business_descriptor"`
	BusinessCountry    string `db:"business_country"`
	BusinessCurrency   string `db:"business_currency"`

	CheckoutURL      string `db:"checkout_url"`
	PaymentCompleted bool   `db:"payment_completed"`

	OTPChallengeID string     `db:"otp_challenge_id"`
	OTPAttempts    int        `db:"otp_attempts"`
	OTPResendAfter *time.Time `db:"otp_resend_after"`

	UserID      string `db:"user_id"`
	WorkspaceID string `db:"workspace_id"`

	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) HasBusinessDraft() bool {
	return s.Draft().IsComplete()
}

func (s *Session) Draft() BusinessDraft {
	return BusinessDraft{
		Name:       s.BusinessName,
		Descriptor: s.BusinessDescriptor,
		Country:    s.BusinessCountry,
		Currency:   s.BusinessCurrency,
	}
}

func (s *Session) SetDraft(d BusinessDraft) {
	s.BusinessName = d.Name
	s.BusinessDescriptor = d.Descriptor
	s.BusinessCountry = d.Country
	s.BusinessCurrency = d.Currency
}

// VoidChallenge discards the active OTP challenge; a fresh RequestOTP is
// required before verification can continue.
func (s *Session) VoidChallenge() {
	s.OTPChallengeID = ""
}

func (s *Session) HasChallenge() bool {
	return s.OTPChallengeID != ""
}
