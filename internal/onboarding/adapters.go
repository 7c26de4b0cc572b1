// AngelaMos | 2026
// adapters.go

package onboarding

import (
	"context"
)

// Collaborator contracts the facade calls but does not implement. Each has
// a production implementation in its own package and a fake in the tests.

// IdentitySender delivers and verifies one-time codes. VerifyOTP returns
// ErrCodeMismatch or ErrCodeExpired on failure so the facade can keep the
// attempt counter honest.
type IdentitySender interface {
	SendOTP(ctx context.Context, email string) (challengeID string, err error)
	VerifyOTP(ctx context.Context, challengeID, code string) error
}

type OAuthIdentity struct {
	Email      string
	ExternalID string
}

type OAuthExchanger interface {
	Exchange(ctx context.Context, code string) (*OAuthIdentity, error)
}

type CheckoutRequest struct {
	SessionToken   string
	PlanID         string
	PlanDescriptor string
	Email          string
	SuccessURL     string
	CancelURL      string
}

type PaymentInitiator interface {
	StartCheckout(
		ctx context.Context,
		req CheckoutRequest,
	) (checkoutURL string, err error)
}

// PlanInfo is the immutable plan snapshot taken at session start. The
// session keeps its own copy; later catalog edits never move a session
// between the free and paid branches mid-journey.
type PlanInfo struct {
	ID         string
	Descriptor string
	Name       string
	Paid       bool
	PriceRef   string
}

type PlanCatalog interface {
	GetPlan(ctx context.Context, descriptor string) (*PlanInfo, error)
}

type AccountResult struct {
	UserID       string
	WorkspaceID  string
	AccessToken  string
	RefreshToken string
}

// AccountProvisioner turns a finished session into a real user and
// workspace. CreateAccount must be idempotent per session token: when the
// facade has to retry after a save conflict, the provisioner returns the
// account already created for this session rather than making another.
type AccountProvisioner interface {
	DescriptorTaken(ctx context.Context, descriptor string) (bool, error)
	CreateAccount(ctx context.Context, s *Session) (*AccountResult, error)
}
