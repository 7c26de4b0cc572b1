// AngelaMos | 2026
// event.go

package onboarding

type EventKind string

const (
	EventSelectPlan     EventKind = "select_plan"
	EventRequestOTP     EventKind = "request_otp"
	EventVerifyOTP      EventKind = "verify_otp"
	EventOAuthExchange  EventKind = "oauth_exchange"
	EventSetBusiness    EventKind = "set_business"
	EventStartPayment   EventKind = "start_payment"
	EventConfirmPayment EventKind = "confirm_payment"
	EventComplete       EventKind = "complete"
	EventCancel         EventKind = "cancel"
)

// Event is the tagged union of everything that can happen to a session.
// Payloads are validated at the HTTP boundary before they reach the engine.
type Event interface {
	Kind() EventKind
}

// SelectPlan only ever creates a session; submitting it against an
// existing token is rejected. Switching plans restarts onboarding.
type SelectPlan struct {
	PlanDescriptor string
	Email          string
}

func (SelectPlan) Kind() EventKind { return EventSelectPlan }

type RequestOTP struct{}

func (RequestOTP) Kind() EventKind { return EventRequestOTP }

type VerifyOTP struct {
	Code string
}

func (VerifyOTP) Kind() EventKind { return EventVerifyOTP }

type OAuthExchange struct {
	Code string
}

func (OAuthExchange) Kind() EventKind { return EventOAuthExchange }

type SetBusiness struct {
	Draft BusinessDraft
}

func (SetBusiness) Kind() EventKind { return EventSetBusiness }

type StartPayment struct {
	SuccessURL string
	CancelURL  string
}

func (StartPayment) Kind() EventKind { return EventStartPayment }

// ConfirmPayment may only originate from the trusted provider callback.
// The HTTP layer enforces the shared-secret guard; a client-visible
// success redirect is a UI hint, never a confirmation.
type ConfirmPayment struct{}

func (ConfirmPayment) Kind() EventKind { return EventConfirmPayment }

type Complete struct{}

func (Complete) Kind() EventKind { return EventComplete }

type Cancel struct{}

func (Cancel) Kind() EventKind { return EventCancel }
