// AngelaMos | 2026
// stage.go

package onboarding

// Stage is the position of a session in the signup journey. Stages only
// move forward along the transition table; the designated retry loops
// (OTP resend, business re-edit, checkout restart) are self-edges.
type Stage string

const (
	StagePlanSelected     Stage = "plan_selected"
	StageIdentityPending  Stage = "identity_pending"
	StageIdentityVerified Stage = "identity_verified"
	StageBusinessStaged   Stage = "business_staged"
	StagePaymentPending   Stage = "payment_pending"
	StageReadyToCommit    Stage = "ready_to_commit"
	StageCompleted        Stage = "completed"
	StageCancelled        Stage = "cancelled"
)

func (s Stage) IsValid() bool {
	switch s {
	case StagePlanSelected,
		StageIdentityPending,
		StageIdentityVerified,
		StageBusinessStaged,
		StagePaymentPending,
		StageReadyToCommit,
		StageCompleted,
		StageCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further events are legal from s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// transition is a single allowed edge in the signup state machine.
// Cancel is handled separately: it is legal from every non-terminal stage.
type transition struct {
	event EventKind
	from  Stage
	to    Stage
}

// The to column for SetBusiness assumes a paid plan; the engine collapses
// business_staged into ready_to_commit for free plans, which never pass
// through payment.
var transitions = []transition{
	{EventRequestOTP, StagePlanSelected, StageIdentityPending},
	{EventRequestOTP, StageIdentityPending, StageIdentityPending},

	{EventVerifyOTP, StageIdentityPending, StageIdentityVerified},

	{EventOAuthExchange, StagePlanSelected, StageIdentityVerified},
	{EventOAuthExchange, StageIdentityPending, StageIdentityVerified},

	{EventSetBusiness, StageIdentityVerified, StageBusinessStaged},
	{EventSetBusiness, StageBusinessStaged, StageBusinessStaged},

	{EventStartPayment, StageBusinessStaged, StagePaymentPending},
	{EventStartPayment, StagePaymentPending, StagePaymentPending},

	{EventConfirmPayment, StagePaymentPending, StageReadyToCommit},

	{EventComplete, StageReadyToCommit, StageCompleted},
}

func transitionFor(from Stage, event EventKind) (Stage, bool) {
	for _, tr := range transitions {
		if tr.from == from && tr.event == event {
			return tr.to, true
		}
	}
	return "", false
}
