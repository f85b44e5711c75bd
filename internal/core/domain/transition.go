package domain

const (
	NoTransition Transition = iota
	OpenTransition
	GoLiveTransition
	ExtendOpenTransition
	CancelTransition
	FinalStretchTransition
	SettlementClaimTransition
	DisbursementResumeTransition
)

// Transition identifies a step of the round state machine.
type Transition int

func (t Transition) String() string {
	switch t {
	case OpenTransition:
		return "open"
	case GoLiveTransition:
		return "go_live"
	case ExtendOpenTransition:
		return "extend_open"
	case CancelTransition:
		return "cancel"
	case FinalStretchTransition:
		return "final_stretch"
	case SettlementClaimTransition:
		return "settlement_claim"
	case DisbursementResumeTransition:
		return "disbursement_resume"
	default:
		return "none"
	}
}

type KeepAliveRejection string

const (
	KeepAliveTooEarly KeepAliveRejection = "too_early"
	KeepAliveTooLate  KeepAliveRejection = "too_late"
	// KeepAliveContended is used when the action lost every optimistic retry
	// against concurrent writers.
	KeepAliveContended KeepAliveRejection = "contended"
)
