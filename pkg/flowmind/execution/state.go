package execution

// State is a step of the execution protocol.
type State int

// Protocol states. A request moves Idle → Validating → Submitting →
// AwaitingResponse → Settled → Idle; a missing entry node goes from
// Validating straight to Settled.
const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateAwaitingResponse
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Outcome is how a submission ended.
type Outcome int

const (
	// OutcomeDropped means the message was blank or another request was
	// pending. Nothing was appended and nothing was sent.
	OutcomeDropped Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "dropped"
	}
}

// Result reports a finished submission.
type Result struct {
	Outcome Outcome
	// Reply is the assistant turn that was appended, if any.
	Reply string
	// Sources lists the documents the service cited, if any.
	Sources []string
	// Err is the failure behind an OutcomeFailure.
	Err error
}
