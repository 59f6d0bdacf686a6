package invoke

// Transition is what the driver does after an attempt.
type Transition int

const (
	Succeed Transition = iota
	Retry
	NextEndpoint
	Abort
)

func (t Transition) String() string {
	switch t {
	case Succeed:
		return "succeed"
	case Retry:
		return "retry"
	case NextEndpoint:
		return "next_endpoint"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// transitions is the per-outcome action before the retry budget is applied.
// A terminal outcome aborts the whole call, not only the current endpoint.
var transitions = map[OutcomeKind]Transition{
	OutcomeSuccess:   Succeed,
	OutcomeRetryable: Retry,
	OutcomeTerminal:  Abort,
}

// Next returns the transition for an outcome on the given 1-based attempt.
// A retry on the last allowed attempt becomes a move to the next endpoint.
func Next(kind OutcomeKind, attempt, maxAttempts int) Transition {
	t, ok := transitions[kind]
	if !ok {
		return Abort
	}
	if t == Retry && attempt >= maxAttempts {
		return NextEndpoint
	}
	return t
}
