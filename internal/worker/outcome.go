package worker

// OutcomeKind is the result of one engine invocation.
type OutcomeKind int

const (
	// Continue means the invocation finished.
	Continue OutcomeKind = iota
	// Retry means credentials changed and the invocation must be repeated.
	Retry
	// Fail means the engine reported a non-authentication error.
	Fail
)

func (k OutcomeKind) String() string {
	switch k {
	case Retry:
		return "retry"
	case Fail:
		return "fail"
	default:
		return "continue"
	}
}

// Outcome is the tagged result of Session.invoke.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}
