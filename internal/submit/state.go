package submit

import "fmt"

type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var allowedTransitions = map[State]map[State]bool{
	StateIdle: {
		StateValidating: true,
	},
	StateValidating: {
		StateIdle:       true, // validation rejected the files
		StateSubmitting: true,
	},
	StateSubmitting: {
		StateSucceeded: true,
		StateFailed:    true,
	},
	StateSucceeded: {
		StateIdle: true,
	},
	StateFailed: {
		StateIdle: true,
	},
}

func IsKnownState(s State) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func transition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid submission state transition: %q -> %q", from, to)
	}
	return nil
}
