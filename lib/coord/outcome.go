package coord

// Outcome is the terminal state of one coordinated operation.
type Outcome string

const (
	Committed       Outcome = "committed"
	AbortedBusy     Outcome = "aborted-busy"
	AbortedConflict Outcome = "aborted-conflict"
	AbortedError    Outcome = "aborted-error"
)

// Result is returned by every coordinator operation.
type Result struct {
	Outcome     Outcome
	Project     *Project
	Tasks       []Task
	Assignments []Assignment
	// Err is set for every outcome except Committed.
	Err error
	// Partial is set when the operation committed but a side effect failed.
	Partial *ProvisioningError
}

// OK reports whether the operation committed.
func (r Result) OK() bool {
	return r.Outcome == Committed
}

func outcomeOf(err error) Outcome {
	switch KindOf(err) {
	case "":
		return Committed
	case KindBusy:
		return AbortedBusy
	case KindConflict:
		return AbortedConflict
	default:
		return AbortedError
	}
}
