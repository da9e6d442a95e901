// Package supervisor drives a single test group controller through launch,
// wait and guaranteed cleanup, and classifies the result.
package supervisor

// Outcome classifies how a test group run ended.
type Outcome int

const (
	// OutcomeSuccess means the runner exited with status 0.
	OutcomeSuccess Outcome = iota

	// OutcomeFailure means the runner exited with a non-zero status.
	OutcomeFailure

	// OutcomeInterrupted means the run was cancelled by the user.
	OutcomeInterrupted

	// OutcomeLaunchError means the runner could not be started.
	OutcomeLaunchError
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeLaunchError:
		return "launch_error"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome counts as a failed group.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}

// Outcomes lists every outcome, for metric label initialisation.
var Outcomes = []Outcome{OutcomeSuccess, OutcomeFailure, OutcomeInterrupted, OutcomeLaunchError}
