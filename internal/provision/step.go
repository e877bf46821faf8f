package provision

import "context"

// Policy is what a step's failure means for the rest of the sequence.
type Policy int

const (
	// Required failures park the host in Failed; later steps are skipped.
	Required Policy = iota

	// BestEffort failures are recorded and logged, then the sequence
	// continues.
	BestEffort
)

// String returns the policy name.
func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "required"
}

// StepStatus is the outcome of one step on one host.
type StepStatus int

const (
	// Succeeded means the step ran without error.
	Succeeded StepStatus = iota

	// StepFailed means the step ran and returned an error.
	StepFailed

	// Skipped means the step never ran: its guard wasn't met, an
	// earlier required step failed, or the run was cancelled.
	Skipped
)

// String returns the status name.
func (s StepStatus) String() string {
	switch s {
	case Succeeded:
		return "ok"
	case StepFailed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// StepResult records what one step did on one host.
type StepResult struct {
	Name    string
	Status  StepStatus
	Changed bool
	Message string
	Err     error
}

// Step is one operation in the provisioning sequence.
type Step struct {
	// Name identifies the step in results and logs.
	Name string

	// Policy decides whether a failure stops the host.
	Policy Policy

	// Guard is the minimum state the host must have reached. A host
	// below the guard skips the step.
	Guard State

	// Advance is the state the host moves to after the step succeeds
	// (when higher than its current state).
	Advance State

	// Run performs the operation. It returns whether anything on the
	// host changed.
	Run func(ctx context.Context, hc *HostContext) (changed bool, err error)
}
