// pkg/state/state.go - run state threaded through the provisioning workflow.

package state

import "fmt"

// Phase is where a provisioning run stands across its two process lifetimes.
type Phase string

const (
	PhaseFresh          Phase = "Fresh"
	PhaseAwaitingReboot Phase = "AwaitingReboot"
	PhaseResumed        Phase = "Resumed"
	PhaseComplete       Phase = "Complete"
)

// RunState is computed at start-up and passed explicitly between stages.
type RunState struct {
	HasResumed  bool
	NeedRestart bool
	Phase       Phase
}

// New returns the initial state for an invocation.
func New(hasResumed bool) RunState {
	rs := RunState{HasResumed: hasResumed, Phase: PhaseFresh}
	if hasResumed {
		rs.Phase = PhaseResumed
	}
	return rs
}

// WithRestart returns a copy of rs with NeedRestart set.
func (rs RunState) WithRestart(need bool) RunState {
	rs.NeedRestart = need
	return rs
}

// Advance moves rs to next, rejecting transitions the workflow never makes.
func (rs RunState) Advance(next Phase) (RunState, error) {
	if !rs.Phase.canMoveTo(next) {
		return rs, fmt.Errorf("invalid phase transition %s -> %s", rs.Phase, next)
	}
	rs.Phase = next
	return rs, nil
}

func (p Phase) canMoveTo(next Phase) bool {
	switch p {
	case PhaseFresh:
		return next == PhaseAwaitingReboot || next == PhaseComplete
	case PhaseAwaitingReboot:
		return next == PhaseResumed
	case PhaseResumed:
		return next == PhaseComplete
	}
	return false
}
