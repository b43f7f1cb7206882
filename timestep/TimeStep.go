// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes why an episode ended. An episode may end because
// the environment reached a terminal state, because a timestep limit
// cut the episode off, or not at all.
type EndType int

const (
	NilEnd EndType = iota
	TerminalStateEnd
	TimeoutEnd
)

func (e EndType) String() string {
	switch e {
	case TerminalStateEnd:
		return "TerminalState"
	case TimeoutEnd:
		return "Timeout"
	default:
		return "Nil"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	EndType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

// New constructs a new TimeStep with a nil end type
func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, NilEnd, r, d, o, n}
}

// SetEnd sets the reason the episode ended at this TimeStep
func (t *TimeStep) SetEnd(e EndType) {
	t.EndType = e
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// TerminatesEpisode returns whether the TimeStep ends an episode in a
// terminal state. Episodes cut off by a timestep limit do not
// terminate, and value bootstrapping should continue through them.
func (t *TimeStep) TerminatesEpisode() bool {
	return t.StepType == Last && t.EndType == TerminalStateEnd
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
