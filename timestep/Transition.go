package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single environmental transition
// (state, action, mask, next state, reward). The mask is 0.0 when the
// transition enters a terminal state and 1.0 otherwise, so that
// bootstrapped values are zeroed at episode termination. Transitions
// are stored by value and never mutated once constructed.
type Transition struct {
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Mask      float64
	NextState mat.Vector
}

// NewTransition constructs a Transition from two consecutive timesteps
// and the action that led from the first to the second.
func NewTransition(step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	mask := 1.0
	if nextStep.TerminatesEpisode() {
		mask = 0.0
	}

	return Transition{
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		Mask:      mask,
		NextState: nextStep.Observation,
	}
}
