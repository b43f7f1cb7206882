package integrator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/actionrobust/arrl/environment"
)

// Hold implements a task where the agent must drive the integrator
// state to 0 and hold it there. Rewards are the negative absolute
// value of the resulting state.
type Hold struct {
	environment.Starter
	environment.Ender
}

// NewHold creates and returns a new Hold task whose episodes are cut
// off after maxSteps timesteps
func NewHold(s environment.Starter, maxSteps int) *Hold {
	ender := environment.NewStepLimit(maxSteps)
	return &Hold{s, ender}
}

// GetReward gets the reward for a transition
func (h *Hold) GetReward(_ mat.Vector, _ mat.Vector, nextState mat.Vector) float64 {
	return -math.Abs(nextState.AtVec(0))
}

// AtGoal determines whether or not the current state is the goal state
func (h *Hold) AtGoal(state mat.Matrix) bool {
	return state.At(0, 0) == 0
}

// Min returns the minimum possible reward
func (h *Hold) Min() float64 {
	return -StateBound
}

// Max returns the maximum possible reward
func (h *Hold) Max() float64 {
	return 0.0
}
