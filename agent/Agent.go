// Package agent defines the interfaces that agents implement
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/actionrobust/arrl/timestep"
)

// Agent determines the implementation details of an agent or algorithm
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated
type Learner interface {
	// Step updates the learner's weights from stored experience
	Step() error

	// Observe records the action taken in the last state and the
	// timestep it produced
	Observe(action mat.Vector, timestep timestep.TimeStep) error

	// ObserveFirst records the first timestep of an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs any cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can use to select actions
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense

	// Eval sets the policy to evaluation mode, in which actions are
	// deterministic
	Eval()

	// Train sets the policy to training mode, in which actions are
	// perturbed for exploration
	Train()

	// IsEval returns whether the policy is in evaluation mode
	IsEval() bool
}
