// Package integrator implements a one-dimensional integrator
// environment. The state is a single real value that accumulates the
// agent's action each step, and the reward is the negative absolute
// value of the state. The optimal policy drives the state to 0 and
// holds it there, which makes the environment a cheap regression
// target for continuous-control agents.
package integrator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/timestep"
	"github.com/actionrobust/arrl/utils/floatutils"
)

const (
	MaxAction float64 = 1.0
	MinAction float64 = -MaxAction

	StateBound float64 = 10.0 // +/- state bounds

	ActionDims      int = 1
	ObservationDims int = 1
)

// Integrator implements the environment.Environment interface
type Integrator struct {
	environment.Task
	stateBounds r1.Interval
	lastStep    timestep.TimeStep
	discount    float64
}

// New creates and returns a new Integrator environment with the given
// task and discount
func New(t environment.Task, discount float64) (*Integrator, timestep.TimeStep) {
	stateBounds := r1.Interval{Min: -StateBound, Max: StateBound}

	state := t.Start()
	firstStep := timestep.New(timestep.First, 0.0, discount, state, 0)

	env := &Integrator{t, stateBounds, firstStep, discount}
	return env, firstStep
}

// Reset resets the environment and returns a starting state drawn from
// the Starter
func (i *Integrator) Reset() timestep.TimeStep {
	state := i.Start()
	startStep := timestep.New(timestep.First, 0, i.discount, state, 0)
	i.lastStep = startStep

	return startStep
}

// Step takes one environmental step given the action to apply,
// returning the next timestep and whether it is the last in the
// episode
func (i *Integrator) Step(action mat.Vector) (timestep.TimeStep, bool) {
	a := floatutils.Clip(action.AtVec(0), MinAction, MaxAction)

	x := i.lastStep.Observation.AtVec(0)
	newX := floatutils.ClipInterval(x+a, i.stateBounds)
	newState := mat.NewVecDense(1, []float64{newX})

	reward := i.GetReward(i.lastStep.Observation, action, newState)
	nextStep := timestep.New(timestep.Mid, reward, i.discount, newState,
		i.lastStep.Number+1)
	i.End(&nextStep)

	i.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// DiscountSpec returns the discount specification of the environment
func (i *Integrator) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{i.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (i *Integrator) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(ObservationDims, nil)
	lowerBound := mat.NewVecDense(ObservationDims, []float64{-StateBound})
	upperBound := mat.NewVecDense(ObservationDims, []float64{StateBound})

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (i *Integrator) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(ActionDims, nil)
	lowerBound := mat.NewVecDense(ActionDims, []float64{MinAction})
	upperBound := mat.NewVecDense(ActionDims, []float64{MaxAction})

	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// String converts the environment to a string representation
func (i *Integrator) String() string {
	return fmt.Sprintf("Integrator  |  x: %v\n", i.lastStep.Observation.AtVec(0))
}
