// Package wrappers implements environment wrappers that modify the
// observations, actions, or rewards of the environments they wrap.
package wrappers

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/timestep"
	"github.com/actionrobust/arrl/utils/floatutils"
)

// normalizeActions wraps a continuous-action environment so that the
// agent acts in a normalized [-1, 1] action space. Actions are
// linearly rescaled to the wrapped environment's action bounds before
// being passed along, and are clipped to those bounds afterwards.
type normalizeActions struct {
	environment.Environment
	lower []float64
	upper []float64
}

// NewNormalizeActions creates and returns a new environment wrapping
// env so that its legal action range is [-1, 1] in every dimension
func NewNormalizeActions(env environment.Environment) (environment.Environment,
	error) {
	spec := env.ActionSpec()
	if spec.Cardinality != environment.Continuous {
		return nil, fmt.Errorf("newnormalizeactions: cannot normalize " +
			"discrete actions")
	}

	dims := spec.Shape.Len()
	lower := make([]float64, dims)
	upper := make([]float64, dims)
	for i := 0; i < dims; i++ {
		lower[i] = spec.LowerBound.AtVec(i)
		upper[i] = spec.UpperBound.AtVec(i)
	}

	return &normalizeActions{env, lower, upper}, nil
}

// Step rescales the normalized action to the wrapped environment's
// action range and takes one step in the wrapped environment
func (n *normalizeActions) Step(action mat.Vector) (timestep.TimeStep, bool) {
	scaled := mat.NewVecDense(action.Len(), nil)
	for i := 0; i < action.Len(); i++ {
		a := n.lower[i] + (action.AtVec(i)+1.0)/2.0*(n.upper[i]-n.lower[i])
		scaled.SetVec(i, floatutils.Clip(a, n.lower[i], n.upper[i]))
	}

	return n.Environment.Step(scaled)
}

// ActionSpec returns the action specification of the wrapped
// environment, rescaled to [-1, 1]
func (n *normalizeActions) ActionSpec() environment.Spec {
	spec := n.Environment.ActionSpec()
	dims := spec.Shape.Len()

	lowerBound := mat.NewVecDense(dims, nil)
	upperBound := mat.NewVecDense(dims, nil)
	for i := 0; i < dims; i++ {
		lowerBound.SetVec(i, -1.0)
		upperBound.SetVec(i, 1.0)
	}

	return environment.NewSpec(spec.Shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}
