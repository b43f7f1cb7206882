package wrappers

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/environment/classiccontrol/pendulum"
)

func swingUpEnv(t *testing.T) environment.Environment {
	t.Helper()
	bounds := []r1.Interval{
		{Min: -pendulum.AngleBound, Max: pendulum.AngleBound},
		{Min: -1.0, Max: 1.0},
	}
	starter := environment.NewUniformStarter(bounds, 14)
	task := pendulum.NewSwingUp(starter, 200)
	env, _ := pendulum.New(task, 0.99)
	return env
}

// TestActionSpecNormalized checks that the wrapper reports action
// bounds of [-1, 1] regardless of the wrapped environment's bounds
func TestActionSpecNormalized(t *testing.T) {
	env := swingUpEnv(t)
	wrapped, err := NewNormalizeActions(env)
	if err != nil {
		t.Fatalf("could not wrap environment: %v", err)
	}

	spec := wrapped.ActionSpec()
	for i := 0; i < spec.Shape.Len(); i++ {
		if spec.LowerBound.AtVec(i) != -1.0 {
			t.Errorf("expected lower bound -1, got %v",
				spec.LowerBound.AtVec(i))
		}
		if spec.UpperBound.AtVec(i) != 1.0 {
			t.Errorf("expected upper bound 1, got %v",
				spec.UpperBound.AtVec(i))
		}
	}

	// The observation spec passes through unchanged
	if wrapped.ObservationSpec().Shape.Len() != env.ObservationSpec().Shape.Len() {
		t.Error("observation spec was modified by the wrapper")
	}
}

// TestStepRescalesActions checks that normalized actions map linearly
// onto the wrapped environment's action range
func TestStepRescalesActions(t *testing.T) {
	env := swingUpEnv(t)
	wrapped, err := NewNormalizeActions(env)
	if err != nil {
		t.Fatalf("could not wrap environment: %v", err)
	}

	// An action of +1 applies the maximum torque, an action of -1 the
	// minimum. The pendulum dynamics are deterministic, so a rescaled
	// action through the wrapper must match the raw torque applied to
	// an identical environment directly.
	rawEnv := swingUpEnv(t)
	wrapped.Reset()
	rawEnv.Reset()

	wrappedStep, _ := wrapped.Step(mat.NewVecDense(1, []float64{1.0}))
	rawStep, _ := rawEnv.Step(mat.NewVecDense(1,
		[]float64{pendulum.MaxAction}))

	for i := 0; i < wrappedStep.Observation.Len(); i++ {
		diff := wrappedStep.Observation.AtVec(i) - rawStep.Observation.AtVec(i)
		if math.Abs(diff) > 1e-12 {
			t.Errorf("wrapped and raw observations differ at index %v: "+
				"%v != %v", i, wrappedStep.Observation.AtVec(i),
				rawStep.Observation.AtVec(i))
		}
	}

}

// discreteActionEnv overrides an environment's action spec to report
// discrete actions
type discreteActionEnv struct {
	environment.Environment
}

func (d discreteActionEnv) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{1})
	return environment.NewSpec(shape, environment.Action, bound, bound,
		environment.Discrete)
}

func TestRejectsDiscreteActions(t *testing.T) {
	env := discreteActionEnv{swingUpEnv(t)}
	if _, err := NewNormalizeActions(env); err == nil {
		t.Error("expected an error wrapping a discrete action environment")
	}
}
