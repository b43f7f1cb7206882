package integrator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/timestep"
)

func fixedStartEnv(t *testing.T, start float64,
	maxSteps int) (*Integrator, timestep.TimeStep) {
	t.Helper()
	bounds := []r1.Interval{{Min: start, Max: start}}
	starter := environment.NewUniformStarter(bounds, 14)
	task := NewHold(starter, maxSteps)
	return New(task, 0.99)
}

// TestStepDynamics checks that the state accumulates clipped actions
// and is itself clipped to the state bounds
func TestStepDynamics(t *testing.T) {
	env, first := fixedStartEnv(t, 1.0, 1000)
	if first.Observation.AtVec(0) != 1.0 {
		t.Fatalf("expected starting state 1, got %v",
			first.Observation.AtVec(0))
	}

	// Actions outside [-1, 1] are clipped before integration
	next, _ := env.Step(mat.NewVecDense(1, []float64{5.0}))
	if next.Observation.AtVec(0) != 2.0 {
		t.Errorf("expected state 2 after clipped action, got %v",
			next.Observation.AtVec(0))
	}

	// The state saturates at the state bound
	for i := 0; i < 20; i++ {
		next, _ = env.Step(mat.NewVecDense(1, []float64{1.0}))
	}
	if next.Observation.AtVec(0) != StateBound {
		t.Errorf("expected state to saturate at %v, got %v", StateBound,
			next.Observation.AtVec(0))
	}
}

// TestHoldReward checks that the reward is the negative distance of
// the next state from the origin
func TestHoldReward(t *testing.T) {
	env, _ := fixedStartEnv(t, -2.0, 1000)

	next, _ := env.Step(mat.NewVecDense(1, []float64{0.5}))
	if math.Abs(next.Reward-(-1.5)) > 1e-12 {
		t.Errorf("expected reward -1.5, got %v", next.Reward)
	}

	next, _ = env.Step(mat.NewVecDense(1, []float64{1.0}))
	if math.Abs(next.Reward-(-0.5)) > 1e-12 {
		t.Errorf("expected reward -0.5, got %v", next.Reward)
	}
}

// TestStepLimit checks that the step limit cuts episodes off with a
// timeout rather than a terminal state
func TestStepLimit(t *testing.T) {
	env, _ := fixedStartEnv(t, 0.0, 3)

	var last timestep.TimeStep
	var done bool
	for i := 0; i < 3; i++ {
		if done {
			t.Fatalf("episode ended early at step %v", i)
		}
		last, done = env.Step(mat.NewVecDense(1, []float64{0.1}))
	}

	if !done || !last.Last() {
		t.Fatal("episode did not end at the step limit")
	}
	if last.EndType != timestep.TimeoutEnd {
		t.Errorf("expected a timeout end, got %v", last.EndType)
	}
	if last.TerminatesEpisode() {
		t.Error("a timeout should not be treated as a terminal state")
	}

	// Reset starts a fresh episode
	first := env.Reset()
	if !first.First() || first.Number != 0 {
		t.Errorf("reset did not return a first step: %v", first)
	}
}
