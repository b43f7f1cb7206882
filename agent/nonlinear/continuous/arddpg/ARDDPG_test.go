package arddpg

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/environment/classiccontrol/integrator"
	"github.com/actionrobust/arrl/initwfn"
	"github.com/actionrobust/arrl/network"
	"github.com/actionrobust/arrl/solver"
	"github.com/actionrobust/arrl/timestep"
)

func testEnv(t *testing.T, seed uint64) (environment.Environment,
	timestep.TimeStep) {
	t.Helper()
	bounds := []r1.Interval{{Min: -1.0, Max: 1.0}}
	starter := environment.NewUniformStarter(bounds, seed)
	task := integrator.NewHold(starter, 200)
	env, first := integrator.New(task, 0.99)
	return env, first
}

func testConfig(t *testing.T, method MDPType, alpha float64,
	ratio int) Config {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}
	policySolver, err := solver.NewDefaultAdam(1e-3, 4)
	if err != nil {
		t.Fatalf("could not create policy solver: %v", err)
	}
	adversarySolver, err := solver.NewDefaultAdam(1e-3, 4)
	if err != nil {
		t.Fatalf("could not create adversary solver: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(1e-3, 4)
	if err != nil {
		t.Fatalf("could not create critic solver: %v", err)
	}

	return Config{
		PolicyLayers:      []int{8},
		PolicyBiases:      []bool{true},
		PolicyActivations: []*network.Activation{network.ReLU()},
		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},
		InitWFn:           init,
		PolicySolver:      policySolver,
		AdversarySolver:   adversarySolver,
		CriticSolver:      criticSolver,
		Method:            method,
		ExplorationMethod: method,
		Alpha:             alpha,
		Gamma:             0.99,
		Tau:               0.01,
		BatchSize:         4,
		ReplayCapacity:    64,
		MinReplayCapacity: 4,
		AdversaryRatio:    ratio,
	}
}

// fillReplay runs random steps in the environment so that the replay
// buffer can provide batches
func fillReplay(t *testing.T, agent *ARDDPG,
	env environment.Environment, first timestep.TimeStep, steps int) {
	t.Helper()
	if err := agent.ObserveFirst(first); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}
	step := first
	for i := 0; i < steps; i++ {
		action := agent.SelectAction(step)
		next, _ := env.Step(action)
		if err := agent.Observe(action, next); err != nil {
			t.Fatalf("could not observe step: %v", err)
		}
		step = next
	}
}

// TestCombineActions checks the convex combination of protagonist and
// adversary actions
func TestCombineActions(t *testing.T) {
	protagonist := []float64{1.0, -1.0, 0.5}
	adversary := []float64{-1.0, 1.0, 0.0}

	combined := combineActions(0.25, protagonist, adversary)
	expected := []float64{0.5, -0.5, 0.375}
	for i := range expected {
		if math.Abs(combined[i]-expected[i]) > 1e-12 {
			t.Errorf("expected combined action %v at index %v, got %v",
				expected[i], i, combined[i])
		}
	}

	// Alpha 0 ignores the adversary, alpha 1 ignores the protagonist
	for i, c := range combineActions(0.0, protagonist, adversary) {
		if c != protagonist[i] {
			t.Errorf("alpha 0 should return the protagonist action")
		}
	}
	for i, c := range combineActions(1.0, protagonist, adversary) {
		if c != adversary[i] {
			t.Errorf("alpha 1 should return the adversary action")
		}
	}
}

// TestAdversaryTurnSchedule checks that the adversary trains once
// every AdversaryRatio+1 updates and that FlipRatio inverts the
// schedule
func TestAdversaryTurnSchedule(t *testing.T) {
	agent := &ARDDPG{config: Config{Method: PrMDP, AdversaryRatio: 2}}
	expected := []bool{false, false, true, false, false, true}
	for i, want := range expected {
		if got := agent.adversaryTurn(); got != want {
			t.Errorf("update %v: expected adversary turn %v, got %v", i,
				want, got)
		}
	}

	flipped := &ARDDPG{config: Config{
		Method: PrMDP, AdversaryRatio: 2, FlipRatio: true,
	}}
	for i, want := range expected {
		if got := flipped.adversaryTurn(); got == want {
			t.Errorf("update %v: flipped schedule should invert turn %v", i,
				want)
		}
	}

	// Plain ddpg never trains the adversary but still counts its
	// updates
	plain := &ARDDPG{config: Config{Method: MDP, AdversaryRatio: 0}}
	for i := 0; i < 5; i++ {
		if plain.adversaryTurn() {
			t.Error("plain ddpg should never train the adversary")
		}
	}
	if plain.TotalUpdates() != 5 {
		t.Errorf("expected 5 recorded updates, got %v", plain.TotalUpdates())
	}
}

// TestParamNoiseInitialStddev checks that the parameter noise deviation
// starts at the configured noise scale
func TestParamNoiseInitialStddev(t *testing.T) {
	env, _ := testEnv(t, 14)
	config := testConfig(t, MDP, 0.0, 0)
	config.ParamNoise = true
	config.NoiseScale = 0.3

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if got := agent.ParamNoiseStddev(); got != 0.3 {
		t.Errorf("expected initial deviation 0.3, got %v", got)
	}
}

// TestSelectActionEval checks that evaluation actions are
// deterministic and bounded
func TestSelectActionEval(t *testing.T) {
	env, first := testEnv(t, 14)
	config := testConfig(t, NrMDP, 0.3, 1)
	config.NoiseScale = 0.2

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	agent.Eval()

	action1 := agent.SelectAction(first)
	action2 := agent.SelectAction(first)
	for i := 0; i < action1.Len(); i++ {
		if action1.AtVec(i) != action2.AtVec(i) {
			t.Errorf("evaluation actions differ at index %v: %v != %v", i,
				action1.AtVec(i), action2.AtVec(i))
		}
		if math.Abs(action1.AtVec(i)) > 1.0 {
			t.Errorf("evaluation action %v out of bounds", action1.AtVec(i))
		}
	}
}

// TestSelectActionPrMDPMixing checks that under the probabilistic
// formulation control passes to the adversary at the configured rate
func TestSelectActionPrMDPMixing(t *testing.T) {
	env, first := testEnv(t, 14)
	alpha := 0.5
	config := testConfig(t, PrMDP, alpha, 10)

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}

	// With no exploration noise each draw returns either the
	// protagonist's or the adversary's mean action for the fixed state
	draws := 2000
	adversaryDraws := 0
	for i := 0; i < draws; i++ {
		action, protagonistMean, adversaryMean :=
			agent.SelectActionWithMeans(first)
		switch action.AtVec(0) {
		case adversaryMean.AtVec(0):
			adversaryDraws++
		case protagonistMean.AtVec(0):
		default:
			t.Fatalf("draw %v returned %v, which is neither mean (%v, %v)",
				i, action.AtVec(0), protagonistMean.AtVec(0),
				adversaryMean.AtVec(0))
		}
	}

	frequency := float64(adversaryDraws) / float64(draws)
	if math.Abs(frequency-alpha) > 0.05 {
		t.Errorf("adversary controlled %v of draws, expected close to %v",
			frequency, alpha)
	}
}

// TestUpdateParametersLossPattern checks that each update trains the
// critic and exactly one policy, reporting NaN for the loss of the
// policy that was not trained
func TestUpdateParametersLossPattern(t *testing.T) {
	env, first := testEnv(t, 14)
	config := testConfig(t, NrMDP, 0.1, 1)
	config.NoiseScale = 0.2

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	fillReplay(t, agent, env, first, 16)

	// Ratio 1 alternates protagonist and adversary updates
	for i := 0; i < 4; i++ {
		valueLoss, policyLoss, adversaryLoss, err := agent.UpdateParameters()
		if err != nil {
			t.Fatalf("update %v failed: %v", i, err)
		}
		if math.IsNaN(valueLoss) || math.IsInf(valueLoss, 0) {
			t.Errorf("update %v: value loss is not finite: %v", i, valueLoss)
		}

		adversaryTurn := i%2 == 1
		if adversaryTurn {
			if !math.IsNaN(policyLoss) {
				t.Errorf("update %v: expected NaN policy loss on an "+
					"adversary turn, got %v", i, policyLoss)
			}
			if math.IsNaN(adversaryLoss) || math.IsInf(adversaryLoss, 0) {
				t.Errorf("update %v: adversary loss is not finite: %v", i,
					adversaryLoss)
			}
		} else {
			if !math.IsNaN(adversaryLoss) {
				t.Errorf("update %v: expected NaN adversary loss on a "+
					"protagonist turn, got %v", i, adversaryLoss)
			}
			if math.IsNaN(policyLoss) || math.IsInf(policyLoss, 0) {
				t.Errorf("update %v: policy loss is not finite: %v", i,
					policyLoss)
			}
		}
	}
}

// TestUpdateParametersInsufficientSamples checks that updating with an
// underfull replay buffer fails
func TestUpdateParametersInsufficientSamples(t *testing.T) {
	env, first := testEnv(t, 14)
	config := testConfig(t, MDP, 0.0, 0)

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	if err := agent.ObserveFirst(first); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}

	if _, _, _, err := agent.UpdateParameters(); err == nil {
		t.Error("expected an error when updating with an empty buffer")
	}
}

// TestGobRoundTrip checks that an agent's weights survive a gob round
// trip into a second agent with the same configuration
func TestGobRoundTrip(t *testing.T) {
	env, first := testEnv(t, 14)
	config := testConfig(t, NrMDP, 0.1, 1)

	agent, err := New(env, config, 14)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	fillReplay(t, agent, env, first, 8)
	if _, _, _, err := agent.UpdateParameters(); err != nil {
		t.Fatalf("could not update agent: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(agent); err != nil {
		t.Fatalf("could not encode agent: %v", err)
	}

	restored, err := New(env, config, 15)
	if err != nil {
		t.Fatalf("could not create second agent: %v", err)
	}
	if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
		t.Fatalf("could not decode agent: %v", err)
	}

	sources := agent.actor.Learnables()
	dests := restored.actor.Learnables()
	for i := range sources {
		sourceData := sources[i].Value().Data().([]float64)
		destData := dests[i].Value().Data().([]float64)
		for j := range sourceData {
			if sourceData[j] != destData[j] {
				t.Fatalf("restored weights differ in learnable %v at "+
					"index %v", i, j)
			}
		}
	}

	if restored.TotalUpdates() != agent.TotalUpdates() {
		t.Errorf("restored update count %v, expected %v",
			restored.TotalUpdates(), agent.TotalUpdates())
	}
}
