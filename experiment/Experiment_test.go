package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/agent/nonlinear/continuous/arddpg"
	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/environment/classiccontrol/integrator"
	"github.com/actionrobust/arrl/experiment/checkpointer"
	"github.com/actionrobust/arrl/experiment/tracker"
	"github.com/actionrobust/arrl/initwfn"
	"github.com/actionrobust/arrl/network"
	"github.com/actionrobust/arrl/solver"
)

func testEnv(t *testing.T, seed uint64) environment.Environment {
	t.Helper()
	bounds := []r1.Interval{{Min: -1.0, Max: 1.0}}
	starter := environment.NewUniformStarter(bounds, seed)
	task := integrator.NewHold(starter, 25)
	env, _ := integrator.New(task, 0.99)
	return env
}

func testAgent(t *testing.T, env environment.Environment,
	method arddpg.MDPType, alpha float64, paramNoise bool,
	seed uint64) *arddpg.ARDDPG {
	t.Helper()

	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}
	newSolver := func() *solver.Solver {
		s, err := solver.NewDefaultAdam(1e-3, 4)
		if err != nil {
			t.Fatalf("could not create solver: %v", err)
		}
		return s
	}

	config := arddpg.Config{
		PolicyLayers:      []int{8},
		PolicyBiases:      []bool{true},
		PolicyActivations: []*network.Activation{network.ReLU()},
		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},
		InitWFn:           init,
		PolicySolver:      newSolver(),
		AdversarySolver:   newSolver(),
		CriticSolver:      newSolver(),
		Method:            method,
		ExplorationMethod: method,
		Alpha:             alpha,
		Gamma:             0.99,
		Tau:               0.01,
		BatchSize:         4,
		ReplayCapacity:    2048,
		MinReplayCapacity: 4,
		AdversaryRatio:    1,
		NoiseScale:        0.2,
		ParamNoise:        paramNoise,
	}

	agent, err := arddpg.New(env, config, seed)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	return agent
}

// runExperiment runs a fresh experiment with the given agent and
// loop configuration and returns its tracked results
func runExperiment(t *testing.T, agent *arddpg.ARDDPG, envSeed uint64,
	config Config) (*tracker.Tracker, tracker.Results) {
	t.Helper()

	env := testEnv(t, envSeed)
	evalEnv := testEnv(t, envSeed+1)

	track, err := tracker.New(t.TempDir())
	if err != nil {
		t.Fatalf("could not create tracker: %v", err)
	}
	e, err := New(env, evalEnv, agent, track, nil, config)
	if err != nil {
		t.Fatalf("could not create experiment: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("experiment failed: %v", err)
	}
	return track, track.Results()
}

// TestConfigEpochs checks the epoch count arithmetic
func TestConfigEpochs(t *testing.T) {
	c := Config{TotalSteps: 2000, CyclesPerEpoch: 20, RolloutSteps: 100}
	if c.Epochs() != 1 {
		t.Errorf("expected 1 epoch, got %v", c.Epochs())
	}

	c = Config{TotalSteps: 4000, CyclesPerEpoch: 2, RolloutSteps: 100}
	if c.Epochs() != 20 {
		t.Errorf("expected 20 epochs, got %v", c.Epochs())
	}
}

// TestExperimentRun runs a short experiment end to end and checks the
// artifacts it leaves behind
func TestExperimentRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end experiment")
	}

	env := testEnv(t, 14)
	evalEnv := testEnv(t, 15)
	agent := testAgent(t, env, arddpg.NrMDP, 0.1, false, 14)

	dir := t.TempDir()
	track, err := tracker.New(dir)
	if err != nil {
		t.Fatalf("could not create tracker: %v", err)
	}
	check, err := checkpointer.New(dir)
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	config := Config{
		TotalSteps:     60,
		CyclesPerEpoch: 3,
		RolloutSteps:   10,
		TrainSteps:     2,
		SaveDataset:    true,
	}
	e, err := New(env, evalEnv, agent, track, check, config)
	if err != nil {
		t.Fatalf("could not create experiment: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("experiment failed: %v", err)
	}

	results := track.Results()
	if len(results.EvalRewards) != 6 {
		t.Errorf("expected 6 eval rewards, got %v", len(results.EvalRewards))
	}
	if len(results.TrainRewards) == 0 {
		t.Error("no train rewards were recorded")
	}
	if len(results.ValueLosses) == 0 {
		t.Error("no value losses were recorded")
	}

	for _, name := range []string{"results.json", "dataset.json",
		CheckpointName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected artifact %v: %v", name, err)
		}
	}
}

// TestParamNoiseAdaptsOnUpdates checks that parameter noise adaptation
// follows the update schedule: the deviation only moves when parameter
// updates are performed, no matter how many environment steps are
// collected
func TestParamNoiseAdaptsOnUpdates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end experiment")
	}

	config := Config{
		TotalSteps:         40,
		CyclesPerEpoch:     2,
		RolloutSteps:       10,
		TrainSteps:         0,
		ParamNoiseInterval: 1,
	}

	// With no updates the deviation must stay at the noise scale
	idle := testAgent(t, testEnv(t, 14), arddpg.MDP, 0.0, true, 14)
	runExperiment(t, idle, 14, config)
	if got := idle.ParamNoiseStddev(); got != 0.2 {
		t.Errorf("deviation moved to %v without any parameter updates", got)
	}

	config.TrainSteps = 2
	trained := testAgent(t, testEnv(t, 14), arddpg.MDP, 0.0, true, 14)
	runExperiment(t, trained, 14, config)
	if got := trained.ParamNoiseStddev(); got == 0.2 {
		t.Error("deviation did not adapt over parameter updates")
	}
}

// firstEvals returns the mean of the first n recorded evaluation
// returns
func firstEvals(points []tracker.Point, n int) float64 {
	sum := 0.0
	for _, p := range points[:n] {
		sum += p.Value
	}
	return sum / float64(n)
}

// lastEvals returns the mean of the last n recorded evaluation returns
func lastEvals(points []tracker.Point, n int) float64 {
	sum := 0.0
	for _, p := range points[len(points)-n:] {
		sum += p.Value
	}
	return sum / float64(n)
}

func learningConfig() Config {
	return Config{
		TotalSteps:     2000,
		CyclesPerEpoch: 10,
		RolloutSteps:   50,
		TrainSteps:     50,
	}
}

// TestExperimentLearnsIntegrator checks that plain ddpg on the
// one-dimensional integrator improves its evaluation return over the
// start of training
func TestExperimentLearnsIntegrator(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end experiment")
	}

	agent := testAgent(t, testEnv(t, 14), arddpg.MDP, 0.0, false, 14)
	_, results := runExperiment(t, agent, 14, learningConfig())

	evals := results.EvalRewards
	if len(evals) < 10 {
		t.Fatalf("expected at least 10 evaluation returns, got %v",
			len(evals))
	}
	before := firstEvals(evals, 5)
	after := lastEvals(evals, 5)
	if after <= before {
		t.Errorf("evaluation return did not improve: %v at the start, %v "+
			"at the end", before, after)
	}
}

// TestAdversaryControlDegradesEvaluation checks that handing the
// adversary full control of the noisy robust action blocks protagonist
// learning relative to a protagonist-only combination
func TestAdversaryControlDegradesEvaluation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end to end experiment")
	}

	protagonistOnly := testAgent(t, testEnv(t, 14), arddpg.NrMDP, 0.0,
		false, 14)
	_, alpha0 := runExperiment(t, protagonistOnly, 14, learningConfig())

	adversaryControl := testAgent(t, testEnv(t, 14), arddpg.NrMDP, 1.0,
		false, 14)
	_, alpha1 := runExperiment(t, adversaryControl, 14, learningConfig())

	// With full adversary control the protagonist's actions never reach
	// the environment and its gradient is scaled to zero, so its
	// evaluation trajectory cannot beat the protagonist-only run
	after0 := lastEvals(alpha0.EvalRewards, 5)
	after1 := lastEvals(alpha1.EvalRewards, 5)
	if after1 > after0+1.0 {
		t.Errorf("adversary-controlled run evaluated at %v, better than "+
			"the protagonist-only run at %v", after1, after0)
	}
}
