// Command arrl trains an action-robust DDPG agent on a classic
// control environment. Results, the collected dataset, and agent
// checkpoints are written under the run directory, whose layout
// encodes the environment, the exploration noise, the robustness
// method, and the seed.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/actionrobust/arrl/agent/nonlinear/continuous/arddpg"
	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/environment/classiccontrol/integrator"
	"github.com/actionrobust/arrl/environment/classiccontrol/pendulum"
	"github.com/actionrobust/arrl/environment/wrappers"
	"github.com/actionrobust/arrl/experiment"
	"github.com/actionrobust/arrl/experiment/checkpointer"
	"github.com/actionrobust/arrl/experiment/tracker"
	"github.com/actionrobust/arrl/initwfn"
	"github.com/actionrobust/arrl/network"
	"github.com/actionrobust/arrl/solver"
)

type runFlags struct {
	envName           string
	method            string
	explorationMethod string
	alpha             float64
	gamma             float64
	tau               float64
	hidden            int
	actorLR           float64
	criticLR          float64
	batchSize         int
	replayCapacity    int
	ratio             int
	flipRatio         bool

	noiseScale         float64
	paramNoise         bool
	paramNoiseInterval int

	normalizeObs     bool
	normalizeReturns bool

	totalSteps     int
	cyclesPerEpoch int
	rolloutSteps   int
	trainSteps     int
	maxEpisodeLen  int
	saveDataset    bool

	outDir string
	seed   uint64
}

func main() {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "arrl",
		Short: "Train an action-robust DDPG agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
		SilenceUsage: true,
	}

	f := root.Flags()
	f.StringVar(&flags.envName, "env", "pendulum",
		"environment to train on (integrator, pendulum)")
	f.StringVar(&flags.method, "method", "mdp",
		"robustness formulation (mdp, pr_mdp, nr_mdp)")
	f.StringVar(&flags.explorationMethod, "exploration-method", "",
		"formulation used when collecting experience (defaults to --method)")
	f.Float64Var(&flags.alpha, "alpha", 0.1,
		"fraction of control given to the adversary")
	f.Float64Var(&flags.gamma, "gamma", 0.99, "discount factor")
	f.Float64Var(&flags.tau, "tau", 0.01, "target network update rate")
	f.IntVar(&flags.hidden, "hidden", 64, "hidden layer size")
	f.Float64Var(&flags.actorLR, "actor-lr", 1e-4,
		"policy learning rate")
	f.Float64Var(&flags.criticLR, "critic-lr", 1e-3,
		"critic learning rate")
	f.IntVar(&flags.batchSize, "batch-size", 64, "update batch size")
	f.IntVar(&flags.replayCapacity, "replay-capacity", 1000000,
		"replay buffer capacity")
	f.IntVar(&flags.ratio, "ratio", -1,
		"protagonist updates per adversary update "+
			"(default 10 for pr_mdp, otherwise 1)")
	f.BoolVar(&flags.flipRatio, "flip-ratio", false,
		"invert the update schedule")

	f.Float64Var(&flags.noiseScale, "noise-scale", 0.2,
		"exploration noise deviation")
	f.BoolVar(&flags.paramNoise, "param-noise", false,
		"use adaptive parameter space noise instead of action noise")
	f.IntVar(&flags.paramNoiseInterval, "param-noise-interval", 50,
		"steps between parameter noise adaptations")

	f.BoolVar(&flags.normalizeObs, "normalize-observations", true,
		"normalize observations by running statistics")
	f.BoolVar(&flags.normalizeReturns, "normalize-returns", false,
		"scale rewards by the running return deviation")

	f.IntVar(&flags.totalSteps, "steps", 2000000,
		"total environment steps")
	f.IntVar(&flags.cyclesPerEpoch, "cycles", 20, "cycles per epoch")
	f.IntVar(&flags.rolloutSteps, "rollout-steps", 100,
		"environment steps collected per cycle")
	f.IntVar(&flags.trainSteps, "train-steps", 50,
		"parameter updates per cycle")
	f.IntVar(&flags.maxEpisodeLen, "max-episode-length", 1000,
		"steps before an episode times out")
	f.BoolVar(&flags.saveDataset, "save-dataset", false,
		"export the collected transitions at the end of the run")

	f.StringVar(&flags.outDir, "out", "models",
		"root directory for run artifacts")
	f.Uint64Var(&flags.seed, "seed", 0, "random seed")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags *runFlags) error {
	method := arddpg.MDPType(flags.method)
	if !arddpg.ValidMDPType(method) {
		return fmt.Errorf("unknown method %q", flags.method)
	}
	explorationMethod := method
	if flags.explorationMethod != "" {
		explorationMethod = arddpg.MDPType(flags.explorationMethod)
		if !arddpg.ValidMDPType(explorationMethod) {
			return fmt.Errorf("unknown exploration method %q",
				flags.explorationMethod)
		}
	}

	ratio := flags.ratio
	if ratio < 0 {
		if method == arddpg.PrMDP {
			ratio = 10
		} else {
			ratio = 1
		}
	}

	env, err := makeEnv(flags, flags.seed)
	if err != nil {
		return err
	}
	evalEnv, err := makeEnv(flags, flags.seed+1)
	if err != nil {
		return err
	}

	agent, err := makeAgent(flags, env, method, explorationMethod, ratio)
	if err != nil {
		return err
	}

	runDir := runDirectory(flags, method, ratio)
	track, err := tracker.New(runDir)
	if err != nil {
		return err
	}
	check, err := checkpointer.New(runDir)
	if err != nil {
		return err
	}

	paramNoiseInterval := 0
	if flags.paramNoise {
		paramNoiseInterval = flags.paramNoiseInterval
	}
	config := experiment.Config{
		TotalSteps:         flags.totalSteps,
		CyclesPerEpoch:     flags.cyclesPerEpoch,
		RolloutSteps:       flags.rolloutSteps,
		TrainSteps:         flags.trainSteps,
		ParamNoiseInterval: paramNoiseInterval,
		SaveDataset:        flags.saveDataset,
	}

	e, err := experiment.New(env, evalEnv, agent, track, check, config)
	if err != nil {
		return err
	}

	fmt.Printf("Training %v on %v for %v steps, writing to %v\n",
		flags.method, flags.envName, flags.totalSteps, runDir)
	return e.Run()
}

// makeEnv constructs the named environment with actions normalized to
// [-1, 1]
func makeEnv(flags *runFlags, seed uint64) (environment.Environment,
	error) {
	var env environment.Environment
	switch flags.envName {
	case "integrator":
		bounds := []r1.Interval{{Min: -1.0, Max: 1.0}}
		starter := environment.NewUniformStarter(bounds, seed)
		task := integrator.NewHold(starter, flags.maxEpisodeLen)
		env, _ = integrator.New(task, flags.gamma)

	case "pendulum":
		bounds := []r1.Interval{
			{Min: -pendulum.AngleBound, Max: pendulum.AngleBound},
			{Min: -1.0, Max: 1.0},
		}
		starter := environment.NewUniformStarter(bounds, seed)
		task := pendulum.NewSwingUp(starter, flags.maxEpisodeLen)
		env, _ = pendulum.New(task, flags.gamma)

	default:
		return nil, fmt.Errorf("unknown environment %q", flags.envName)
	}

	return wrappers.NewNormalizeActions(env)
}

func makeAgent(flags *runFlags, env environment.Environment,
	method, explorationMethod arddpg.MDPType,
	ratio int) (*arddpg.ARDDPG, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return nil, err
	}
	policySolver, err := solver.NewDefaultAdam(flags.actorLR,
		flags.batchSize)
	if err != nil {
		return nil, err
	}
	adversarySolver, err := solver.NewDefaultAdam(flags.actorLR,
		flags.batchSize)
	if err != nil {
		return nil, err
	}
	criticSolver, err := solver.NewDefaultAdam(flags.criticLR,
		flags.batchSize)
	if err != nil {
		return nil, err
	}

	relu := network.ReLU()
	config := arddpg.Config{
		PolicyLayers:      []int{flags.hidden, flags.hidden},
		PolicyBiases:      []bool{true, true},
		PolicyActivations: []*network.Activation{relu, relu},
		CriticLayers:      []int{flags.hidden, flags.hidden},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{relu, relu},
		InitWFn:           init,
		PolicySolver:      policySolver,
		AdversarySolver:   adversarySolver,
		CriticSolver:      criticSolver,

		Method:            method,
		ExplorationMethod: explorationMethod,
		Alpha:             flags.alpha,
		Gamma:             flags.gamma,
		Tau:               flags.tau,

		BatchSize:         flags.batchSize,
		ReplayCapacity:    flags.replayCapacity,
		MinReplayCapacity: flags.batchSize,
		AdversaryRatio:    ratio,
		FlipRatio:         flags.flipRatio,

		NoiseScale: flags.noiseScale,
		ParamNoise: flags.paramNoise,

		NormalizeObservations: flags.normalizeObs,
		NormalizeReturns:      flags.normalizeReturns,
		ReturnClipping:        10.0,
	}

	return arddpg.New(env, config, flags.seed)
}

// runDirectory returns the directory for this run's artifacts:
// <out>/<env>/<noise>/<method>/seed_<seed>
func runDirectory(flags *runFlags, method arddpg.MDPType,
	ratio int) string {
	noiseTag := fmt.Sprintf("ou_%v", trimFloat(flags.noiseScale))
	if flags.paramNoise {
		noiseTag = fmt.Sprintf("param_noise_%v", trimFloat(flags.noiseScale))
	}

	methodTag := string(method)
	if method != arddpg.MDP {
		methodTag = fmt.Sprintf("%v_alpha_%v_ratio_%v", method,
			trimFloat(flags.alpha), ratio)
		if flags.flipRatio {
			methodTag += "_flip"
		}
	}

	return filepath.Join(flags.outDir, flags.envName, noiseTag, methodTag,
		fmt.Sprintf("seed_%v", flags.seed))
}

// trimFloat formats a float compactly for directory names
func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%v", v)
}
