// Package experiment implements the training loop that ties an agent
// to an environment
package experiment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/actionrobust/arrl/agent/nonlinear/continuous/arddpg"
	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/experiment/checkpointer"
	"github.com/actionrobust/arrl/experiment/tracker"
	"github.com/actionrobust/arrl/expreplay"
	"github.com/actionrobust/arrl/timestep"
)

// CheckpointName is the file name of the agent checkpoint within the
// run directory
const CheckpointName = "agent.bin"

// Config implements the configuration of an experiment. Training is
// organized into epochs of cycles: each cycle collects RolloutSteps
// environment steps, performs TrainSteps parameter updates, and runs
// one evaluation episode. The number of epochs follows from
// TotalSteps.
type Config struct {
	TotalSteps         int
	CyclesPerEpoch     int
	RolloutSteps       int
	TrainSteps         int
	ParamNoiseInterval int
	SaveDataset        bool
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if c.TotalSteps <= 0 {
		return fmt.Errorf("validate: total steps must be > 0, got %v",
			c.TotalSteps)
	}
	if c.CyclesPerEpoch <= 0 {
		return fmt.Errorf("validate: cycles per epoch must be > 0, got %v",
			c.CyclesPerEpoch)
	}
	if c.RolloutSteps <= 0 {
		return fmt.Errorf("validate: rollout steps must be > 0, got %v",
			c.RolloutSteps)
	}
	if c.TrainSteps < 0 {
		return fmt.Errorf("validate: train steps must be >= 0, got %v",
			c.TrainSteps)
	}
	return nil
}

// Epochs returns the number of epochs the configuration spans
func (c Config) Epochs() int {
	return c.TotalSteps / (c.CyclesPerEpoch * c.RolloutSteps)
}

// Experiment runs an ARDDPG agent on an environment, recording
// results, collecting the transition dataset, and checkpointing along
// the way. A separate environment instance is used for evaluation so
// that evaluation episodes do not interrupt the training episode.
type Experiment struct {
	config  Config
	env     environment.Environment
	evalEnv environment.Environment
	agent   *arddpg.ARDDPG
	track   *tracker.Tracker
	dataset *tracker.Dataset
	check   *checkpointer.Checkpointer

	step          int
	episodeReturn float64
	currentStep   timestep.TimeStep
}

// New creates and returns a new Experiment. The checkpointer may be
// nil, in which case no checkpoints are saved.
func New(env, evalEnv environment.Environment, agent *arddpg.ARDDPG,
	track *tracker.Tracker, check *checkpointer.Checkpointer,
	c Config) (*Experiment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}

	e := &Experiment{
		config:  c,
		env:     env,
		evalEnv: evalEnv,
		agent:   agent,
		track:   track,
		check:   check,
	}
	if c.SaveDataset {
		e.dataset = tracker.NewDataset()
	}
	return e, nil
}

// Run runs the experiment to completion
func (e *Experiment) Run() error {
	e.currentStep = e.env.Reset()
	if err := e.agent.ObserveFirst(e.currentStep); err != nil {
		return fmt.Errorf("run: could not observe first step: %v", err)
	}
	e.agent.Train()

	epochs := e.config.Epochs()
	for epoch := 0; epoch < epochs; epoch++ {
		for cycle := 0; cycle < e.config.CyclesPerEpoch; cycle++ {
			if err := e.rollout(); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			if err := e.train(); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			if err := e.evaluate(); err != nil {
				return fmt.Errorf("run: %v", err)
			}
			if err := e.track.Save(); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}

		if e.check != nil {
			if err := e.check.Save(CheckpointName, e.agent); err != nil {
				return fmt.Errorf("run: %v", err)
			}
		}

		results := e.track.Results()
		if n := len(results.EvalRewards); n > 0 {
			fmt.Printf("Epoch %v/%v \t Steps %v \t Eval return %v\n",
				epoch+1, epochs, e.step,
				results.EvalRewards[n-1].Value)
		}
	}

	if e.dataset != nil {
		if err := e.dataset.Save(e.track.Dir()); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}
	return e.track.Save()
}

// rollout collects RolloutSteps environment steps of experience
func (e *Experiment) rollout() error {
	for t := 0; t < e.config.RolloutSteps; t++ {
		action, protagonistMean, adversaryMean :=
			e.agent.SelectActionWithMeans(e.currentStep)
		next, last := e.env.Step(action)
		if err := e.agent.Observe(action, next); err != nil {
			return fmt.Errorf("rollout: %v", err)
		}

		if e.dataset != nil {
			e.dataset.Add(tracker.Record{
				State:           vectorData(e.currentStep.Observation),
				Action:          vectorData(action),
				Reward:          next.Reward,
				NextState:       vectorData(next.Observation),
				Terminal:        next.TerminatesEpisode(),
				ProtagonistMean: vectorData(protagonistMean),
				AdversaryMean:   vectorData(adversaryMean),
			})
		}

		e.episodeReturn += next.Reward
		e.step++

		if last {
			e.track.AddTrainReward(e.step, e.episodeReturn)
			e.episodeReturn = 0
			e.agent.EndEpisode()
			if e.dataset != nil {
				e.dataset.EndEpisode()
			}

			e.currentStep = e.env.Reset()
			if err := e.agent.ObserveFirst(e.currentStep); err != nil {
				return fmt.Errorf("rollout: %v", err)
			}
			if err := e.agent.PerturbPolicy(); err != nil {
				return fmt.Errorf("rollout: %v", err)
			}
		} else {
			e.currentStep = next
		}
	}
	return nil
}

// train performs TrainSteps parameter updates and records the mean
// losses. Updates are skipped while the replay buffer cannot yet
// provide a batch. Parameter noise is adapted and re-applied once
// every ParamNoiseInterval updates. Only the player trained on a given
// update reports a loss; the NaN placeholders of the other player are
// excluded from the means.
func (e *Experiment) train() error {
	var valueSum, policySum, adversarySum float64
	var valueN, policyN, adversaryN int

	for t := 0; t < e.config.TrainSteps; t++ {
		if e.config.ParamNoiseInterval > 0 &&
			e.agent.TotalUpdates()%e.config.ParamNoiseInterval == 0 {
			if err := e.agent.AdaptNoise(); err != nil {
				return fmt.Errorf("train: %v", err)
			}
			if err := e.agent.PerturbPolicy(); err != nil {
				return fmt.Errorf("train: %v", err)
			}
		}

		valueLoss, policyLoss, adversaryLoss, err := e.agent.UpdateParameters()
		if expreplay.IsEmptyBuffer(err) ||
			expreplay.IsInsufficientSamples(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("train: %v", err)
		}

		if !math.IsNaN(valueLoss) {
			valueSum += valueLoss
			valueN++
		}
		if !math.IsNaN(policyLoss) {
			policySum += policyLoss
			policyN++
		}
		if !math.IsNaN(adversaryLoss) {
			adversarySum += adversaryLoss
			adversaryN++
		}
	}

	if valueN > 0 {
		e.track.AddValueLoss(e.step, valueSum/float64(valueN))
	}
	if policyN > 0 {
		e.track.AddPolicyLoss(e.step, policySum/float64(policyN))
	}
	if adversaryN > 0 {
		e.track.AddAdversaryLoss(e.step, adversarySum/float64(adversaryN))
	}
	return nil
}

// evaluate runs one deterministic episode on the evaluation
// environment and records its return
func (e *Experiment) evaluate() error {
	e.agent.Eval()
	defer e.agent.Train()

	step := e.evalEnv.Reset()
	episodeReturn := 0.0
	for {
		action := e.agent.SelectAction(step)
		next, last := e.evalEnv.Step(action)
		episodeReturn += next.Reward
		step = next
		if last {
			break
		}
	}

	e.track.AddEvalReward(e.step, episodeReturn)
	return nil
}

// vectorData returns the data of a vector as a slice
func vectorData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
