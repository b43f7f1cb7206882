package arddpg

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/actionrobust/arrl/environment"
	"github.com/actionrobust/arrl/expreplay"
	"github.com/actionrobust/arrl/network"
	"github.com/actionrobust/arrl/noise"
	"github.com/actionrobust/arrl/normalizer"
	"github.com/actionrobust/arrl/timestep"
	"github.com/actionrobust/arrl/utils/floatutils"
)

// Multiplicative factor by which the parameter noise deviation adapts
const paramNoiseAdaptation = 1.01

// ARDDPG implements the action-robust deep deterministic policy
// gradient algorithm. Three networks are learned: a protagonist
// policy, an adversary policy, and a critic shared by both. The
// protagonist and adversary are updated in alternation against the
// shared critic, each on its own computational graph. Copies of the
// other networks are embedded in each training graph and have their
// weights synced from the canonical networks before every update, so
// that each gradient computation only ever flows into one player.
type ARDDPG struct {
	config     Config
	obsDim     int
	actionDim  int
	batchSize  int
	expreplay  expreplay.ExperienceReplayer
	prevStep   timestep.TimeStep
	updates    int
	evalMode   bool
	rng        *rand.Rand
	gaussian   distuv.Normal
	ouNoise    *noise.OrnsteinUhlenbeck
	paramNoise *noise.AdaptiveParamNoise
	obsRMS     *normalizer.RunningMeanStd
	returnNorm *normalizer.ReturnNormalizer

	// Critic training graph
	critic            network.NeuralNet
	criticStateInput  *G.Node
	criticActionInput *G.Node
	criticTargets     *G.Node
	criticLossVal     G.Value
	criticVM          G.VM

	// Protagonist training graph. The adversary copy is only present
	// for the noisy robust formulation, in which the critic is
	// evaluated on the combined action.
	actor            network.NeuralNet
	actorStateInput  *G.Node
	actorCriticCopy  network.NeuralNet
	actorAdvCopy     network.NeuralNet
	actorLossVal     G.Value
	actorVM          G.VM

	// Adversary training graph, mirroring the protagonist's
	adversary      network.NeuralNet
	advStateInput  *G.Node
	advCriticCopy  network.NeuralNet
	advActorCopy   network.NeuralNet
	advLossVal     G.Value
	advVM          G.VM

	// Target networks, updated towards the canonical networks by
	// Polyak averaging after every update
	targetActor       network.NeuralNet
	targetActorVM     G.VM
	targetAdversary   network.NeuralNet
	targetAdversaryVM G.VM
	targetCritic      network.NeuralNet
	targetCriticVM    G.VM

	// Behaviour networks with an input batch size of 1, used for
	// action selection. The perturbed actor holds a noised copy of the
	// protagonist's weights when parameter space noise is used.
	behaviourActor       network.NeuralNet
	behaviourActorVM     G.VM
	behaviourAdversary   network.NeuralNet
	behaviourAdversaryVM G.VM
	perturbedActor       network.NeuralNet
	perturbedActorVM     G.VM
}

// New creates and returns a new ARDDPG agent on the given environment
func New(env environment.Environment, c Config, seed uint64) (*ARDDPG,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid configuration: %v", err)
	}
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("new: arddpg can only be used with " +
			"continuous actions")
	}

	obsDim := env.ObservationSpec().Shape.Len()
	actionDim := env.ActionSpec().Shape.Len()
	batch := c.BatchSize
	init := c.InitWFn.InitWFn()

	agent := &ARDDPG{
		config:    c,
		obsDim:    obsDim,
		actionDim: actionDim,
		batchSize: batch,
	}

	source := rand.NewSource(seed)
	agent.rng = rand.New(source)
	agent.gaussian = distuv.Normal{Mu: 0.0, Sigma: 1.0, Src: source}

	// Critic training graph: Q(s, a) regressed towards externally
	// computed targets
	gCritic := G.NewGraph()
	agent.criticStateInput = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batch, obsDim), G.WithName("criticState"),
		G.WithInit(G.Zeroes()))
	agent.criticActionInput = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batch, actionDim), G.WithName("criticAction"),
		G.WithInit(G.Zeroes()))
	critic, err := network.NewMLPFromInputs(
		[]*G.Node{agent.criticStateInput, agent.criticActionInput}, 1,
		gCritic, c.CriticLayers, c.CriticBiases, init, c.CriticActivations,
		network.Identity(), "critic")
	if err != nil {
		return nil, fmt.Errorf("new: could not create critic: %v", err)
	}
	agent.critic = critic

	agent.criticTargets = G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batch, 1), G.WithName("criticTargets"),
		G.WithInit(G.Zeroes()))
	criticLoss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(
		critic.Prediction(), agent.criticTargets))))))
	G.Read(criticLoss, &agent.criticLossVal)
	if _, err := G.Grad(criticLoss, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute critic gradient: %v",
			err)
	}
	agent.criticVM = G.NewTapeMachine(gCritic,
		G.BindDualValues(critic.Learnables()...))

	// Canonical protagonist and adversary, each in its own graph
	gActor := G.NewGraph()
	agent.actorStateInput = G.NewMatrix(gActor, tensor.Float64,
		G.WithShape(batch, obsDim), G.WithName("actorState"),
		G.WithInit(G.Zeroes()))
	actor, err := network.NewMLPFromInputs(
		[]*G.Node{agent.actorStateInput}, actionDim, gActor, c.PolicyLayers,
		c.PolicyBiases, init, c.PolicyActivations, network.TanH(),
		"protagonist")
	if err != nil {
		return nil, fmt.Errorf("new: could not create protagonist: %v", err)
	}
	agent.actor = actor

	gAdv := G.NewGraph()
	agent.advStateInput = G.NewMatrix(gAdv, tensor.Float64,
		G.WithShape(batch, obsDim), G.WithName("adversaryState"),
		G.WithInit(G.Zeroes()))
	adversary, err := network.NewMLPFromInputs(
		[]*G.Node{agent.advStateInput}, actionDim, gAdv, c.PolicyLayers,
		c.PolicyBiases, init, c.PolicyActivations, network.TanH(),
		"adversary")
	if err != nil {
		return nil, fmt.Errorf("new: could not create adversary: %v", err)
	}
	agent.adversary = adversary

	if err := agent.buildActorLoss(gActor); err != nil {
		return nil, err
	}
	if c.Method != MDP {
		if err := agent.buildAdversaryLoss(gAdv); err != nil {
			return nil, err
		}
	}

	// Target networks at the update batch size
	agent.targetActor, err = actor.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone target protagonist: %v",
			err)
	}
	agent.targetActorVM = G.NewTapeMachine(agent.targetActor.Graph())

	agent.targetAdversary, err = adversary.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone target adversary: %v",
			err)
	}
	agent.targetAdversaryVM = G.NewTapeMachine(agent.targetAdversary.Graph())

	agent.targetCritic, err = critic.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone target critic: %v", err)
	}
	agent.targetCriticVM = G.NewTapeMachine(agent.targetCritic.Graph())

	// Behaviour networks for action selection
	agent.behaviourActor, err = actor.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone behaviour "+
			"protagonist: %v", err)
	}
	agent.behaviourActorVM = G.NewTapeMachine(agent.behaviourActor.Graph())

	agent.behaviourAdversary, err = adversary.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone behaviour "+
			"adversary: %v", err)
	}
	agent.behaviourAdversaryVM = G.NewTapeMachine(
		agent.behaviourAdversary.Graph())

	agent.perturbedActor, err = actor.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("new: could not clone perturbed "+
			"protagonist: %v", err)
	}
	agent.perturbedActorVM = G.NewTapeMachine(agent.perturbedActor.Graph())

	minCapacity := c.MinReplayCapacity
	if minCapacity <= 0 {
		minCapacity = c.BatchSize
	}
	sampler := expreplay.NewUniformSelector(batch, int64(seed))
	agent.expreplay, err = expreplay.New(sampler, minCapacity,
		c.ReplayCapacity, obsDim, actionDim)
	if err != nil {
		return nil, fmt.Errorf("new: could not create replay buffer: %v", err)
	}

	if c.ParamNoise {
		agent.paramNoise, err = noise.NewAdaptiveParamNoise(
			c.NoiseScale, c.NoiseScale, paramNoiseAdaptation)
		if err != nil {
			return nil, fmt.Errorf("new: could not create parameter "+
				"noise: %v", err)
		}
	} else if c.NoiseScale > 0 {
		mu := mat.NewVecDense(actionDim, nil)
		agent.ouNoise, err = noise.NewOrnsteinUhlenbeck(mu, 0.15,
			c.NoiseScale, 1e-2, seed)
		if err != nil {
			return nil, fmt.Errorf("new: could not create action noise: %v",
				err)
		}
	}

	if c.NormalizeObservations {
		agent.obsRMS, err = normalizer.NewRunningMeanStd(obsDim)
		if err != nil {
			return nil, fmt.Errorf("new: could not create observation "+
				"normalizer: %v", err)
		}
	}
	if c.NormalizeReturns {
		agent.returnNorm, err = normalizer.NewReturnNormalizer(c.Gamma,
			c.ReturnClipping)
		if err != nil {
			return nil, fmt.Errorf("new: could not create return "+
				"normalizer: %v", err)
		}
	}

	if err := agent.syncCopies(); err != nil {
		return nil, fmt.Errorf("new: could not sync network copies: %v", err)
	}
	if err := agent.PerturbPolicy(); err != nil {
		return nil, fmt.Errorf("new: could not perturb policy: %v", err)
	}

	return agent, nil
}

// buildActorLoss adds the protagonist's loss to its graph. The critic
// copy (and for the noisy formulation the adversary copy) is cloned
// into the protagonist's graph so that the policy gradient can flow
// from the critic's prediction back into the protagonist's weights.
func (a *ARDDPG) buildActorLoss(g *G.ExprGraph) error {
	action := a.actor.Prediction()

	if a.config.Method == NrMDP {
		advCopy, err := a.adversary.CloneWithInputsTo(1,
			[]*G.Node{a.actorStateInput}, g)
		if err != nil {
			return fmt.Errorf("new: could not embed adversary in "+
				"protagonist graph: %v", err)
		}
		a.actorAdvCopy = advCopy
		action = combinedActionNode(a.config.Alpha, action,
			advCopy.Prediction())
	}

	criticCopy, err := a.critic.CloneWithInputsTo(1,
		[]*G.Node{a.actorStateInput, action}, g)
	if err != nil {
		return fmt.Errorf("new: could not embed critic in protagonist "+
			"graph: %v", err)
	}
	a.actorCriticCopy = criticCopy

	loss := G.Must(G.Neg(G.Must(G.Mean(criticCopy.Prediction()))))
	if a.config.Method == PrMDP {
		scale := G.NewConstant(1.0 - a.config.Alpha)
		loss = G.Must(G.Mul(scale, loss))
	}
	G.Read(loss, &a.actorLossVal)

	if _, err := G.Grad(loss, a.actor.Learnables()...); err != nil {
		return fmt.Errorf("new: could not compute protagonist gradient: %v",
			err)
	}
	a.actorVM = G.NewTapeMachine(g,
		G.BindDualValues(a.actor.Learnables()...))
	return nil
}

// buildAdversaryLoss adds the adversary's loss to its graph. The
// adversary descends the critic's prediction, learning actions that
// minimize the protagonist's value.
func (a *ARDDPG) buildAdversaryLoss(g *G.ExprGraph) error {
	action := a.adversary.Prediction()

	if a.config.Method == NrMDP {
		actorCopy, err := a.actor.CloneWithInputsTo(1,
			[]*G.Node{a.advStateInput}, g)
		if err != nil {
			return fmt.Errorf("new: could not embed protagonist in "+
				"adversary graph: %v", err)
		}
		a.advActorCopy = actorCopy
		action = combinedActionNode(a.config.Alpha, actorCopy.Prediction(),
			action)
	}

	criticCopy, err := a.critic.CloneWithInputsTo(1,
		[]*G.Node{a.advStateInput, action}, g)
	if err != nil {
		return fmt.Errorf("new: could not embed critic in adversary "+
			"graph: %v", err)
	}
	a.advCriticCopy = criticCopy

	loss := G.Must(G.Mean(criticCopy.Prediction()))
	if a.config.Method == PrMDP {
		scale := G.NewConstant(a.config.Alpha)
		loss = G.Must(G.Mul(scale, loss))
	}
	G.Read(loss, &a.advLossVal)

	if _, err := G.Grad(loss, a.adversary.Learnables()...); err != nil {
		return fmt.Errorf("new: could not compute adversary gradient: %v",
			err)
	}
	a.advVM = G.NewTapeMachine(g,
		G.BindDualValues(a.adversary.Learnables()...))
	return nil
}

// combinedActionNode returns the graph node computing the convex
// combination (1-alpha)*protagonist + alpha*adversary
func combinedActionNode(alpha float64, protagonist,
	adversary *G.Node) *G.Node {
	scaledPr := G.Must(G.Mul(G.NewConstant(1.0-alpha), protagonist))
	scaledAdv := G.Must(G.Mul(G.NewConstant(alpha), adversary))
	return G.Must(G.Add(scaledPr, scaledAdv))
}

// syncCopies sets the weights of every network copy to those of its
// canonical network
func (a *ARDDPG) syncCopies() error {
	pairs := []struct {
		dest, source network.NeuralNet
	}{
		{a.targetActor, a.actor},
		{a.targetAdversary, a.adversary},
		{a.targetCritic, a.critic},
		{a.behaviourActor, a.actor},
		{a.behaviourAdversary, a.adversary},
	}
	for _, pair := range pairs {
		if err := network.Set(pair.dest, pair.source); err != nil {
			return err
		}
	}
	return nil
}

// ObserveFirst observes and records the first episode transition
func (a *ARDDPG) ObserveFirst(t timestep.TimeStep) error {
	if !t.First() {
		return fmt.Errorf("observefirst: timestep is not first (%v)",
			t.StepType)
	}
	a.prevStep = t
	if a.obsRMS != nil {
		return a.obsRMS.Update(vectorData(t.Observation))
	}
	return nil
}

// Observe records the action taken in the last state and the timestep
// it produced
func (a *ARDDPG) Observe(action mat.Vector, t timestep.TimeStep) error {
	transition := timestep.NewTransition(a.prevStep, action, t)
	if err := a.expreplay.Add(transition); err != nil {
		return fmt.Errorf("observe: could not store transition: %v", err)
	}
	a.prevStep = t

	if a.obsRMS != nil {
		if err := a.obsRMS.Update(vectorData(t.Observation)); err != nil {
			return fmt.Errorf("observe: could not update observation "+
				"statistics: %v", err)
		}
	}
	if a.returnNorm != nil {
		if err := a.returnNorm.Observe(t.Reward); err != nil {
			return fmt.Errorf("observe: could not update return "+
				"statistics: %v", err)
		}
	}
	return nil
}

// EndEpisode resets the per-episode state of the agent's noise
// processes
func (a *ARDDPG) EndEpisode() {
	if a.ouNoise != nil {
		a.ouNoise.Reset()
	}
	if a.returnNorm != nil {
		a.returnNorm.Reset()
	}
}

// Eval sets the agent to evaluation mode: actions come from the
// unperturbed protagonist alone
func (a *ARDDPG) Eval() { a.evalMode = true }

// Train sets the agent to training mode
func (a *ARDDPG) Train() { a.evalMode = false }

// IsEval returns whether the agent is in evaluation mode
func (a *ARDDPG) IsEval() bool { return a.evalMode }

// SelectAction returns the action to take in the state of the
// argument timestep. In training mode control is shared between the
// protagonist and the adversary according to the exploration method,
// and exploration noise is applied. In evaluation mode the
// protagonist acts alone and deterministically.
func (a *ARDDPG) SelectAction(t timestep.TimeStep) *mat.VecDense {
	action, _, _ := a.SelectActionWithMeans(t)
	return action
}

// SelectActionWithMeans returns the action to take in the state of
// the argument timestep together with the raw mean actions of both
// policies, for diagnostic traces. The protagonist mean comes from
// the perturbed policy when parameter space noise is in use.
func (a *ARDDPG) SelectActionWithMeans(t timestep.TimeStep) (action,
	protagonistMean, adversaryMean *mat.VecDense) {
	obs := vectorData(t.Observation)
	if a.obsRMS != nil {
		normalized, err := a.obsRMS.Normalize(obs)
		if err != nil {
			panic(fmt.Sprintf("selectaction: could not normalize "+
				"observation: %v", err))
		}
		obs = normalized
	}

	actorNet, actorVM := a.behaviourActor, a.behaviourActorVM
	if a.paramNoise != nil && !a.evalMode {
		actorNet, actorVM = a.perturbedActor, a.perturbedActorVM
	}
	protagonist, err := a.policyAction(actorNet, actorVM, obs)
	if err != nil {
		panic(fmt.Sprintf("selectaction: could not run protagonist: %v", err))
	}
	adversary, err := a.policyAction(a.behaviourAdversary,
		a.behaviourAdversaryVM, obs)
	if err != nil {
		panic(fmt.Sprintf("selectaction: could not run adversary: %v", err))
	}
	protagonistMean = mat.NewVecDense(a.actionDim, protagonist)
	adversaryMean = mat.NewVecDense(a.actionDim, adversary)

	var chosen []float64
	switch {
	case a.evalMode:
		chosen = protagonist
	case a.config.ExplorationMethod == NrMDP:
		chosen = combineActions(a.config.Alpha, protagonist, adversary)
	case a.config.ExplorationMethod == PrMDP &&
		a.rng.Float64() < a.config.Alpha:
		chosen = adversary
	default:
		chosen = protagonist
	}

	// The chosen slice may alias a mean, so noise and clipping work on
	// a copy
	actionData := make([]float64, len(chosen))
	copy(actionData, chosen)
	if a.ouNoise != nil && !a.evalMode {
		sample := a.ouNoise.Sample()
		for i := range actionData {
			actionData[i] += sample.AtVec(i)
		}
	}
	floatutils.ClipSlice(actionData, -1.0, 1.0)
	return mat.NewVecDense(a.actionDim, actionData), protagonistMean,
		adversaryMean
}

// Step updates the agent's weights from a batch of stored experience,
// discarding the losses
func (a *ARDDPG) Step() error {
	_, _, _, err := a.UpdateParameters()
	return err
}

// UpdateParameters samples a batch of transitions and performs one
// critic update and one policy update. Which policy is updated is
// decided by the update schedule: the adversary is trained once every
// AdversaryRatio+1 calls, the protagonist on the remaining calls. The
// loss of the policy that was not updated is returned as NaN.
func (a *ARDDPG) UpdateParameters() (valueLoss, policyLoss,
	adversaryLoss float64, err error) {
	valueLoss = math.NaN()
	policyLoss = math.NaN()
	adversaryLoss = math.NaN()

	// The replay error is returned unwrapped so that callers can
	// distinguish an underfull buffer from a real failure
	states, actions, rewards, masks, nextStates, err := a.expreplay.Sample()
	if err != nil {
		return valueLoss, policyLoss, adversaryLoss, err
	}

	if a.obsRMS != nil {
		if states, err = a.obsRMS.Normalize(states); err != nil {
			return valueLoss, policyLoss, adversaryLoss,
				fmt.Errorf("updateparameters: could not normalize "+
					"states: %v", err)
		}
		if nextStates, err = a.obsRMS.Normalize(nextStates); err != nil {
			return valueLoss, policyLoss, adversaryLoss,
				fmt.Errorf("updateparameters: could not normalize next "+
					"states: %v", err)
		}
	}
	if a.returnNorm != nil {
		rewards = a.returnNorm.ScaleBatch(rewards)
	}

	targets, err := a.updateTargets(rewards, masks, nextStates)
	if err != nil {
		return valueLoss, policyLoss, adversaryLoss, err
	}

	valueLoss, err = a.updateCritic(states, actions, targets)
	if err != nil {
		return valueLoss, policyLoss, adversaryLoss, err
	}

	if a.adversaryTurn() {
		adversaryLoss, err = a.updateAdversary(states)
	} else {
		policyLoss, err = a.updateProtagonist(states)
	}
	if err != nil {
		return valueLoss, policyLoss, adversaryLoss, err
	}

	if err := a.polyakTargets(); err != nil {
		return valueLoss, policyLoss, adversaryLoss,
			fmt.Errorf("updateparameters: could not update target "+
				"networks: %v", err)
	}
	if err := network.Set(a.behaviourActor, a.actor); err != nil {
		return valueLoss, policyLoss, adversaryLoss,
			fmt.Errorf("updateparameters: could not sync behaviour "+
				"protagonist: %v", err)
	}
	if err := network.Set(a.behaviourAdversary, a.adversary); err != nil {
		return valueLoss, policyLoss, adversaryLoss,
			fmt.Errorf("updateparameters: could not sync behaviour "+
				"adversary: %v", err)
	}

	return valueLoss, policyLoss, adversaryLoss, nil
}

// adversaryTurn advances the update schedule and returns whether this
// update trains the adversary
func (a *ARDDPG) adversaryTurn() bool {
	turn := a.updates
	a.updates++
	if a.config.Method == MDP {
		return false
	}
	period := a.config.AdversaryRatio + 1
	isAdversary := turn%period == period-1
	if a.config.FlipRatio {
		return !isAdversary
	}
	return isAdversary
}

// updateTargets computes the regression targets for the critic from
// the target networks
func (a *ARDDPG) updateTargets(rewards, masks,
	nextStates []float64) ([]float64, error) {
	protagonist, err := a.batchPolicy(a.targetActor, a.targetActorVM,
		nextStates)
	if err != nil {
		return nil, fmt.Errorf("updateparameters: could not run target "+
			"protagonist: %v", err)
	}

	var nextValues []float64
	switch a.config.Method {
	case MDP:
		nextValues, err = a.targetValue(nextStates, protagonist)
		if err != nil {
			return nil, err
		}

	case NrMDP:
		adversary, err := a.batchPolicy(a.targetAdversary,
			a.targetAdversaryVM, nextStates)
		if err != nil {
			return nil, fmt.Errorf("updateparameters: could not run target "+
				"adversary: %v", err)
		}
		combined := combineActions(a.config.Alpha, protagonist, adversary)
		nextValues, err = a.targetValue(nextStates, combined)
		if err != nil {
			return nil, err
		}

	case PrMDP:
		adversary, err := a.batchPolicy(a.targetAdversary,
			a.targetAdversaryVM, nextStates)
		if err != nil {
			return nil, fmt.Errorf("updateparameters: could not run target "+
				"adversary: %v", err)
		}
		protagonistValues, err := a.targetValue(nextStates, protagonist)
		if err != nil {
			return nil, err
		}
		adversaryValues, err := a.targetValue(nextStates, adversary)
		if err != nil {
			return nil, err
		}
		nextValues = make([]float64, a.batchSize)
		for i := range nextValues {
			nextValues[i] = (1.0-a.config.Alpha)*protagonistValues[i] +
				a.config.Alpha*adversaryValues[i]
		}
	}

	targets := make([]float64, a.batchSize)
	for i := range targets {
		targets[i] = rewards[i] + a.config.Gamma*masks[i]*nextValues[i]
	}
	return targets, nil
}

// updateCritic performs one gradient step on the critic and returns
// the value loss
func (a *ARDDPG) updateCritic(states, actions,
	targets []float64) (float64, error) {
	err := G.Let(a.criticStateInput, tensor.New(
		tensor.WithBacking(states),
		tensor.WithShape(a.batchSize, a.obsDim)))
	if err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not set "+
			"critic states: %v", err)
	}
	err = G.Let(a.criticActionInput, tensor.New(
		tensor.WithBacking(actions),
		tensor.WithShape(a.batchSize, a.actionDim)))
	if err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not set "+
			"critic actions: %v", err)
	}
	err = G.Let(a.criticTargets, tensor.New(
		tensor.WithBacking(targets),
		tensor.WithShape(a.batchSize, 1)))
	if err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not set "+
			"critic targets: %v", err)
	}

	if err := a.criticVM.RunAll(); err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not run "+
			"critic graph: %v", err)
	}
	loss := a.criticLossVal.Data().(float64)
	if err := a.config.CriticSolver.Step(a.critic.Model()); err != nil {
		return loss, fmt.Errorf("updateparameters: could not step critic "+
			"solver: %v", err)
	}
	a.criticVM.Reset()
	return loss, nil
}

// updateProtagonist performs one policy gradient step on the
// protagonist and returns its loss
func (a *ARDDPG) updateProtagonist(states []float64) (float64, error) {
	if err := network.Set(a.actorCriticCopy, a.critic); err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not sync "+
			"critic into protagonist graph: %v", err)
	}
	if a.actorAdvCopy != nil {
		if err := network.Set(a.actorAdvCopy, a.adversary); err != nil {
			return math.NaN(), fmt.Errorf("updateparameters: could not "+
				"sync adversary into protagonist graph: %v", err)
		}
	}

	err := G.Let(a.actorStateInput, tensor.New(
		tensor.WithBacking(states),
		tensor.WithShape(a.batchSize, a.obsDim)))
	if err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not set "+
			"protagonist states: %v", err)
	}
	if err := a.actorVM.RunAll(); err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not run "+
			"protagonist graph: %v", err)
	}
	loss := a.actorLossVal.Data().(float64)
	if err := a.config.PolicySolver.Step(a.actor.Model()); err != nil {
		return loss, fmt.Errorf("updateparameters: could not step "+
			"protagonist solver: %v", err)
	}
	a.actorVM.Reset()
	return loss, nil
}

// updateAdversary performs one policy gradient step on the adversary
// and returns its loss
func (a *ARDDPG) updateAdversary(states []float64) (float64, error) {
	if err := network.Set(a.advCriticCopy, a.critic); err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not sync "+
			"critic into adversary graph: %v", err)
	}
	if a.advActorCopy != nil {
		if err := network.Set(a.advActorCopy, a.actor); err != nil {
			return math.NaN(), fmt.Errorf("updateparameters: could not "+
				"sync protagonist into adversary graph: %v", err)
		}
	}

	err := G.Let(a.advStateInput, tensor.New(
		tensor.WithBacking(states),
		tensor.WithShape(a.batchSize, a.obsDim)))
	if err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not set "+
			"adversary states: %v", err)
	}
	if err := a.advVM.RunAll(); err != nil {
		return math.NaN(), fmt.Errorf("updateparameters: could not run "+
			"adversary graph: %v", err)
	}
	loss := a.advLossVal.Data().(float64)
	if err := a.config.AdversarySolver.Step(a.adversary.Model()); err != nil {
		return loss, fmt.Errorf("updateparameters: could not step "+
			"adversary solver: %v", err)
	}
	a.advVM.Reset()
	return loss, nil
}

// polyakTargets moves each target network towards its canonical
// network
func (a *ARDDPG) polyakTargets() error {
	tau := a.config.Tau
	if err := network.Polyak(a.targetCritic, a.critic, tau); err != nil {
		return err
	}
	if err := network.Polyak(a.targetActor, a.actor, tau); err != nil {
		return err
	}
	return network.Polyak(a.targetAdversary, a.adversary, tau)
}

// PerturbPolicy sets the perturbed actor to the protagonist's weights
// plus Gaussian parameter noise. Without parameter space noise this
// is a plain weight sync.
func (a *ARDDPG) PerturbPolicy() error {
	sources := a.actor.Learnables()
	dests := a.perturbedActor.Learnables()
	stddev := 0.0
	if a.paramNoise != nil {
		stddev = a.paramNoise.Stddev()
	}

	for i, source := range sources {
		weights := source.Value().(*tensor.Dense)
		data := weights.Data().([]float64)
		noised := make([]float64, len(data))
		for j := range data {
			noised[j] = data[j] + stddev*a.gaussian.Rand()
		}
		perturbed := tensor.New(tensor.WithBacking(noised),
			tensor.WithShape(weights.Shape()...))
		if err := G.Let(dests[i], perturbed); err != nil {
			return fmt.Errorf("perturbpolicy: could not set perturbed "+
				"weights: %v", err)
		}
	}
	return nil
}

// AdaptNoise measures the action space distance the current weight
// perturbation induces on a batch of stored states and adapts the
// perturbation deviation towards the desired distance. The
// measurement is skipped when the replay buffer cannot yet provide a
// batch.
func (a *ARDDPG) AdaptNoise() error {
	if a.paramNoise == nil {
		return nil
	}

	states, _, _, _, _, err := a.expreplay.Sample()
	if expreplay.IsEmptyBuffer(err) || expreplay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("adaptnoise: could not sample replay buffer: %v",
			err)
	}
	if a.obsRMS != nil {
		if states, err = a.obsRMS.Normalize(states); err != nil {
			return fmt.Errorf("adaptnoise: could not normalize states: %v",
				err)
		}
	}

	actions := make([]float64, 0, a.batchSize*a.actionDim)
	perturbed := make([]float64, 0, a.batchSize*a.actionDim)
	for i := 0; i < a.batchSize; i++ {
		obs := states[i*a.obsDim : (i+1)*a.obsDim]
		action, err := a.policyAction(a.behaviourActor, a.behaviourActorVM,
			obs)
		if err != nil {
			return fmt.Errorf("adaptnoise: could not run protagonist: %v",
				err)
		}
		perturbedAction, err := a.policyAction(a.perturbedActor,
			a.perturbedActorVM, obs)
		if err != nil {
			return fmt.Errorf("adaptnoise: could not run perturbed "+
				"protagonist: %v", err)
		}
		actions = append(actions, action...)
		perturbed = append(perturbed, perturbedAction...)
	}

	distance, err := noise.ActionDistance(actions, perturbed)
	if err != nil {
		return fmt.Errorf("adaptnoise: could not compute action "+
			"distance: %v", err)
	}
	a.paramNoise.Adapt(distance)
	return nil
}

// policyAction runs a behaviour policy network on a single observation
// and returns its action
func (a *ARDDPG) policyAction(net network.NeuralNet, vm G.VM,
	obs []float64) ([]float64, error) {
	input := make([]float64, len(obs))
	copy(input, obs)
	if err := net.SetInput(input); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	out := net.Output().Data().([]float64)
	action := make([]float64, len(out))
	copy(action, out)
	vm.Reset()
	return action, nil
}

// batchPolicy runs a target policy network on a batch of states and
// returns its actions
func (a *ARDDPG) batchPolicy(net network.NeuralNet, vm G.VM,
	states []float64) ([]float64, error) {
	input := make([]float64, len(states))
	copy(input, states)
	if err := net.SetInput(input); err != nil {
		return nil, err
	}
	if err := vm.RunAll(); err != nil {
		return nil, err
	}
	out := net.Output().Data().([]float64)
	actions := make([]float64, len(out))
	copy(actions, out)
	vm.Reset()
	return actions, nil
}

// targetValue runs the target critic on a batch of states and
// actions and returns its action values
func (a *ARDDPG) targetValue(states, actions []float64) ([]float64,
	error) {
	input := make([]float64, 0, len(states)+len(actions))
	for i := 0; i < a.batchSize; i++ {
		input = append(input, states[i*a.obsDim:(i+1)*a.obsDim]...)
		input = append(input, actions[i*a.actionDim:(i+1)*a.actionDim]...)
	}
	if err := a.targetCritic.SetInput(input); err != nil {
		return nil, fmt.Errorf("updateparameters: could not set target "+
			"critic input: %v", err)
	}
	if err := a.targetCriticVM.RunAll(); err != nil {
		return nil, fmt.Errorf("updateparameters: could not run target "+
			"critic: %v", err)
	}
	out := a.targetCritic.Output().Data().([]float64)
	values := make([]float64, len(out))
	copy(values, out)
	a.targetCriticVM.Reset()
	return values, nil
}

// combineActions returns the elementwise convex combination
// (1-alpha)*protagonist + alpha*adversary
func combineActions(alpha float64, protagonist,
	adversary []float64) []float64 {
	combined := make([]float64, len(protagonist))
	for i := range combined {
		combined[i] = (1.0-alpha)*protagonist[i] + alpha*adversary[i]
	}
	return combined
}

// vectorData returns the data of a vector as a slice
func vectorData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}

// TotalUpdates returns the number of policy updates performed
func (a *ARDDPG) TotalUpdates() int {
	return a.updates
}

// ParamNoiseStddev returns the current deviation of the parameter
// space noise, or 0 when parameter space noise is not in use
func (a *ARDDPG) ParamNoiseStddev() float64 {
	if a.paramNoise == nil {
		return 0.0
	}
	return a.paramNoise.Stddev()
}

// GobEncode implements the gob.GobEncoder interface, encoding the
// canonical and target networks together with the running statistics
func (a *ARDDPG) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	nets := []network.NeuralNet{a.actor, a.adversary, a.critic,
		a.targetActor, a.targetAdversary, a.targetCritic}
	for i := range nets {
		if err := enc.Encode(&nets[i]); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode network "+
				"%v: %v", i, err)
		}
	}

	if err := enc.Encode(a.updates); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode update count: %v",
			err)
	}

	hasObsRMS := a.obsRMS != nil
	if err := enc.Encode(hasObsRMS); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode flags: %v", err)
	}
	if hasObsRMS {
		if err := enc.Encode(a.obsRMS); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode "+
				"observation statistics: %v", err)
		}
	}

	hasReturnNorm := a.returnNorm != nil
	if err := enc.Encode(hasReturnNorm); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode flags: %v", err)
	}
	if hasReturnNorm {
		if err := enc.Encode(a.returnNorm); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode return "+
				"statistics: %v", err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The agent must
// already be constructed with the same configuration that produced the
// encoding: decoding restores weights and statistics, not
// architecture.
func (a *ARDDPG) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	dests := []network.NeuralNet{a.actor, a.adversary, a.critic,
		a.targetActor, a.targetAdversary, a.targetCritic}
	for i, dest := range dests {
		var decoded network.NeuralNet
		if err := dec.Decode(&decoded); err != nil {
			return fmt.Errorf("gobdecode: could not decode network %v: %v",
				i, err)
		}
		if err := network.Set(dest, decoded); err != nil {
			return fmt.Errorf("gobdecode: could not restore network %v: %v",
				i, err)
		}
	}

	if err := dec.Decode(&a.updates); err != nil {
		return fmt.Errorf("gobdecode: could not decode update count: %v", err)
	}

	var hasObsRMS bool
	if err := dec.Decode(&hasObsRMS); err != nil {
		return fmt.Errorf("gobdecode: could not decode flags: %v", err)
	}
	if hasObsRMS {
		obsRMS := &normalizer.RunningMeanStd{}
		if err := dec.Decode(obsRMS); err != nil {
			return fmt.Errorf("gobdecode: could not decode observation "+
				"statistics: %v", err)
		}
		a.obsRMS = obsRMS
	}

	var hasReturnNorm bool
	if err := dec.Decode(&hasReturnNorm); err != nil {
		return fmt.Errorf("gobdecode: could not decode flags: %v", err)
	}
	if hasReturnNorm {
		returnNorm := &normalizer.ReturnNormalizer{}
		if err := dec.Decode(returnNorm); err != nil {
			return fmt.Errorf("gobdecode: could not decode return "+
				"statistics: %v", err)
		}
		a.returnNorm = returnNorm
	}

	if err := network.Set(a.behaviourActor, a.actor); err != nil {
		return fmt.Errorf("gobdecode: could not sync behaviour "+
			"protagonist: %v", err)
	}
	if err := network.Set(a.behaviourAdversary, a.adversary); err != nil {
		return fmt.Errorf("gobdecode: could not sync behaviour "+
			"adversary: %v", err)
	}
	return a.PerturbPolicy()
}
