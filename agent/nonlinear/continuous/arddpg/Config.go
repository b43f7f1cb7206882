// Package arddpg implements the action-robust deep deterministic
// policy gradient algorithm. Two deterministic policies are learned
// against a shared critic: a protagonist that maximizes return and an
// adversary that minimizes it. Control is shared between the two
// according to the robustness formulation, so the protagonist learns a
// policy that remains performant when a fraction of its actions is
// replaced or perturbed by the adversary.
package arddpg

import (
	"fmt"

	"github.com/actionrobust/arrl/initwfn"
	"github.com/actionrobust/arrl/network"
	"github.com/actionrobust/arrl/solver"
)

// MDPType determines how protagonist and adversary actions are
// combined, both when acting and when computing update targets.
type MDPType string

const (
	// MDP is plain DDPG. The adversary is never trained and the
	// protagonist acts alone.
	MDP MDPType = "mdp"

	// PrMDP is the probabilistic action robust MDP. At each step
	// control is given to the adversary with probability alpha, and
	// update targets take the corresponding expectation over the two
	// policies.
	PrMDP MDPType = "pr_mdp"

	// NrMDP is the noisy action robust MDP. Every action is the convex
	// combination (1-alpha)*protagonist + alpha*adversary.
	NrMDP MDPType = "nr_mdp"
)

// ValidMDPType returns whether t names a known MDP formulation
func ValidMDPType(t MDPType) bool {
	return t == MDP || t == PrMDP || t == NrMDP
}

// Config implements the configuration of an ARDDPG agent
type Config struct {
	// Policy network architecture, shared by the protagonist and the
	// adversary. A final tanh layer bounding actions to [-1, 1] is
	// always appended.
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	// Critic network architecture. A final linear layer predicting a
	// single action value is always appended.
	CriticLayers      []int
	CriticBiases      []bool
	CriticActivations []*network.Activation

	InitWFn *initwfn.InitWFn

	PolicySolver    *solver.Solver
	AdversarySolver *solver.Solver
	CriticSolver    *solver.Solver

	// Method determines the robustness formulation used for updates.
	// ExplorationMethod determines how actions are combined when
	// collecting experience and may differ from Method.
	Method            MDPType
	ExplorationMethod MDPType
	Alpha             float64

	Gamma float64
	Tau   float64

	BatchSize         int
	ReplayCapacity    int
	MinReplayCapacity int

	// AdversaryRatio is the number of protagonist updates per
	// adversary update. When FlipRatio is set the schedule is
	// inverted, yielding AdversaryRatio adversary updates per
	// protagonist update.
	AdversaryRatio int
	FlipRatio      bool

	// NoiseScale is the deviation of the Ornstein-Uhlenbeck action
	// noise. ParamNoise selects adaptive parameter space noise
	// instead, in which case actions are taken from a perturbed copy
	// of the protagonist.
	NoiseScale float64
	ParamNoise bool

	NormalizeObservations bool
	NormalizeReturns      bool

	// ReturnClipping bounds scaled rewards when NormalizeReturns is
	// set. Nonpositive values disable clipping.
	ReturnClipping float64
}

// Validate ensures that the Config is valid
func (c Config) Validate() error {
	if !ValidMDPType(c.Method) {
		return fmt.Errorf("validate: unknown method %v", c.Method)
	}
	if !ValidMDPType(c.ExplorationMethod) {
		return fmt.Errorf("validate: unknown exploration method %v",
			c.ExplorationMethod)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("validate: alpha must be in [0, 1], got %v", c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau must be in [0, 1], got %v", c.Tau)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("validate: batch size must be > 0, got %v",
			c.BatchSize)
	}
	if c.ReplayCapacity < c.BatchSize {
		return fmt.Errorf("validate: replay capacity (%v) must be at least "+
			"the batch size (%v)", c.ReplayCapacity, c.BatchSize)
	}
	if c.AdversaryRatio < 0 {
		return fmt.Errorf("validate: adversary ratio must be >= 0, got %v",
			c.AdversaryRatio)
	}
	if c.NoiseScale < 0 {
		return fmt.Errorf("validate: noise scale must be >= 0, got %v",
			c.NoiseScale)
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer given")
	}
	if c.PolicySolver == nil || c.AdversarySolver == nil ||
		c.CriticSolver == nil {
		return fmt.Errorf("validate: all three solvers must be given")
	}
	if len(c.PolicyLayers) != len(c.PolicyBiases) ||
		len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("validate: policy layers, biases, and " +
			"activations must have equal lengths")
	}
	if len(c.CriticLayers) != len(c.CriticBiases) ||
		len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("validate: critic layers, biases, and " +
			"activations must have equal lengths")
	}
	return nil
}
