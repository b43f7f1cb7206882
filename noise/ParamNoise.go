package noise

import (
	"fmt"
	"math"
)

// AdaptiveParamNoise tracks the standard deviation used when
// perturbing policy weights directly. The deviation is adapted so that
// the induced action-space perturbation stays close to a desired
// magnitude, following Plappert et al. (2018).
type AdaptiveParamNoise struct {
	initialStddev         float64
	desiredActionStddev   float64
	adaptationCoefficient float64
	currentStddev         float64
}

// NewAdaptiveParamNoise returns a new AdaptiveParamNoise with the
// given initial and desired deviations and adaptation coefficient.
func NewAdaptiveParamNoise(initialStddev, desiredActionStddev,
	adaptationCoefficient float64) (*AdaptiveParamNoise, error) {
	if initialStddev <= 0 {
		return nil, fmt.Errorf("newAdaptiveParamNoise: initial stddev " +
			"must be > 0")
	}
	if desiredActionStddev <= 0 {
		return nil, fmt.Errorf("newAdaptiveParamNoise: desired action " +
			"stddev must be > 0")
	}
	if adaptationCoefficient <= 1.0 {
		return nil, fmt.Errorf("newAdaptiveParamNoise: adaptation " +
			"coefficient must be > 1")
	}

	return &AdaptiveParamNoise{
		initialStddev:         initialStddev,
		desiredActionStddev:   desiredActionStddev,
		adaptationCoefficient: adaptationCoefficient,
		currentStddev:         initialStddev,
	}, nil
}

// Adapt updates the perturbation deviation given the measured distance
// between perturbed and unperturbed actions. The deviation shrinks
// when the perturbation overshoots the desired action deviation and
// grows when it undershoots.
func (a *AdaptiveParamNoise) Adapt(distance float64) {
	if distance > a.desiredActionStddev {
		a.currentStddev /= a.adaptationCoefficient
	} else {
		a.currentStddev *= a.adaptationCoefficient
	}
}

// Stddev returns the current weight perturbation standard deviation
func (a *AdaptiveParamNoise) Stddev() float64 {
	return a.currentStddev
}

// DesiredActionStddev returns the target action-space deviation
func (a *AdaptiveParamNoise) DesiredActionStddev() float64 {
	return a.desiredActionStddev
}

func (a *AdaptiveParamNoise) String() string {
	return fmt.Sprintf("AdaptiveParamNoise(initialStddev=%v, "+
		"desiredActionStddev=%v, adaptationCoefficient=%v)",
		a.initialStddev, a.desiredActionStddev, a.adaptationCoefficient)
}

// ActionDistance returns the root mean square distance between two
// equally sized batches of actions. Used to measure how far a
// perturbed policy's actions drift from the unperturbed policy's.
func ActionDistance(actions, perturbedActions []float64) (float64, error) {
	if len(actions) != len(perturbedActions) {
		return 0, fmt.Errorf("actionDistance: batches have unequal "+
			"lengths (%v != %v)", len(actions), len(perturbedActions))
	}
	if len(actions) == 0 {
		return 0, fmt.Errorf("actionDistance: batches are empty")
	}

	sumSquares := 0.0
	for i := range actions {
		diff := actions[i] - perturbedActions[i]
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(actions))), nil
}
