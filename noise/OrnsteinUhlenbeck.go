// Package noise implements exploration noise processes for continuous
// action spaces
package noise

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// OrnsteinUhlenbeck implements a temporally correlated noise process
// for action-space exploration. Successive samples drift towards the
// mean mu while accumulating Gaussian increments, producing smoother
// exploration than independent Gaussian noise.
type OrnsteinUhlenbeck struct {
	mu     *mat.VecDense
	theta  float64
	sigma  float64
	dt     float64
	xPrev  *mat.VecDense
	normal distuv.Normal
}

// NewOrnsteinUhlenbeck returns a new OrnsteinUhlenbeck noise process
// over vectors of the same length as mu.
func NewOrnsteinUhlenbeck(mu *mat.VecDense, theta, sigma, dt float64,
	seed uint64) (*OrnsteinUhlenbeck, error) {
	if theta < 0 {
		return nil, fmt.Errorf("newOrnsteinUhlenbeck: theta must be >= 0")
	}
	if sigma < 0 {
		return nil, fmt.Errorf("newOrnsteinUhlenbeck: sigma must be >= 0")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("newOrnsteinUhlenbeck: dt must be > 0")
	}

	source := rand.NewSource(seed)
	normal := distuv.Normal{
		Mu:    0.0,
		Sigma: 1.0,
		Src:   source,
	}

	ou := &OrnsteinUhlenbeck{
		mu:     mu,
		theta:  theta,
		sigma:  sigma,
		dt:     dt,
		normal: normal,
	}
	ou.Reset()
	return ou, nil
}

// Sample advances the process one step and returns the new noise
// vector
func (o *OrnsteinUhlenbeck) Sample() *mat.VecDense {
	scale := o.sigma * math.Sqrt(o.dt)
	x := mat.NewVecDense(o.mu.Len(), nil)
	for i := 0; i < o.mu.Len(); i++ {
		drift := o.theta * (o.mu.AtVec(i) - o.xPrev.AtVec(i)) * o.dt
		diffusion := scale * o.normal.Rand()
		x.SetVec(i, o.xPrev.AtVec(i)+drift+diffusion)
	}
	o.xPrev = x
	return mat.VecDenseCopyOf(x)
}

// Reset returns the process to its mean. Call at episode boundaries so
// that noise does not correlate across episodes.
func (o *OrnsteinUhlenbeck) Reset() {
	o.xPrev = mat.VecDenseCopyOf(o.mu)
}
