package normalizer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/actionrobust/arrl/utils/floatutils"
)

// ReturnNormalizer scales rewards by the running standard deviation of
// the discounted return. The raw rewards themselves are left
// unchanged, only the scale used during learning is affected.
type ReturnNormalizer struct {
	rms      *RunningMeanStd
	gamma    float64
	ret      float64
	clipping float64
}

// NewReturnNormalizer returns a new ReturnNormalizer with the given
// discount factor. Scaled rewards are clipped to [-clipping, clipping]
// when clipping is positive.
func NewReturnNormalizer(gamma, clipping float64) (*ReturnNormalizer,
	error) {
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("newReturnNormalizer: gamma must be in "+
			"[0, 1], got %v", gamma)
	}

	rms, err := NewRunningMeanStd(1)
	if err != nil {
		return nil, fmt.Errorf("newReturnNormalizer: %v", err)
	}

	return &ReturnNormalizer{
		rms:      rms,
		gamma:    gamma,
		clipping: clipping,
	}, nil
}

// Observe folds the next reward into the running discounted return
func (n *ReturnNormalizer) Observe(reward float64) error {
	n.ret = n.ret*n.gamma + reward
	return n.rms.Update([]float64{n.ret})
}

// Reset resets the discounted return accumulator. Call at episode
// boundaries.
func (n *ReturnNormalizer) Reset() {
	n.ret = 0.0
}

// Scale returns the reward divided by the running return deviation
func (n *ReturnNormalizer) Scale(reward float64) float64 {
	scaled := reward / n.rms.Std()[0]
	if n.clipping > 0 {
		scaled = floatutils.Clip(scaled, -n.clipping, n.clipping)
	}
	return scaled
}

// ScaleBatch returns a batch of rewards scaled as in Scale. The input
// slice is not modified.
func (n *ReturnNormalizer) ScaleBatch(rewards []float64) []float64 {
	scaled := make([]float64, len(rewards))
	for i, reward := range rewards {
		scaled[i] = n.Scale(reward)
	}
	return scaled
}

type returnNormalizerState struct {
	RMS      *RunningMeanStd
	Gamma    float64
	Ret      float64
	Clipping float64
}

// GobEncode implements the gob.GobEncoder interface
func (n *ReturnNormalizer) GobEncode() ([]byte, error) {
	state := returnNormalizerState{
		RMS:      n.rms,
		Gamma:    n.gamma,
		Ret:      n.ret,
		Clipping: n.clipping,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode return "+
			"statistics: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (n *ReturnNormalizer) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var state returnNormalizerState
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("gobdecode: could not decode return "+
			"statistics: %v", err)
	}

	n.rms = state.RMS
	n.gamma = state.Gamma
	n.ret = state.Ret
	n.clipping = state.Clipping
	return nil
}
