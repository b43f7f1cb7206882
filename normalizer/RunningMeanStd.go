// Package normalizer implements running statistics for online
// normalization of observations and returns
package normalizer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
)

// RunningMeanStd tracks the running mean and variance of a stream of
// vectors using the parallel variance update, so that batches of any
// size can be folded in without storing past data.
type RunningMeanStd struct {
	mean  []float64
	v     []float64 // Variance, biased by count
	count float64
	eps   float64
}

// NewRunningMeanStd returns a new RunningMeanStd over vectors of the
// given number of features.
func NewRunningMeanStd(features int) (*RunningMeanStd, error) {
	if features <= 0 {
		return nil, fmt.Errorf("newRunningMeanStd: features must be > 0")
	}

	rms := &RunningMeanStd{
		mean:  make([]float64, features),
		v:     make([]float64, features),
		count: 1e-4,
		eps:   1e-8,
	}
	for i := range rms.v {
		rms.v[i] = 1.0
	}
	return rms, nil
}

// Features returns the number of features tracked per vector
func (r *RunningMeanStd) Features() int {
	return len(r.mean)
}

// Update folds a batch of row-major vectors into the running
// statistics
func (r *RunningMeanStd) Update(batch []float64) error {
	features := r.Features()
	if len(batch) == 0 || len(batch)%features != 0 {
		return fmt.Errorf("update: batch length (%v) is not a positive "+
			"multiple of the feature size (%v)", len(batch), features)
	}
	batchCount := float64(len(batch) / features)

	batchMean := make([]float64, features)
	batchVar := make([]float64, features)
	for i := 0; i < len(batch); i += features {
		for j := 0; j < features; j++ {
			batchMean[j] += batch[i+j]
		}
	}
	for j := 0; j < features; j++ {
		batchMean[j] /= batchCount
	}
	for i := 0; i < len(batch); i += features {
		for j := 0; j < features; j++ {
			diff := batch[i+j] - batchMean[j]
			batchVar[j] += diff * diff
		}
	}
	for j := 0; j < features; j++ {
		batchVar[j] /= batchCount
	}

	totalCount := r.count + batchCount
	for j := 0; j < features; j++ {
		delta := batchMean[j] - r.mean[j]
		newMean := r.mean[j] + delta*batchCount/totalCount

		mA := r.v[j] * r.count
		mB := batchVar[j] * batchCount
		m2 := mA + mB + delta*delta*r.count*batchCount/totalCount

		r.mean[j] = newMean
		r.v[j] = m2 / totalCount
	}
	r.count = totalCount
	return nil
}

// Mean returns a copy of the running mean
func (r *RunningMeanStd) Mean() []float64 {
	mean := make([]float64, len(r.mean))
	copy(mean, r.mean)
	return mean
}

// Std returns a copy of the running standard deviation
func (r *RunningMeanStd) Std() []float64 {
	std := make([]float64, len(r.v))
	for i := range r.v {
		std[i] = math.Sqrt(r.v[i] + r.eps)
	}
	return std
}

// Normalize returns the batch of row-major vectors standardized by the
// running statistics. The input slice is not modified.
func (r *RunningMeanStd) Normalize(batch []float64) ([]float64, error) {
	features := r.Features()
	if len(batch) == 0 || len(batch)%features != 0 {
		return nil, fmt.Errorf("normalize: batch length (%v) is not a "+
			"positive multiple of the feature size (%v)", len(batch), features)
	}

	normalized := make([]float64, len(batch))
	for i := 0; i < len(batch); i += features {
		for j := 0; j < features; j++ {
			std := math.Sqrt(r.v[j] + r.eps)
			normalized[i+j] = (batch[i+j] - r.mean[j]) / std
		}
	}
	return normalized, nil
}

type runningMeanStdState struct {
	Mean  []float64
	V     []float64
	Count float64
	Eps   float64
}

// GobEncode implements the gob.GobEncoder interface
func (r *RunningMeanStd) GobEncode() ([]byte, error) {
	state := runningMeanStdState{
		Mean:  r.mean,
		V:     r.v,
		Count: r.count,
		Eps:   r.eps,
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode running "+
			"statistics: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (r *RunningMeanStd) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var state runningMeanStdState
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("gobdecode: could not decode running "+
			"statistics: %v", err)
	}

	r.mean = state.Mean
	r.v = state.V
	r.count = state.Count
	r.eps = state.Eps
	return nil
}
