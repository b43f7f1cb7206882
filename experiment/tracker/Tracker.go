// Package tracker saves the results of an experiment
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Point records a scalar measurement at an environment step
type Point struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Results holds every measurement series recorded over a run
type Results struct {
	TrainRewards    []Point `json:"train_rewards"`
	EvalRewards     []Point `json:"eval_rewards"`
	ValueLosses     []Point `json:"value_losses"`
	PolicyLosses    []Point `json:"policy_losses"`
	AdversaryLosses []Point `json:"adversary_losses"`
}

// Tracker accumulates measurement series and saves them as JSON. Save
// writes the whole results object each time, so the file on disk is
// always a complete snapshot of the run so far.
type Tracker struct {
	dir     string
	results Results
}

// New returns a new Tracker saving to dir, creating dir if needed
func New(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("new: could not create results directory: %v",
			err)
	}
	return &Tracker{dir: dir}, nil
}

// Dir returns the directory the tracker saves into
func (t *Tracker) Dir() string {
	return t.dir
}

// AddTrainReward records an episode return seen during training
func (t *Tracker) AddTrainReward(step int, value float64) {
	t.results.TrainRewards = append(t.results.TrainRewards,
		Point{Step: step, Value: value})
}

// AddEvalReward records an evaluation episode return
func (t *Tracker) AddEvalReward(step int, value float64) {
	t.results.EvalRewards = append(t.results.EvalRewards,
		Point{Step: step, Value: value})
}

// AddValueLoss records the mean critic loss of one training phase
func (t *Tracker) AddValueLoss(step int, value float64) {
	t.results.ValueLosses = append(t.results.ValueLosses,
		Point{Step: step, Value: value})
}

// AddPolicyLoss records the mean protagonist loss of one training
// phase
func (t *Tracker) AddPolicyLoss(step int, value float64) {
	t.results.PolicyLosses = append(t.results.PolicyLosses,
		Point{Step: step, Value: value})
}

// AddAdversaryLoss records the mean adversary loss of one training
// phase
func (t *Tracker) AddAdversaryLoss(step int, value float64) {
	t.results.AdversaryLosses = append(t.results.AdversaryLosses,
		Point{Step: step, Value: value})
}

// Results returns the accumulated results
func (t *Tracker) Results() Results {
	return t.results
}

// Save writes the results to results.json in the tracker's directory.
// The file is written to a temporary name first and renamed, so a
// crash mid-write never leaves a truncated results file.
func (t *Tracker) Save() error {
	data, err := json.MarshalIndent(t.results, "", "  ")
	if err != nil {
		return fmt.Errorf("save: could not marshal results: %v", err)
	}

	path := filepath.Join(t.dir, "results.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("save: could not write results: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save: could not rename results: %v", err)
	}
	return nil
}
