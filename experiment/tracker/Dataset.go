package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Record is one environment transition in the collected dataset. The
// mean actions of both policies are carried alongside the executed
// action for diagnostics.
type Record struct {
	State           []float64 `json:"state"`
	Action          []float64 `json:"action"`
	Reward          float64   `json:"reward"`
	NextState       []float64 `json:"next_state"`
	Terminal        bool      `json:"terminal"`
	ProtagonistMean []float64 `json:"protagonist_mean"`
	AdversaryMean   []float64 `json:"adversary_mean"`
}

// Dataset collects the transitions seen during training, grouped by
// episode, for export at the end of a run
type Dataset struct {
	episodes [][]Record
	current  []Record
}

// NewDataset returns a new empty Dataset
func NewDataset() *Dataset {
	return &Dataset{}
}

// Add appends a transition to the current episode
func (d *Dataset) Add(r Record) {
	d.current = append(d.current, r)
}

// EndEpisode closes the current episode. Empty episodes are dropped.
func (d *Dataset) EndEpisode() {
	if len(d.current) == 0 {
		return
	}
	d.episodes = append(d.episodes, d.current)
	d.current = nil
}

// Episodes returns the number of completed episodes
func (d *Dataset) Episodes() int {
	return len(d.episodes)
}

// Save closes any open episode and writes the dataset to dataset.json
// in dir
func (d *Dataset) Save(dir string) error {
	d.EndEpisode()

	data, err := json.Marshal(d.episodes)
	if err != nil {
		return fmt.Errorf("save: could not marshal dataset: %v", err)
	}
	path := filepath.Join(dir, "dataset.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save: could not write dataset: %v", err)
	}
	return nil
}
