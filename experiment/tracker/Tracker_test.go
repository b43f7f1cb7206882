package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestTrackerSaveSnapshot checks that each save writes a complete
// snapshot of every series recorded so far
func TestTrackerSaveSnapshot(t *testing.T) {
	dir := t.TempDir()
	track, err := New(dir)
	if err != nil {
		t.Fatalf("could not create tracker: %v", err)
	}

	track.AddTrainReward(10, -5.0)
	track.AddEvalReward(10, -3.0)
	track.AddValueLoss(10, 0.5)
	if err := track.Save(); err != nil {
		t.Fatalf("could not save results: %v", err)
	}

	track.AddTrainReward(20, -4.0)
	track.AddPolicyLoss(20, -0.1)
	track.AddAdversaryLoss(20, 0.1)
	if err := track.Save(); err != nil {
		t.Fatalf("could not save results: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	if err != nil {
		t.Fatalf("could not read results file: %v", err)
	}
	var results Results
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("could not unmarshal results: %v", err)
	}

	if len(results.TrainRewards) != 2 {
		t.Errorf("expected 2 train rewards, got %v",
			len(results.TrainRewards))
	}
	if len(results.EvalRewards) != 1 {
		t.Errorf("expected 1 eval reward, got %v", len(results.EvalRewards))
	}
	if len(results.ValueLosses) != 1 || results.ValueLosses[0].Step != 10 {
		t.Errorf("unexpected value losses: %v", results.ValueLosses)
	}
	if results.TrainRewards[1].Step != 20 ||
		results.TrainRewards[1].Value != -4.0 {
		t.Errorf("unexpected second train reward: %v",
			results.TrainRewards[1])
	}
}

// TestDatasetEpisodeGrouping checks that transitions are grouped by
// episode and that empty episodes are dropped
func TestDatasetEpisodeGrouping(t *testing.T) {
	dataset := NewDataset()

	dataset.Add(Record{State: []float64{0}, Action: []float64{1},
		Reward: -1, NextState: []float64{1}})
	dataset.Add(Record{State: []float64{1}, Action: []float64{0},
		Reward: -1, NextState: []float64{1}, Terminal: true})
	dataset.EndEpisode()
	dataset.EndEpisode() // No transitions since the last call

	dataset.Add(Record{State: []float64{2}, Action: []float64{1},
		Reward: -2, NextState: []float64{3}})

	dir := t.TempDir()
	if err := dataset.Save(dir); err != nil {
		t.Fatalf("could not save dataset: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "dataset.json"))
	if err != nil {
		t.Fatalf("could not read dataset file: %v", err)
	}
	var episodes [][]Record
	if err := json.Unmarshal(data, &episodes); err != nil {
		t.Fatalf("could not unmarshal dataset: %v", err)
	}

	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %v", len(episodes))
	}
	if len(episodes[0]) != 2 || len(episodes[1]) != 1 {
		t.Errorf("unexpected episode lengths: %v and %v", len(episodes[0]),
			len(episodes[1]))
	}
	if !episodes[0][1].Terminal {
		t.Error("terminal flag was not preserved")
	}
	if episodes[1][0].Reward != -2 {
		t.Errorf("unexpected reward in second episode: %v",
			episodes[1][0].Reward)
	}
}
