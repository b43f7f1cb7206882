package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/actionrobust/arrl/timestep"
)

// transitionWithReward returns a 1-feature, 1-action transition whose
// reward identifies the insertion
func transitionWithReward(r float64) timestep.Transition {
	return timestep.Transition{
		State:     mat.NewVecDense(1, []float64{r}),
		Action:    mat.NewVecDense(1, []float64{r}),
		Reward:    r,
		Mask:      1.0,
		NextState: mat.NewVecDense(1, []float64{r + 1}),
	}
}

// TestCacheRingSemantics checks that the buffer never exceeds its
// maximum capacity and always holds the most recently inserted
// transitions, overwriting the oldest first.
func TestCacheRingSemantics(t *testing.T) {
	capacities := []int{1, 3, 8, 32}
	for _, capacity := range capacities {
		inserts := 3*capacity + 1

		buffer, err := New(NewUniformSelector(capacity, 14), 1, capacity, 1, 1)
		if err != nil {
			t.Fatalf("could not construct buffer: %v", err)
		}

		for i := 0; i < inserts; i++ {
			if err := buffer.Add(transitionWithReward(float64(i))); err != nil {
				t.Fatalf("could not add to buffer: %v", err)
			}
			if buffer.Capacity() > capacity {
				t.Fatalf("buffer length %v exceeds capacity %v",
					buffer.Capacity(), capacity)
			}
		}

		if buffer.Capacity() != capacity {
			t.Fatalf("buffer length %v after %v inserts, expected %v",
				buffer.Capacity(), inserts, capacity)
		}

		// A full-buffer sample should contain exactly the most recent
		// capacity rewards
		_, _, rewards, _, _, err := buffer.Sample()
		if err != nil {
			t.Fatalf("could not sample buffer: %v", err)
		}

		seen := make(map[float64]bool)
		for _, r := range rewards {
			seen[r] = true
		}
		for i := inserts - capacity; i < inserts; i++ {
			if !seen[float64(i)] {
				t.Errorf("capacity %v: transition %v overwritten, expected "+
					"the most recent %v to be retained", capacity, i, capacity)
			}
		}
		for i := 0; i < inserts-capacity; i++ {
			if seen[float64(i)] {
				t.Errorf("capacity %v: stale transition %v retained",
					capacity, i)
			}
		}
	}
}

// TestCacheSampleErrors checks the empty and underfull buffer errors
func TestCacheSampleErrors(t *testing.T) {
	buffer, err := New(NewUniformSelector(4, 14), 2, 8, 1, 1)
	if err != nil {
		t.Fatalf("could not construct buffer: %v", err)
	}

	_, _, _, _, _, err = buffer.Sample()
	if !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}

	if err := buffer.Add(transitionWithReward(0.0)); err != nil {
		t.Fatalf("could not add to buffer: %v", err)
	}
	_, _, _, _, _, err = buffer.Sample()
	if !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got %v", err)
	}

	for i := 1; i < 5; i++ {
		if err := buffer.Add(transitionWithReward(float64(i))); err != nil {
			t.Fatalf("could not add to buffer: %v", err)
		}
	}
	if _, _, _, _, _, err := buffer.Sample(); err != nil {
		t.Errorf("expected successful sample, got %v", err)
	}
}
