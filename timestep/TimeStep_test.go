package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestTerminatesEpisode checks that only terminal last steps end an
// episode, not timeouts
func TestTerminatesEpisode(t *testing.T) {
	obs := mat.NewVecDense(1, []float64{0.0})

	step := New(Last, -1.0, 0.99, obs, 100)
	step.SetEnd(TerminalStateEnd)
	if !step.TerminatesEpisode() {
		t.Error("a terminal last step should terminate the episode")
	}

	timeout := New(Last, -1.0, 0.99, obs, 100)
	timeout.SetEnd(TimeoutEnd)
	if timeout.TerminatesEpisode() {
		t.Error("a timeout should not terminate the episode")
	}

	mid := New(Mid, -1.0, 0.99, obs, 10)
	if mid.TerminatesEpisode() {
		t.Error("a mid step should not terminate the episode")
	}
}

// TestTransitionMask checks that the bootstrap mask is zero only for
// transitions into terminal states
func TestTransitionMask(t *testing.T) {
	state := mat.NewVecDense(1, []float64{0.0})
	nextState := mat.NewVecDense(1, []float64{1.0})
	action := mat.NewVecDense(1, []float64{0.5})
	step := New(Mid, 0.0, 0.99, state, 5)

	terminal := New(Last, -1.0, 0.99, nextState, 6)
	terminal.SetEnd(TerminalStateEnd)
	transition := NewTransition(step, action, terminal)
	if transition.Mask != 0.0 {
		t.Errorf("expected mask 0 for a terminal transition, got %v",
			transition.Mask)
	}

	timeout := New(Last, -1.0, 0.99, nextState, 6)
	timeout.SetEnd(TimeoutEnd)
	transition = NewTransition(step, action, timeout)
	if transition.Mask != 1.0 {
		t.Errorf("expected mask 1 for a timeout transition, got %v",
			transition.Mask)
	}

	mid := New(Mid, -1.0, 0.99, nextState, 6)
	transition = NewTransition(step, action, mid)
	if transition.Mask != 1.0 {
		t.Errorf("expected mask 1 for a mid transition, got %v",
			transition.Mask)
	}

	if transition.Reward != -1.0 {
		t.Errorf("expected reward -1, got %v", transition.Reward)
	}
	if transition.NextState.AtVec(0) != 1.0 {
		t.Errorf("expected next state 1, got %v",
			transition.NextState.AtVec(0))
	}
}
