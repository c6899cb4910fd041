package logic

import "testing"

func TestStatePhases(t *testing.T) {
	tests := []struct {
		state State
		want  Phase
	}{
		{Welcome{}, PhaseWelcome},
		{WaitingForFinger{Progress: 0.5}, PhaseWaitingForFinger},
		{WaitingForItem{}, PhaseWaitingForItem},
		{Weighing{CurrentPressure: 40}, PhaseWeighing},
		{Result{Weight: 50}, PhaseResult},
	}
	for _, tt := range tests {
		if got := tt.state.Phase(); got != tt.want {
			t.Errorf("%T: got %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestValidTransition(t *testing.T) {
	valid := [][2]Phase{
		{PhaseWelcome, PhaseWaitingForFinger},
		{PhaseWaitingForFinger, PhaseWaitingForFinger},
		{PhaseWaitingForFinger, PhaseWaitingForItem},
		{PhaseWaitingForItem, PhaseWaitingForFinger},
		{PhaseWaitingForItem, PhaseWeighing},
		{PhaseWeighing, PhaseWeighing},
		{PhaseWeighing, PhaseResult},
		{PhaseResult, PhaseWelcome},
		{PhaseWeighing, PhaseWelcome},
		{PhaseResult, PhaseWaitingForFinger},
	}
	for _, tr := range valid {
		if !ValidTransition(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be valid", tr[0], tr[1])
		}
	}

	invalid := [][2]Phase{
		{PhaseWelcome, PhaseWaitingForItem},
		{PhaseWelcome, PhaseWeighing},
		{PhaseWelcome, PhaseResult},
		{PhaseWaitingForFinger, PhaseWeighing},
		{PhaseWaitingForFinger, PhaseResult},
		{PhaseWaitingForItem, PhaseResult},
		{PhaseResult, PhaseResult},
		{PhaseResult, PhaseWeighing},
		{PhaseWeighing, Phase("BOGUS")},
	}
	for _, tr := range invalid {
		if ValidTransition(tr[0], tr[1]) {
			t.Errorf("expected %s -> %s to be invalid", tr[0], tr[1])
		}
	}
}

func TestEventCounts(t *testing.T) {
	var c EventCounts
	c.Add(Event{Type: EventSessionStarted}, PhaseWelcome)
	c.Add(Event{Type: EventResult}, PhaseWeighing)
	c.Add(Event{Type: EventRestarted}, PhaseResult)
	c.Add(Event{Type: EventSessionStarted}, PhaseWelcome)
	c.Add(Event{Type: EventRestarted}, PhaseWeighing)
	c.Add(Event{Type: EventRestarted}, PhaseWelcome)
	c.Add(Event{Type: EventItemPlaced}, PhaseWaitingForItem)

	if c.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", c.Attempts)
	}
	if c.Results != 1 {
		t.Errorf("expected 1 result, got %d", c.Results)
	}
	if c.Aborted != 1 {
		t.Errorf("expected 1 aborted, got %d", c.Aborted)
	}
}
