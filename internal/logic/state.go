// Package logic contains the pure weighing logic: the lifecycle states, the
// smoothing window, placement and stability detection, button debouncing and
// the direct scale readout.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

// Phase names a lifecycle state without its payload.
type Phase string

const (
	PhaseWelcome          Phase = "WELCOME"
	PhaseWaitingForFinger Phase = "WAITING_FOR_FINGER"
	PhaseWaitingForItem   Phase = "WAITING_FOR_ITEM"
	PhaseWeighing         Phase = "WEIGHING"
	PhaseResult           Phase = "RESULT"
)

// State is the lifecycle state of a weighing session. It is one of Welcome,
// WaitingForFinger, WaitingForItem, Weighing or Result.
type State interface {
	Phase() Phase
	sealed()
}

// Welcome is idle with no sensor subscription.
type Welcome struct{}

// WaitingForFinger watches for sustained contact. Progress runs 0..1 over the
// dwell period.
type WaitingForFinger struct {
	Progress float64
}

// WaitingForItem has a confirmed finger and watches for a placement spike.
type WaitingForItem struct{}

// Weighing tracks the pressure plateau after an item was placed.
type Weighing struct {
	CurrentPressure   float64
	StabilityProgress float64
	Stabilizing       bool
}

// Result is terminal for the attempt. Only a restart leaves it.
type Result struct {
	Weight float64
}

func (Welcome) Phase() Phase          { return PhaseWelcome }
func (WaitingForFinger) Phase() Phase { return PhaseWaitingForFinger }
func (WaitingForItem) Phase() Phase   { return PhaseWaitingForItem }
func (Weighing) Phase() Phase         { return PhaseWeighing }
func (Result) Phase() Phase           { return PhaseResult }

func (Welcome) sealed()          {}
func (WaitingForFinger) sealed() {}
func (WaitingForItem) sealed()   {}
func (Weighing) sealed()         {}
func (Result) sealed()           {}

// ValidTransition reports whether a session may move from one phase to
// another. Any phase may return to Welcome (restart) or WaitingForFinger
// (start, or finger lifted before an item). Otherwise phases advance one step
// at a time, and Result is reachable only from Weighing.
func ValidTransition(from, to Phase) bool {
	switch to {
	case PhaseWelcome, PhaseWaitingForFinger:
		return true
	case PhaseWaitingForItem:
		return from == PhaseWaitingForFinger || from == PhaseWaitingForItem
	case PhaseWeighing:
		return from == PhaseWaitingForItem || from == PhaseWeighing
	case PhaseResult:
		return from == PhaseWeighing
	}
	return false
}
