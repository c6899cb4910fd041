package logic

import "time"

// EventType names a weighing session transition.
type EventType string

const (
	EventSessionStarted  EventType = "SESSION_STARTED"
	EventFingerDetected  EventType = "FINGER_DETECTED"
	EventFingerLifted    EventType = "FINGER_LIFTED"
	EventItemPlaced      EventType = "ITEM_PLACED"
	EventStabilityBroken EventType = "STABILITY_BROKEN"
	EventSettling        EventType = "SETTLING"
	EventResult          EventType = "RESULT"
	EventRestarted       EventType = "RESTARTED"
)

// Event is a session transition to be published.
type Event struct {
	Timestamp   time.Time
	Type        EventType
	Session     string // stamped by the session owner
	Phase       Phase
	Pressure    float64
	Baseline    float64
	Weight      float64
	MaxPressure float64
}

// EventCounts tracks session outcomes since startup.
type EventCounts struct {
	Attempts int // sessions started
	Results  int // sessions that produced a weight
	Aborted  int // sessions restarted before a result
}

// Add counts e. Restarts of a session that already produced a result are
// not aborts; callers pass the phase the restart left.
func (c *EventCounts) Add(e Event, leaving Phase) {
	switch e.Type {
	case EventSessionStarted:
		c.Attempts++
	case EventResult:
		c.Results++
	case EventRestarted:
		if leaving != PhaseResult && leaving != PhaseWelcome {
			c.Aborted++
		}
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
