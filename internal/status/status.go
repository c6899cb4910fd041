// Package status provides a thread-safe status tracker for the touch-scale
// daemon. It is read by the HTTP handlers, the websocket stream and the
// system events published to MQTT.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/touch-scale/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Mode        string
	TickMs      int64
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	SourceTopic string
	HTTPAddr    string
	Demo        bool
	Buttons     bool
}

// Session is the observable projection of the weighing session.
type Session struct {
	ID                string
	Mode              string
	Phase             logic.Phase
	Listening         bool
	Device            string
	Pressure          float64
	DwellProgress     float64
	StabilityProgress float64
	Stabilizing       bool
	Weight            float64
	Baseline          float64
	MaxPressure       float64

	// Direct scale readout.
	Touching    bool
	ScaleWeight float64
	ZeroOffset  float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Session       Session
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	changed chan struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Session:   Session{Phase: logic.PhaseWelcome, Mode: cfg.Mode},
			StartTime: startTime,
			Config:    cfg,
		},
		changed: make(chan struct{}),
	}
}

// UpdateSession sets the session projection and event counts.
// Called by the session loop after every step.
func (t *Tracker) UpdateSession(s Session, counts logic.EventCounts) {
	t.mu.Lock()
	changed := t.snap.Session != s || t.snap.Counts != counts
	t.snap.Session = s
	t.snap.Counts = counts
	if changed {
		t.notifyLocked()
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	if t.snap.MQTTConnected != connected {
		t.snap.MQTTConnected = connected
		t.notifyLocked()
	}
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.notifyLocked()
	t.mu.Unlock()
}

// Changed returns a channel that is closed on the next change. Callers
// fetch a fresh channel after each wake-up.
func (t *Tracker) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Network != nil {
		n := *s.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func (t *Tracker) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}
