package status

import (
	"encoding/json"
	"time"
)

// StatusJSON wraps every status payload under a "status" key.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner is the body shared by the web, websocket and MQTT payloads.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Session       SessionJSON  `json:"session"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SessionJSON is the JSON representation of the session projection.
type SessionJSON struct {
	ID                string    `json:"id,omitempty"`
	Mode              string    `json:"mode"`
	State             string    `json:"state"`
	Listening         bool      `json:"listening"`
	Device            string    `json:"device,omitempty"`
	Pressure          float64   `json:"pressure"`
	DwellProgress     float64   `json:"dwell_progress"`
	StabilityProgress float64   `json:"stability_progress"`
	Stabilizing       bool      `json:"stabilizing"`
	Weight            float64   `json:"weight"`
	Baseline          float64   `json:"baseline"`
	MaxPressure       float64   `json:"max_pressure"`
	Scale             ScaleJSON `json:"scale"`
}

// ScaleJSON is the direct readout.
type ScaleJSON struct {
	Touching   bool    `json:"touching"`
	Weight     float64 `json:"weight"`
	ZeroOffset float64 `json:"zero_offset"`
}

// MQTTStatus is the broker link as seen by the publisher.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON holds the session outcome counters.
type CountsJSON struct {
	Attempts int `json:"attempts"`
	Results  int `json:"results"`
	Aborted  int `json:"aborted"`
}

// NetworkJSON mirrors NetworkInfo.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON echoes the flags the daemon was started with.
type ConfigJSON struct {
	Mode        string `json:"mode"`
	TickMs      int64  `json:"tick_ms"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	SourceTopic string `json:"source_topic,omitempty"`
	HTTPAddr    string `json:"http_addr"`
	Demo        bool   `json:"demo"`
	Buttons     bool   `json:"buttons"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Session.Phase)
	if state == "" {
		state = "UNKNOWN"
	}
	s := snap.Session

	inner := StatusInner{
		Session: SessionJSON{
			ID:                s.ID,
			Mode:              s.Mode,
			State:             state,
			Listening:         s.Listening,
			Device:            s.Device,
			Pressure:          s.Pressure,
			DwellProgress:     s.DwellProgress,
			StabilityProgress: s.StabilityProgress,
			Stabilizing:       s.Stabilizing,
			Weight:            s.Weight,
			Baseline:          s.Baseline,
			MaxPressure:       s.MaxPressure,
			Scale: ScaleJSON{
				Touching:   s.Touching,
				Weight:     s.ScaleWeight,
				ZeroOffset: s.ZeroOffset,
			},
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Attempts: snap.Counts.Attempts,
			Results:  snap.Counts.Results,
			Aborted:  snap.Counts.Aborted,
		},
		Config: ConfigJSON{
			Mode:        snap.Config.Mode,
			TickMs:      snap.Config.TickMs,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			SourceTopic: snap.Config.SourceTopic,
			HTTPAddr:    snap.Config.HTTPAddr,
			Demo:        snap.Config.Demo,
			Buttons:     snap.Config.Buttons,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON renders the indented status served at /index.json.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCompactJSON returns the status on one line, for the websocket stream.
func FormatCompactJSON(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatStatusEvent renders a STARTUP, HEARTBEAT or SHUTDOWN payload.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
