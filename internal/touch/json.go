package touch

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchJSON is the wire representation of a batch published by the sensor
// driver.
type BatchJSON struct {
	Device    string       `json:"device,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
	Touches   []SampleJSON `json:"touches"`
}

// SampleJSON is the wire representation of a single touch.
type SampleJSON struct {
	ID        int     `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Total     float64 `json:"total"`
	Pressure  float64 `json:"pressure"`
	Major     float64 `json:"major"`
	Minor     float64 `json:"minor"`
	Angle     float64 `json:"angle"`
	Density   float64 `json:"density"`
	State     string  `json:"state"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// DecodeBatch parses a batch payload. Samples that are malformed or out of
// range are dropped. The device name from the envelope is returned alongside.
func DecodeBatch(data []byte) (Batch, string, error) {
	var bj BatchJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return nil, "", fmt.Errorf("decode batch: %w", err)
	}

	batchTime := parseTime(bj.Timestamp)
	batch := make(Batch, 0, len(bj.Touches))
	for _, tj := range bj.Touches {
		s := Sample{
			ID:       tj.ID,
			Position: Position{X: tj.X, Y: tj.Y},
			Total:    tj.Total,
			Pressure: tj.Pressure,
			Axis:     Axis{Major: tj.Major, Minor: tj.Minor},
			Angle:    tj.Angle,
			Density:  tj.Density,
			State:    State(tj.State),
			Time:     parseTime(tj.Timestamp),
		}
		if s.Time.IsZero() {
			s.Time = batchTime
		}
		if !s.Valid() {
			continue
		}
		batch = append(batch, s)
	}
	return batch, bj.Device, nil
}

// EncodeBatch formats a batch for the wire. Used by the demo publisher and
// tests.
func EncodeBatch(device string, at time.Time, b Batch) ([]byte, error) {
	bj := BatchJSON{
		Device:    device,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Touches:   make([]SampleJSON, 0, len(b)),
	}
	for _, s := range b {
		sj := SampleJSON{
			ID:       s.ID,
			X:        s.Position.X,
			Y:        s.Position.Y,
			Total:    s.Total,
			Pressure: s.Pressure,
			Major:    s.Axis.Major,
			Minor:    s.Axis.Minor,
			Angle:    s.Angle,
			Density:  s.Density,
			State:    string(s.State),
		}
		if !s.Time.IsZero() {
			sj.Timestamp = s.Time.UTC().Format(time.RFC3339Nano)
		}
		bj.Touches = append(bj.Touches, sj)
	}
	return json.Marshal(bj)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
