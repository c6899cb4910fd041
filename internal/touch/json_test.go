package touch

import (
	"testing"
	"time"
)

func TestDecodeBatch(t *testing.T) {
	data := []byte(`{"device":"builtin","timestamp":"2026-01-01T12:00:00Z","touches":[
		{"id":1,"x":0.5,"y":0.4,"total":1.2,"pressure":12.5,"major":8.1,"minor":7.9,"angle":0.3,"density":0.2,"state":"touching"}
	]}`)

	b, device, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device != "builtin" {
		t.Errorf("device: got %q, want builtin", device)
	}
	if len(b) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(b))
	}

	s := b[0]
	if s.ID != 1 || s.Pressure != 12.5 || s.State != StateTouching {
		t.Errorf("unexpected sample: %+v", s)
	}
	if s.Position.X != 0.5 || s.Position.Y != 0.4 {
		t.Errorf("unexpected position: %+v", s.Position)
	}
	if s.Axis.Major != 8.1 || s.Axis.Minor != 7.9 {
		t.Errorf("unexpected axis: %+v", s.Axis)
	}
	want := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if !s.Time.Equal(want) {
		t.Errorf("sample time: got %v, want batch time %v", s.Time, want)
	}
}

func TestDecodeBatchEmpty(t *testing.T) {
	b, _, err := DecodeBatch([]byte(`{"touches":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 0 {
		t.Errorf("expected empty batch, got %d samples", len(b))
	}
}

func TestDecodeBatchDropsMalformedSamples(t *testing.T) {
	data := []byte(`{"touches":[
		{"id":1,"pressure":-3,"state":"touching"},
		{"id":2,"pressure":4,"state":"wobbling"},
		{"id":3,"pressure":9,"state":"starting"}
	]}`)
	b, _, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 1 || b[0].ID != 3 {
		t.Fatalf("expected only sample 3 to survive, got %+v", b)
	}
}

func TestDecodeBatchInvalidJSON(t *testing.T) {
	if _, _, err := DecodeBatch([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestEncodeDecodeBatch(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	in := Batch{{ID: 7, Pressure: 42, State: StateTouching, Time: at}}

	data, err := EncodeBatch("demo", at, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, device, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if device != "demo" {
		t.Errorf("device: got %q, want demo", device)
	}
	if len(out) != 1 || out[0].ID != 7 || out[0].Pressure != 42 || !out[0].Time.Equal(at) {
		t.Errorf("unexpected decoded batch: %+v", out)
	}
}
