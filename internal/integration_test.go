package internal

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/mqtt"
	"github.com/sweeney/touch-scale/internal/status"
	"github.com/sweeney/touch-scale/internal/touch"
	"github.com/sweeney/touch-scale/internal/weighing"
)

const step = 10 * time.Millisecond

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// drive feeds one batch per step through the machine the way the session
// loop does, publishing every event. It stops after a RESULT.
func drive(t *testing.T, m *weighing.Machine, clock *clockwork.FakeClock, pub *mqtt.FakePublisher, batches func(i int) touch.Batch, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		clock.Advance(step)
		events := m.Process(batches(i))
		select {
		case <-m.TimerC():
			events = append(events, m.Tick()...)
		default:
		}
		for _, e := range events {
			if err := pub.Publish(e); err != nil {
				t.Fatalf("step %d: publish error: %v", i, err)
			}
		}
		if m.State().Phase() == logic.PhaseResult {
			return
		}
	}
}

func demoBatch(i int) touch.Batch {
	p, touching := touch.DemoPressure(time.Duration(i+1)*step, 50)
	if !touching {
		return nil
	}
	return touch.Batch{{ID: 1, Pressure: p, State: touch.StateTouching}}
}

func types(events []logic.Event) []logic.EventType {
	var out []logic.EventType
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// TestIntegrationDemoCycle weighs the synthetic demo profile end to end.
func TestIntegrationDemoCycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := weighing.NewMachine(weighing.DefaultConfig(), clock)
	pub := mqtt.NewFakePublisher()

	for _, e := range m.Start() {
		pub.Publish(e)
	}
	drive(t, m, clock, pub, demoBatch, 1500)

	r, ok := m.State().(logic.Result)
	if !ok {
		t.Fatalf("expected Result, got %s (events %v)", m.State().Phase(), types(pub.Events))
	}
	if math.Abs(r.Weight-58) > 1e-9 {
		t.Errorf("expected weight 58 (finger 8 + item 50), got %v", r.Weight)
	}

	got := types(pub.Events)
	want := []logic.EventType{
		logic.EventSessionStarted,
		logic.EventFingerDetected,
		logic.EventItemPlaced,
	}
	for i, w := range want {
		if i >= len(got) || got[i] != w {
			t.Fatalf("event %d: expected %s, got %v", i, w, got)
		}
	}
	if got[len(got)-1] != logic.EventResult {
		t.Errorf("expected RESULT last, got %v", got)
	}
	if got[len(got)-2] != logic.EventSettling {
		t.Errorf("expected SETTLING before RESULT, got %v", got)
	}

	placed := pub.Events[2]
	if placed.Baseline != 8 {
		t.Errorf("expected baseline at the resting finger pressure, got %v", placed.Baseline)
	}
	if m.TimerC() != nil {
		t.Error("no timer should run after RESULT")
	}
}

// TestIntegrationWireBatches runs encoded batches through the decoder and the
// machine, and checks the published RESULT payload.
func TestIntegrationWireBatches(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := weighing.NewMachine(weighing.DefaultConfig(), clock)
	pub := mqtt.NewFakePublisher()
	m.Start()

	wire := func(i int) touch.Batch {
		b := demoBatch(i)
		data, err := touch.EncodeBatch("builtin", epoch.Add(time.Duration(i)*step), b)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, device, err := touch.DecodeBatch(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if device != "builtin" {
			t.Fatalf("device: got %q", device)
		}
		return decoded
	}
	drive(t, m, clock, pub, wire, 1500)

	if m.State().Phase() != logic.PhaseResult {
		t.Fatalf("expected Result, got %s", m.State().Phase())
	}

	last := pub.Payloads[len(pub.Payloads)-1]
	var parsed mqtt.Payload
	if err := json.Unmarshal(last, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Scale.Event != "RESULT" || parsed.Scale.State != "RESULT" {
		t.Errorf("unexpected payload: %s", last)
	}
	if parsed.Scale.Weight != 58 {
		t.Errorf("payload weight: got %v, want 58", parsed.Scale.Weight)
	}
	if parsed.Scale.MaxPressure < 58 {
		t.Errorf("payload max_pressure: got %v", parsed.Scale.MaxPressure)
	}
}

// TestIntegrationLiftFinalizes lifts the finger while weighing and expects
// the last weight as the result.
func TestIntegrationLiftFinalizes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := weighing.NewMachine(weighing.DefaultConfig(), clock)
	pub := mqtt.NewFakePublisher()
	m.Start()

	// Stop feeding the profile shortly after placement, then lift.
	var placedAt = -1
	lift := func(i int) touch.Batch {
		if placedAt < 0 && m.State().Phase() == logic.PhaseWeighing {
			placedAt = i
		}
		if placedAt >= 0 && i > placedAt+30 {
			return nil
		}
		return demoBatch(i)
	}
	drive(t, m, clock, pub, lift, 1500)

	r, ok := m.State().(logic.Result)
	if !ok {
		t.Fatalf("expected Result after lift, got %s", m.State().Phase())
	}
	if r.Weight <= 8 {
		t.Errorf("expected the item weight to be included, got %v", r.Weight)
	}
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := weighing.NewMachine(weighing.DefaultConfig(), clock)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("connection refused")

	for _, e := range m.Start() {
		if err := pub.Publish(e); err == nil {
			t.Error("expected publish error")
		}
	}
	// The machine keeps running regardless of the publisher.
	for i := 0; i < 600; i++ {
		clock.Advance(step)
		m.Process(demoBatch(i))
		select {
		case <-m.TimerC():
			m.Tick()
		default:
		}
	}
	if m.State().Phase() == logic.PhaseWaitingForFinger || m.State().Phase() == logic.PhaseWelcome {
		t.Errorf("machine should have progressed, still in %s", m.State().Phase())
	}
}

func newTracker() *status.Tracker {
	return status.NewTracker(time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC), status.Config{
		Mode:        "guided",
		TickMs:      16,
		PollMs:      50,
		DebounceMs:  30,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		SourceTopic: mqtt.TopicBatches,
		HTTPAddr:    ":80",
	})
}

// TestIntegrationStartupEvent publishes a STARTUP event carrying a full
// status snapshot.
func TestIntegrationStartupEvent(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	tracker := newTracker()

	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := publisher.PublishedSystemEvents()
	if len(events) != 1 || !events[0].Retained {
		t.Fatalf("expected 1 retained system event, got %+v", events)
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "STARTUP" {
		t.Errorf("payload event: expected STARTUP, got %s", parsed.Status.Event)
	}
	if parsed.Status.Session.State != "WELCOME" {
		t.Errorf("payload state: expected WELCOME, got %s", parsed.Status.Session.State)
	}
	if parsed.Status.Config.HeartbeatMs != 900000 {
		t.Errorf("payload heartbeat_ms: expected 900000, got %d", parsed.Status.Config.HeartbeatMs)
	}
	if parsed.Status.Config.SourceTopic != mqtt.TopicBatches {
		t.Errorf("payload source_topic: got %s", parsed.Status.Config.SourceTopic)
	}
	if parsed.Status.StartTime != "2026-02-03T19:05:51Z" {
		t.Errorf("payload start_time: got %s", parsed.Status.StartTime)
	}
}

// TestIntegrationShutdownAfterResult reports the last result and counts in
// the SHUTDOWN snapshot.
func TestIntegrationShutdownAfterResult(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	tracker := newTracker()

	tracker.UpdateSession(status.Session{
		ID:     "0b7e3a4c-5d6f-4a1b-9c2d-3e4f5a6b7c8d",
		Mode:   "guided",
		Phase:  logic.PhaseResult,
		Weight: 58,
	}, logic.EventCounts{Attempts: 2, Results: 1, Aborted: 1})

	snap := tracker.Snapshot()
	publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	})

	var parsed status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("unexpected event/reason: %s/%s", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.Session.Weight != 58 {
		t.Errorf("expected last weight, got %v", parsed.Status.Session.Weight)
	}
	c := parsed.Status.Counts
	if c.Attempts != 2 || c.Results != 1 || c.Aborted != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
}

func TestIntegrationHeartbeatWithNetworkInfo(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	tracker := newTracker()
	tracker.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "Kitchen"})
	tracker.SetMQTTConnected(true)

	hb := logic.NewHeartbeat(epoch)
	data := hb.Check(epoch.Add(15*time.Minute), 15*time.Minute, logic.EventCounts{Results: 4})
	if data == nil {
		t.Fatal("expected heartbeat due")
	}

	publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  data.Timestamp,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", ""),
	})

	var parsed status.StatusJSON
	if err := json.Unmarshal(publisher.SystemPayloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "Kitchen" {
		t.Errorf("expected network info, got %+v", parsed.Status.Network)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected mqtt connected")
	}
}
