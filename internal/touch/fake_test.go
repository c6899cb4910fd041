package touch

import (
	"errors"
	"testing"
	"time"
)

func TestFakeSourceSendWithoutSubscription(t *testing.T) {
	f := NewFakeSource()
	if f.Send(Batch{}) {
		t.Error("Send should fail with no subscription")
	}
	if f.Listening() {
		t.Error("should not be listening initially")
	}
}

func TestFakeSourceSubscribeAndSend(t *testing.T) {
	f := NewFakeSource()
	sub, err := f.Subscribe()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Listening() {
		t.Error("should be listening after Subscribe")
	}

	got := make(chan Batch, 1)
	go func() { got <- <-sub.Batches() }()

	if !f.Send(Batch{{ID: 4, Pressure: 1, State: StateTouching}}) {
		t.Fatal("Send should succeed with live subscription")
	}
	select {
	case b := <-got:
		if len(b) != 1 || b[0].ID != 4 {
			t.Errorf("unexpected batch: %+v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("batch not delivered")
	}
}

func TestFakeSourceClose(t *testing.T) {
	f := NewFakeSource()
	sub, _ := f.Subscribe()

	sub.Close()
	sub.Close()

	if f.Listening() {
		t.Error("should not be listening after Close")
	}
	if f.Send(Batch{}) {
		t.Error("Send should fail after Close")
	}
	subs, closes := f.Counts()
	if subs != 1 || closes != 1 {
		t.Errorf("expected (1, 1) counts, got (%d, %d)", subs, closes)
	}
}

func TestFakeSourceSubscribeError(t *testing.T) {
	f := NewFakeSource()
	f.SubscribeError = errors.New("no device")

	if _, err := f.Subscribe(); err == nil {
		t.Error("expected subscribe error")
	}
	if subs, _ := f.Counts(); subs != 0 {
		t.Errorf("expected 0 subscribes, got %d", subs)
	}
}

func TestFakeSourceDisconnect(t *testing.T) {
	f := NewFakeSource()
	sub, _ := f.Subscribe()

	f.Disconnect()

	if _, ok := <-sub.Batches(); ok {
		t.Error("expected batch channel closed after disconnect")
	}
	if f.Listening() {
		t.Error("should not be listening after disconnect")
	}

	// Releasing a disconnected subscription still counts.
	sub.Close()
	if _, closes := f.Counts(); closes != 1 {
		t.Errorf("expected 1 close, got %d", closes)
	}
}
