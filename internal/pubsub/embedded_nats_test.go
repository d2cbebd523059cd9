package pubsub

import (
	"testing"
	"time"
)

func newTestEmbedded(t *testing.T) *EmbeddedNATSPubSub {
	t.Helper()
	ps, err := NewEmbeddedNATSPubSub(DefaultEmbeddedNATSOptions())
	if err != nil {
		t.Fatalf("Failed to create embedded NATS: %v", err)
	}
	t.Cleanup(ps.Close)
	return ps
}

func TestEmbeddedNATSStarts(t *testing.T) {
	ps := newTestEmbedded(t)

	if ps.server == nil || ps.nc == nil || ps.js == nil {
		t.Fatal("server, connection and JetStream context should be set")
	}
	if ps.ServerURL() == "" {
		t.Error("server URL should not be empty")
	}
	if ps.subject != DefaultSubject {
		t.Errorf("expected subject %s, got %s", DefaultSubject, ps.subject)
	}
}

func TestEmbeddedNATSSubscribeUnsubscribe(t *testing.T) {
	ps := newTestEmbedded(t)

	ch := ps.Subscribe()
	if ps.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", ps.SubscriberCount())
	}
	ps.Unsubscribe(ch)
	if ps.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", ps.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestEmbeddedNATSRoundTrip(t *testing.T) {
	ps := newTestEmbedded(t)
	ch := ps.Subscribe()

	for v := uint64(1); v <= 3; v++ {
		ps.Publish(NewEvent("queue:toggle", v, map[string]any{"playerId": "p1", "queued": v%2 == 1}))
	}

	for want := uint64(1); want <= 3; want++ {
		select {
		case e := <-ch:
			if e.Version != want {
				t.Fatalf("expected version %d, got %d", want, e.Version)
			}
			if e.Payload["playerId"] != "p1" {
				t.Error("payload mismatch")
			}
			if e.ID == "" {
				t.Error("event id lost in transit")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestEmbeddedNATSAsUpstream(t *testing.T) {
	ps := NewWithUpstream(newTestEmbedded(t))
	ch := ps.Subscribe()

	ps.Publish(NewEvent("draft:reset", 4, nil))

	select {
	case e := <-ch:
		if e.Type != "draft:reset" || e.Version != 4 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event through embedded NATS")
	}
}

func TestEmbeddedNATSCustomOptions(t *testing.T) {
	ps, err := NewEmbeddedNATSPubSub(EmbeddedNATSOptions{
		Subject:    "custom.events",
		StreamName: "CUSTOM_STREAM",
	})
	if err != nil {
		t.Fatalf("Failed to create embedded NATS with custom options: %v", err)
	}
	defer ps.Close()

	if ps.subject != "custom.events" {
		t.Errorf("expected subject custom.events, got %s", ps.subject)
	}
}

func TestDefaultEmbeddedNATSOptions(t *testing.T) {
	opts := DefaultEmbeddedNATSOptions()

	if opts.Port != -1 {
		t.Errorf("expected port -1 (random), got %d", opts.Port)
	}
	if opts.StreamName != DefaultStreamName {
		t.Errorf("expected stream name %s, got %s", DefaultStreamName, opts.StreamName)
	}
	if opts.StoreDir != "" {
		t.Errorf("expected empty store dir, got %s", opts.StoreDir)
	}
	if opts.MaxAge != time.Hour {
		t.Errorf("expected one hour retention, got %s", opts.MaxAge)
	}
}
