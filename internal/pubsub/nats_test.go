package pubsub

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNATSPublishFailureStillDeliversLocally(t *testing.T) {
	embedded := newTestEmbedded(t)

	nc, err := nats.Connect(embedded.ServerURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		t.Fatalf("jetstream: %v", err)
	}
	// no stream captures this subject, so every publish is rejected
	ps := &NATSPubSub{nc: nc, js: js, subject: "draftkit.unbound", local: newFanout(10)}
	t.Cleanup(ps.Close)

	ch := ps.Subscribe()
	ps.Publish(NewEvent("dense:set", 4, nil))

	select {
	case e := <-ch:
		if e.Version != 4 {
			t.Errorf("expected version 4, got %d", e.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered locally after a failed publish")
	}
}

func TestEmbeddedNATSPublishFailureStillDeliversLocally(t *testing.T) {
	ps := newTestEmbedded(t)
	ps.subject = "draftkit.unbound"
	ch := ps.Subscribe()

	ps.Publish(NewEvent("dense:set", 9, nil))

	select {
	case e := <-ch:
		if e.Version != 9 {
			t.Errorf("expected version 9, got %d", e.Version)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered locally after a failed publish")
	}
}
