package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
)

const (
	DefaultSubject    = "draftkit.events"
	DefaultStreamName = "DRAFTKIT_EVENTS"
)

// NATSOptions configures a connection to an external NATS server.
type NATSOptions struct {
	URL        string
	Subject    string
	StreamName string
}

// NATSPubSub publishes events to a NATS JetStream stream and fans them out
// to local subscribers.
type NATSPubSub struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	local   *fanout
}

// NewNATSPubSub connects to NATS and makes sure the stream exists.
func NewNATSPubSub(opts NATSOptions) (*NATSPubSub, error) {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.StreamName == "" {
		opts.StreamName = DefaultStreamName
	}

	nc, err := nats.Connect(opts.URL, nats.Name("draftkit"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(opts.StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     opts.StreamName,
			Subjects: []string{opts.Subject},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %s: %w", opts.StreamName, err)
		}
	}
	logger.Info("Connected to NATS", "url", opts.URL, "stream", opts.StreamName, "subject", opts.Subject)

	return &NATSPubSub{
		nc:      nc,
		js:      js,
		subject: opts.Subject,
		local:   newFanout(100),
	}, nil
}

// Publish writes the event to JetStream, then delivers it locally. Local
// subscribers get the event even when JetStream rejects it.
func (p *NATSPubSub) Publish(event Event) {
	if err := publishJSON(p.js, p.subject, event); err != nil {
		logger.Error("Failed to publish to NATS", "error", err, "subject", p.subject, "event_type", event.Type)
	}
	p.local.broadcast(event)
}

func (p *NATSPubSub) Subscribe() chan Event {
	return p.local.add()
}

func (p *NATSPubSub) Unsubscribe(ch chan Event) {
	p.local.remove(ch)
}

// Close closes local subscribers and the NATS connection.
func (p *NATSPubSub) Close() {
	p.local.closeAll()
	if p.nc != nil {
		p.nc.Close()
	}
}

func publishJSON(js nats.JetStreamContext, subject string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
