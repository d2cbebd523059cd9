package pubsub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
)

// EmbeddedNATSPubSub runs a NATS server with JetStream in-process, for
// development without external infrastructure.
type EmbeddedNATSPubSub struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
	local   *fanout
}

// EmbeddedNATSOptions configures the embedded NATS server
type EmbeddedNATSOptions struct {
	Port       int           // 0 or -1 picks a random port
	Subject    string        // Subject to publish/subscribe to
	StreamName string        // JetStream stream name
	StoreDir   string        // JetStream storage directory (empty = in-memory stream)
	MaxAge     time.Duration // Stream retention
}

// DefaultEmbeddedNATSOptions returns the development defaults.
func DefaultEmbeddedNATSOptions() EmbeddedNATSOptions {
	return EmbeddedNATSOptions{
		Port:       -1,
		Subject:    DefaultSubject,
		StreamName: DefaultStreamName,
		MaxAge:     time.Hour,
	}
}

// NewEmbeddedNATSPubSub starts the server, connects to it and subscribes to
// the stream so published events come back to local subscribers.
func NewEmbeddedNATSPubSub(opts EmbeddedNATSOptions) (*EmbeddedNATSPubSub, error) {
	defaults := DefaultEmbeddedNATSOptions()
	if opts.Port == 0 {
		opts.Port = -1
	}
	if opts.Subject == "" {
		opts.Subject = defaults.Subject
	}
	if opts.StreamName == "" {
		opts.StreamName = defaults.StreamName
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = defaults.MaxAge
	}

	serverOpts := &server.Options{
		Port:      opts.Port,
		JetStream: true,
		NoSigs:    true,
		StoreDir:  opts.StoreDir,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	ns.SetLogger(&natsLogger{}, false, false)
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
	}
	logger.Info("Embedded NATS server started", "url", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	storage := nats.MemoryStorage
	if opts.StoreDir != "" {
		storage = nats.FileStorage
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     opts.StreamName,
		Subjects: []string{opts.Subject},
		Storage:  storage,
		MaxAge:   opts.MaxAge,
	})
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("create JetStream stream: %w", err)
	}
	logger.Info("JetStream stream created", "stream", opts.StreamName, "subject", opts.Subject)

	ps := &EmbeddedNATSPubSub{
		server:  ns,
		nc:      nc,
		js:      js,
		subject: opts.Subject,
		local:   newFanout(100),
	}

	ps.sub, err = js.Subscribe(opts.Subject, ps.handle, nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", opts.Subject, err)
	}
	return ps, nil
}

func (p *EmbeddedNATSPubSub) handle(msg *nats.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to unmarshal event from JetStream", "error", err)
		_ = msg.Term()
		return
	}
	p.local.broadcast(event)
	_ = msg.Ack()
}

// Publish writes the event to JetStream; delivery happens through the
// stream subscription. A failed publish is delivered locally instead.
func (p *EmbeddedNATSPubSub) Publish(event Event) {
	if err := publishJSON(p.js, p.subject, event); err != nil {
		logger.Error("Failed to publish to embedded NATS", "error", err, "subject", p.subject, "event_type", event.Type)
		p.local.broadcast(event)
		return
	}
	logger.Debug("Published event to embedded NATS", "event_type", event.Type, "subject", p.subject)
}

func (p *EmbeddedNATSPubSub) Subscribe() chan Event {
	return p.local.add()
}

func (p *EmbeddedNATSPubSub) Unsubscribe(ch chan Event) {
	p.local.remove(ch)
}

// Close stops delivery and shuts the server down.
func (p *EmbeddedNATSPubSub) Close() {
	logger.Info("Shutting down embedded NATS server")
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	p.local.closeAll()
	if p.nc != nil {
		p.nc.Close()
	}
	if p.server != nil {
		p.server.Shutdown()
		p.server.WaitForShutdown()
	}
}

// ServerURL returns the client URL of the embedded server.
func (p *EmbeddedNATSPubSub) ServerURL() string {
	return p.server.ClientURL()
}

// SubscriberCount returns the number of local subscribers.
func (p *EmbeddedNATSPubSub) SubscriberCount() int {
	return p.local.count()
}

// natsLogger routes NATS server logs through our logger.
type natsLogger struct{}

func (l *natsLogger) Noticef(format string, v ...any) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Warnf(format string, v ...any) {
	logger.Warn(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Fatalf(format string, v ...any) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Errorf(format string, v ...any) {
	logger.Error(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Debugf(format string, v ...any) {
	logger.Debug(fmt.Sprintf("[NATS] "+format, v...))
}

func (l *natsLogger) Tracef(format string, v ...any) {
	logger.Debug(fmt.Sprintf("[NATS TRACE] "+format, v...))
}
