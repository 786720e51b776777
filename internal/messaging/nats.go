package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream transport.
type NATSConfig struct {
	// URL of the NATS server. Defaults to nats.DefaultURL.
	URL string

	// Stream is the JetStream stream holding every fulfillment subject.
	Stream string

	// SubjectPrefix is prepended to message names to form subjects.
	SubjectPrefix string

	// DurablePrefix is prepended to message names to form durable consumer
	// names, so consumers survive restarts without losing their position.
	DurablePrefix string

	// AckWait is how long JetStream waits for an ack before redelivering.
	AckWait time.Duration

	// Conn lets the caller share an existing connection. When nil the
	// transport dials URL itself and owns the connection.
	Conn *nats.Conn
}

// NATSBus implements Bus on top of NATS JetStream.
//
// One work-queue stream covers every fulfillment subject. Each subscription
// is a durable queue consumer with manual acks: the message is acked only
// after the handler returns nil, and naked on error so JetStream redelivers.
// That is the at-least-once contract the orchestrator's persistence logic is
// written against.
type NATSBus struct {
	cfg      NATSConfig
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	mu       sync.Mutex
	handlers map[string]Handler
	subs     []*nats.Subscription
	running  bool
}

// NewNATSBus builds a JetStream bus. Connection happens in Start.
func NewNATSBus(cfg NATSConfig) *NATSBus {
	if cfg.Stream == "" {
		cfg.Stream = "FULFILLMENT"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "fulfillment."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "fulfillment-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	return &NATSBus{
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
}

// Publish sends the envelope to the subject derived from its name.
func (b *NATSBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	js, running := b.js, b.running
	b.mu.Unlock()
	if !running || js == nil {
		return errors.New("nats: bus not running")
	}

	injectTrace(ctx, &env)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("nats: marshal %s: %w", env.Name, err)
	}
	if _, err := js.Publish(b.subject(env.Name), data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", env.Name, err)
	}
	return nil
}

// Subscribe registers a handler for one message name. Call before Start.
func (b *NATSBus) Subscribe(name string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("nats: subscribe after start")
	}
	if _, dup := b.handlers[name]; dup {
		return fmt.Errorf("nats: handler already registered for %s", name)
	}
	b.handlers[name] = h
	return nil
}

// Start connects, ensures the stream exists, and binds a durable queue
// consumer for every registered handler.
func (b *NATSBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("nats: bus already running")
	}
	if err := b.connect(); err != nil {
		return err
	}
	if err := b.ensureStream(); err != nil {
		return err
	}
	for name, h := range b.handlers {
		sub, err := b.subscribe(name, h)
		if err != nil {
			return err
		}
		b.subs = append(b.subs, sub)
	}
	b.running = true
	return nil
}

// Close drains subscriptions and closes the connection if the bus owns it.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
	if b.ownsConn && b.conn != nil {
		b.conn.Close()
	}
	b.conn = nil
	b.js = nil
	b.running = false
	return nil
}

func (b *NATSBus) connect() error {
	if b.cfg.Conn != nil {
		b.conn = b.cfg.Conn
	} else {
		url := b.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url)
		if err != nil {
			return fmt.Errorf("nats: connect %s: %w", url, err)
		}
		b.conn = conn
		b.ownsConn = true
	}
	js, err := b.conn.JetStream()
	if err != nil {
		return fmt.Errorf("nats: jetstream context: %w", err)
	}
	b.js = js
	return nil
}

func (b *NATSBus) ensureStream() error {
	_, err := b.js.StreamInfo(b.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return fmt.Errorf("nats: stream info %s: %w", b.cfg.Stream, err)
	}
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      b.cfg.Stream,
		Subjects:  []string{b.cfg.SubjectPrefix + ">"},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("nats: add stream %s: %w", b.cfg.Stream, err)
	}
	return nil
}

func (b *NATSBus) subscribe(name string, h Handler) (*nats.Subscription, error) {
	durable := b.cfg.DurablePrefix + strings.ReplaceAll(name, ".", "-")
	sub, err := b.js.QueueSubscribe(b.subject(name), durable, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			// A payload that cannot even be decoded will never succeed on
			// redelivery; ack it away and log.
			slog.Warn("dropping undecodable bus message", "subject", msg.Subject, "error", err)
			_ = msg.Ack()
			return
		}
		ctx := extractTrace(context.Background(), env)
		if err := h.Handle(ctx, env); err != nil {
			slog.ErrorContext(ctx, "bus handler failed, message will be redelivered",
				"message", env.Name, "correlation_id", env.CorrelationID, "error", err)
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			slog.WarnContext(ctx, "bus ack failed", "message", env.Name, "error", err)
		}
	},
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(b.cfg.AckWait),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", name, err)
	}
	return sub, nil
}

func (b *NATSBus) subject(name string) string {
	return b.cfg.SubjectPrefix + name
}

var _ Bus = (*NATSBus)(nil)
