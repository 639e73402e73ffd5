package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ConsumerConfig holds durable subscription configuration.
type ConsumerConfig struct {
	Durable    string
	Queue      string
	AckWait    time.Duration
	MaxDeliver int
}

// DefaultConsumerConfig returns sensible defaults for the audit consumer.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Durable:    "findoc-audit",
		Queue:      "audit-workers",
		AckWait:    30 * time.Second,
		MaxDeliver: 3,
	}
}

// Handler processes one event. Returning an error leaves the message
// unacknowledged so JetStream redelivers it.
type Handler func(ctx context.Context, subject string, data []byte) error

// Consumer is a durable queue subscriber on the DOCS stream.
type Consumer struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config ConsumerConfig
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewConsumer connects to NATS and ensures the DOCS stream exists.
func NewConsumer(cfg Config, consumerCfg ConsumerConfig, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "events-consumer")

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(conn *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c := &Consumer{conn: conn, js: js, config: consumerCfg, logger: log}
	p := &Publisher{conn: conn, js: js, logger: log}
	if err := p.setupStream(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("connected to NATS", "url", cfg.URL)
	return c, nil
}

// Subscribe starts a durable queue subscription on every docs subject.
// Each message is handed to fn with a bounded context and acknowledged
// only when fn succeeds.
func (c *Consumer) Subscribe(fn Handler) error {
	sub, err := c.js.QueueSubscribe(
		"docs.>",
		c.config.Queue,
		func(msg *nats.Msg) {
			ctx, cancel := context.WithTimeout(context.Background(), c.config.AckWait)
			defer cancel()

			if err := fn(ctx, msg.Subject, msg.Data); err != nil {
				c.logger.Warn("event handler failed",
					"subject", msg.Subject,
					"error", err,
				)
				if err := msg.Nak(); err != nil {
					c.logger.Warn("failed to nak message", "error", err)
				}
				return
			}
			if err := msg.Ack(); err != nil {
				c.logger.Warn("failed to ack message", "error", err)
			}
		},
		nats.Durable(c.config.Durable),
		nats.ManualAck(),
		nats.AckWait(c.config.AckWait),
		nats.MaxDeliver(c.config.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to docs events: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	c.logger.Info("subscribed", "subject", "docs.>", "durable", c.config.Durable)
	return nil
}

// Close drains subscriptions and the connection.
func (c *Consumer) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("failed to drain subscription", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.logger.Warn("failed to drain NATS connection", "error", err)
		}
	}
}
