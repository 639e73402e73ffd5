// Package events publishes document lifecycle notifications over NATS
// JetStream so downstream consumers can react to analyses and chats.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// Stream and subject layout.
const (
	StreamDocs = "DOCS"

	SubjectAnalyzed = "docs.analyzed"
	SubjectChat     = "docs.chat"
	SubjectDeleted  = "docs.deleted"
)

// AnalyzedEvent is emitted after an analysis is persisted.
type AnalyzedEvent struct {
	Fingerprint string    `json:"fingerprint"`
	FileName    string    `json:"file_name"`
	IndexHandle string    `json:"index_handle,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	FromCache   bool      `json:"from_cache"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatEvent is emitted after a chat turn completes.
type ChatEvent struct {
	Fingerprint string    `json:"fingerprint"`
	Mode        string    `json:"mode"`
	Source      string    `json:"source"`
	TurnCount   int       `json:"turn_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// DeletedEvent is emitted after a document is removed.
type DeletedEvent struct {
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config holds NATS connection configuration.
type Config struct {
	URL            string
	ClientName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		ClientName:     "financial-analyzer",
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// Publisher emits document events. A nil *Publisher is valid and drops
// everything, so callers never need to branch on whether events are wired.
type Publisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewPublisher connects to NATS and ensures the DOCS stream exists.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "events")

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
		nats.ClosedHandler(func(conn *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: conn, js: js, logger: log}
	if err := p.setupStream(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("connected to NATS", "url", cfg.URL)
	return p, nil
}

func (p *Publisher) setupStream() error {
	cfg := nats.StreamConfig{
		Name:        StreamDocs,
		Description: "Document analysis lifecycle events",
		Subjects:    []string{"docs.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     -1,
		MaxBytes:    -1,
		Replicas:    1,
		Discard:     nats.DiscardOld,
	}

	_, err := p.js.StreamInfo(cfg.Name)
	if errors.Is(err, nats.ErrStreamNotFound) {
		if _, err := p.js.AddStream(&cfg); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		p.logger.Info("created stream", "stream", cfg.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
	}

	if _, err := p.js.UpdateStream(&cfg); err != nil {
		p.logger.Warn("failed to update stream", "stream", cfg.Name, "error", err)
	}
	return nil
}

// Analyzed publishes an AnalyzedEvent.
func (p *Publisher) Analyzed(ctx context.Context, fp domain.Fingerprint, fileName, indexHandle string, chunkCount int, fromCache bool) {
	p.publish(ctx, SubjectAnalyzed, AnalyzedEvent{
		Fingerprint: fp.String(),
		FileName:    fileName,
		IndexHandle: indexHandle,
		ChunkCount:  chunkCount,
		FromCache:   fromCache,
		Timestamp:   time.Now().UTC(),
	})
}

// Chat publishes a ChatEvent.
func (p *Publisher) Chat(ctx context.Context, fp domain.Fingerprint, mode domain.ChatMode, source domain.ContextSource, turnCount int) {
	p.publish(ctx, SubjectChat, ChatEvent{
		Fingerprint: fp.String(),
		Mode:        string(mode),
		Source:      string(source),
		TurnCount:   turnCount,
		Timestamp:   time.Now().UTC(),
	})
}

// Deleted publishes a DeletedEvent.
func (p *Publisher) Deleted(ctx context.Context, fp domain.Fingerprint) {
	p.publish(ctx, SubjectDeleted, DeletedEvent{
		Fingerprint: fp.String(),
		Timestamp:   time.Now().UTC(),
	})
}

// publish marshals and sends an event. Publish failures are logged, not
// surfaced: events are advisory and never fail the pipeline.
func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	if p == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "subject", subject, "error", err)
		return
	}

	p.mu.RLock()
	js := p.js
	p.mu.RUnlock()

	if _, err := js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
		return
	}

	p.logger.Debug("published event", "subject", subject, "size", len(data))
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("failed to drain NATS connection", "error", err)
	}
}
