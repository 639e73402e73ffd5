// Package main is the entry point for the audit worker.
//
// The worker consumes document lifecycle events from the DOCS stream and
// appends them to the activity log, keeping an audit trail of analyses,
// chats, and deletions independent of the API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/fin360/financial-analyzer/internal/config"
	"github.com/fin360/financial-analyzer/internal/events"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/pkg/logger"
	"github.com/fin360/financial-analyzer/pkg/shutdown"
)

const (
	version = "0.1.0"

	healthPort     = 8081
	pruneInterval  = 6 * time.Hour
	auditRetention = 90 * 24 * time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	log.SetDefault()

	log.Info("starting audit worker",
		"version", version,
		"environment", cfg.Server.Environment,
	)

	shutdownHandler := shutdown.New(log.Logger, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)

	db, err := storage.NewPostgres(storage.PostgresConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("connected to PostgreSQL", "host", cfg.Database.Host, "database", cfg.Database.Database)

	shutdownHandler.RegisterNamed("postgres", func(ctx context.Context) error {
		return db.Close()
	})

	activities, err := storage.NewActivityStore(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to open activity store: %w", err)
	}

	natsConfig := events.DefaultConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.ClientName = cfg.NATS.ClientName + "-worker"

	consumer, err := events.NewConsumer(natsConfig, events.DefaultConsumerConfig(), log.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	shutdownHandler.RegisterNamed("nats", func(ctx context.Context) error {
		consumer.Close()
		return nil
	})

	if err := consumer.Subscribe(func(ctx context.Context, subject string, data []byte) error {
		return activities.Record(ctx, subject, fingerprintOf(data), data)
	}); err != nil {
		return err
	}
	log.Info("consuming document events")

	// Periodically drop audit entries past the retention window.
	pruneCtx, cancelPrune := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				n, err := activities.Prune(pruneCtx, auditRetention)
				if err != nil {
					log.Warn("failed to prune activity log", "error", err)
					continue
				}
				if n > 0 {
					log.Info("pruned activity log", "removed", n)
				}
			}
		}
	}()
	shutdownHandler.RegisterNamed("pruner", func(ctx context.Context) error {
		cancelPrune()
		return nil
	})

	// Health and recent-activity endpoints for operators.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			http.Error(w, "database not healthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
		entries, err := activities.Recent(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", healthPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", "port", healthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	shutdownHandler.RegisterNamed("http", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	log.Info("audit worker ready")
	shutdownHandler.Wait()
	return nil
}

// fingerprintOf extracts the fingerprint field shared by every event payload.
func fingerprintOf(data []byte) string {
	var envelope struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Fingerprint
}
