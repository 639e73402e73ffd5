// Package main is the entry point for the financial document analysis API
// server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fin360/financial-analyzer/internal/api"
	"github.com/fin360/financial-analyzer/internal/api/handlers"
	"github.com/fin360/financial-analyzer/internal/api/middleware"
	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/config"
	"github.com/fin360/financial-analyzer/internal/embedder"
	"github.com/fin360/financial-analyzer/internal/engine"
	"github.com/fin360/financial-analyzer/internal/events"
	"github.com/fin360/financial-analyzer/internal/llm"
	"github.com/fin360/financial-analyzer/internal/ocr"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
	"github.com/fin360/financial-analyzer/pkg/logger"
	"github.com/fin360/financial-analyzer/pkg/shutdown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})
	log.SetDefault()

	log.Info("starting financial analyzer",
		"version", "0.1.0",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
	)

	shutdownHandler := shutdown.New(log.Logger, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)

	// ============================
	// Document store
	// ============================
	var store storage.ContentStore
	var db *storage.PostgresDB
	if cfg.Database.Host != "" {
		pg, dbErr := storage.NewPostgres(storage.PostgresConfig{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if dbErr != nil {
			log.Warn("failed to connect to database, using in-memory store", "error", dbErr)
		} else {
			db = pg
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			pgStore, storeErr := storage.NewPostgresContentStore(ctx, db)
			cancel()
			if storeErr != nil {
				log.Warn("failed to initialize document schema, using in-memory store", "error", storeErr)
			} else {
				store = pgStore
				log.Info("connected to database",
					"host", cfg.Database.Host,
					"database", cfg.Database.Database,
				)
			}
			shutdownHandler.RegisterNamed("database", func(ctx context.Context) error {
				return db.Close()
			})
		}
	}
	if store == nil {
		store = storage.NewMemoryContentStore()
		log.Warn("running with in-memory document store, analyses are lost on restart")
	}

	// ============================
	// Object storage
	// ============================
	var objectStorage *storage.MinIOStorage
	if cfg.Storage.Enabled {
		minioStorage, storageErr := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			BucketName:      cfg.Storage.BucketName,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
		})
		if storageErr != nil {
			log.Warn("failed to connect to object storage, originals will not be kept", "error", storageErr)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := minioStorage.InitBucket(ctx); err != nil {
				log.Warn("failed to initialize storage bucket", "error", err)
			}
			cancel()
			objectStorage = minioStorage
			log.Info("connected to object storage",
				"endpoint", cfg.Storage.Endpoint,
				"bucket", cfg.Storage.BucketName,
			)
		}
	}

	// ============================
	// Redis cache
	// ============================
	var cacheManager *storage.CacheManager
	var redisClient *storage.RedisClientWrapper
	if cfg.Redis.Enabled {
		rc, redisErr := storage.NewRedisClient(storage.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if redisErr != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", redisErr)
		} else {
			redisClient = rc
			cacheManager = storage.NewCacheManager(redisClient, log.Logger, storage.DefaultCacheConfig())
			log.Info("connected to Redis", "addr", cfg.Redis.Addr())
			shutdownHandler.RegisterNamed("redis", func(ctx context.Context) error {
				return redisClient.Close()
			})
		}
	}

	// ============================
	// Event stream
	// ============================
	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		natsConfig := events.DefaultConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.ClientName = cfg.NATS.ClientName
		pub, natsErr := events.NewPublisher(natsConfig, log.Logger)
		if natsErr != nil {
			log.Warn("failed to connect to NATS, events disabled", "error", natsErr)
		} else {
			publisher = pub
			log.Info("connected to NATS", "url", cfg.NATS.URL)
			shutdownHandler.RegisterNamed("nats", func(ctx context.Context) error {
				publisher.Close()
				return nil
			})
		}
	}

	// ============================
	// Pipeline capabilities
	// ============================
	extractor, err := buildExtractor(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create OCR client: %w", err)
	}

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	log.Info("LLM provider created", "provider", provider.Name(), "model", provider.Model())

	emb, err := buildEmbedder(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	shutdownHandler.RegisterNamed("embedder-stats", func(ctx context.Context) error {
		if oe, ok := emb.(*embedder.OpenAIEmbedder); ok {
			stats := oe.GetStats()
			log.Info("embedding usage",
				"requests", stats.TotalRequests,
				"tokens", stats.TotalTokens,
				"cache_hits", stats.CacheHits,
				"errors", stats.Errors,
			)
		}
		return nil
	})

	indexes, err := vectorindex.NewFileStore(cfg.Index.Dir, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to open index directory %s: %w", cfg.Index.Dir, err)
	}

	// A nil *MinIOStorage must stay a nil interface for the engine.
	var objects storage.ObjectStorage
	if objectStorage != nil {
		objects = objectStorage
	}

	eng, err := engine.New(engine.Deps{
		Store:     store,
		Extractor: extractor,
		Provider:  provider,
		Embedder:  emb,
		Indexes:   indexes,
		Objects:   objects,
		Cache:     cacheManager,
		Events:    publisher,
		Log:       log,
	}, engine.Config{
		Chunking: chunker.Config{
			ChunkSizeWords: cfg.Chunking.SizeWords,
			OverlapWords:   cfg.Chunking.OverlapWords,
		},
		TopK:          cfg.Index.TopK,
		MaxTokens:     cfg.LLM.MaxTokens,
		ContextTokens: cfg.LLM.ContextTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to assemble engine: %w", err)
	}

	// ============================
	// HTTP server
	// ============================
	var rateLimitStore middleware.RateLimitStore
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, "findoc:ratelimit", log.Logger)
	} else {
		rateLimitStore = middleware.NewMemoryRateLimitStore()
	}

	router := api.NewRouter(api.Dependencies{
		Logger:         log.Logger,
		Service:        eng,
		DB:             healthOrNil(db),
		ObjectStorage:  storageHealthOrNil(objectStorage),
		RateLimitStore: rateLimitStore,
	}, api.DefaultRouterConfig())

	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = cfg.Server.Port
	serverConfig.ShutdownTimeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second

	server := api.NewServer(router, serverConfig, log.Logger)
	shutdownHandler.RegisterNamed("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	shutdownHandler.Wait()

	log.Info("server stopped")
	return nil
}

// buildExtractor creates the OCR client. A development run without a key
// still starts; uploads fail loudly at the OCR call instead.
func buildExtractor(cfg *config.Config, log *logger.Logger) (ocr.Extractor, error) {
	apiKey := cfg.OCR.APIKey
	if apiKey == "" {
		log.Warn("MISTRAL_API_KEY not set, document analysis will fail")
		apiKey = "unset"
	}
	return ocr.NewMistralClient(ocr.Config{
		APIKey:         apiKey,
		BaseURL:        cfg.OCR.BaseURL,
		Model:          cfg.OCR.Model,
		RequestTimeout: time.Duration(cfg.OCR.TimeoutSeconds) * time.Second,
	}, log.Logger)
}

// buildProvider creates the configured LLM provider.
func buildProvider(cfg *config.Config, log *logger.Logger) (llm.Provider, error) {
	name := strings.ToLower(cfg.LLM.Provider)

	apiKey := cfg.LLM.OpenAIKey
	var baseURL string
	switch name {
	case "anthropic":
		apiKey = cfg.LLM.AnthropicKey
	case "ollama":
		baseURL = cfg.LLM.OllamaBaseURL
	case "lmstudio":
		baseURL = cfg.LLM.LMStudioBaseURL
	}

	return llm.NewProvider(llm.ProviderConfig{
		Provider:    name,
		Model:       cfg.LLM.Model,
		APIKey:      apiKey,
		BaseURL:     baseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, log.Logger)
}

// buildEmbedder creates the embedding client, falling back to the
// deterministic mock when no key is configured outside production.
func buildEmbedder(cfg *config.Config, log *logger.Logger) (embedder.Embedder, error) {
	if cfg.Embedding.APIKey == "" {
		if cfg.Server.Environment == "production" {
			return nil, fmt.Errorf("EMBEDDING_API_KEY is required in production")
		}
		log.Warn("no embedding API key set, using deterministic mock embeddings")
		return embedder.NewMockEmbedder(256), nil
	}

	embCfg := embedder.DefaultConfig(cfg.Embedding.APIKey)
	embCfg.Model = cfg.Embedding.Model
	embCfg.BaseURL = cfg.Embedding.BaseURL
	return embedder.NewOpenAIEmbedder(embCfg, log)
}

// healthOrNil avoids handing the router a typed nil inside an interface.
func healthOrNil(db *storage.PostgresDB) handlers.Database {
	if db == nil {
		return nil
	}
	return db
}

func storageHealthOrNil(s *storage.MinIOStorage) handlers.ObjectStorage {
	if s == nil {
		return nil
	}
	return s
}
