// Package main is the entry point for the docctl maintenance CLI.
//
// docctl operates directly on the document store and the index directory,
// so it works without OCR or LLM credentials. Only reindexing needs an
// embedding key; without one it falls back to mock embeddings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fin360/financial-analyzer/internal/chunker"
	"github.com/fin360/financial-analyzer/internal/config"
	"github.com/fin360/financial-analyzer/internal/domain"
	"github.com/fin360/financial-analyzer/internal/embedder"
	"github.com/fin360/financial-analyzer/internal/storage"
	"github.com/fin360/financial-analyzer/internal/vectorindex"
	"github.com/fin360/financial-analyzer/pkg/logger"
)

// Version information (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// toolkit bundles the stores every subcommand needs.
type toolkit struct {
	cfg     *config.Config
	log     *logger.Logger
	store   storage.ContentStore
	indexes *vectorindex.FileStore
	db      *storage.PostgresDB
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "docctl",
		Short:   "Financial document store maintenance CLI",
		Long:    "Inspect, export, delete, and reindex analyzed financial documents.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newReindexCmd())

	return rootCmd.Execute()
}

// openToolkit connects to the database and the index directory.
func openToolkit(ctx context.Context) (*toolkit, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  "warn",
		Format: "text",
	})

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
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := storage.NewPostgresContentStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	indexes, err := vectorindex.NewFileStore(cfg.Index.Dir, log.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open index directory %s: %w", cfg.Index.Dir, err)
	}

	return &toolkit{cfg: cfg, log: log, store: store, indexes: indexes, db: db}, nil
}

func (t *toolkit) close() {
	if t.db != nil {
		t.db.Close()
	}
}

func parseFingerprint(raw string) (domain.Fingerprint, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) != 64 {
		return "", fmt.Errorf("fingerprint must be 64 hex characters, got %d", len(raw))
	}
	return domain.Fingerprint(raw), nil
}

// newListCmd creates the list subcommand.
func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analyzed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tk, err := openToolkit(ctx)
			if err != nil {
				return err
			}
			defer tk.close()

			summaries, err := tk.store.List(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(summaries)
			}

			if len(summaries) == 0 {
				fmt.Println("no documents")
				return nil
			}
			fmt.Printf("%-24s %-40s %s\n", "FINGERPRINT", "FILE", "ANALYZED")
			for _, s := range summaries {
				fmt.Printf("%-24s %-40s %s\n",
					s.Fingerprint.Short(),
					s.FileName,
					s.CreatedAt.Format(time.RFC3339),
				)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	return cmd
}

// newShowCmd creates the show subcommand.
func newShowCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "show [fingerprint]",
		Short: "Show one stored document record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fp, err := parseFingerprint(args[0])
			if err != nil {
				return err
			}

			tk, err := openToolkit(ctx)
			if err != nil {
				return err
			}
			defer tk.close()

			rec, err := tk.store.Get(ctx, fp)
			if err != nil {
				return err
			}

			fmt.Printf("Fingerprint:  %s\n", rec.Fingerprint)
			fmt.Printf("File:         %s\n", rec.FileName)
			fmt.Printf("Analyzed:     %s\n", rec.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Index handle: %s\n", rec.IndexHandle)
			fmt.Printf("Tables:       %d\n", len(rec.Tables))
			fmt.Printf("Text size:    %d bytes\n", len(rec.ExtractedText))
			if full {
				fmt.Println("\n--- ANALYSIS ---")
				fmt.Println(rec.AnalysisResult)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&full, "full", "f", false, "Print the full analysis text")
	return cmd
}

// newExportCmd creates the export subcommand.
func newExportCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "export [fingerprint]",
		Short: "Export a document's analysis as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fp, err := parseFingerprint(args[0])
			if err != nil {
				return err
			}

			tk, err := openToolkit(ctx)
			if err != nil {
				return err
			}
			defer tk.close()

			rec, err := tk.store.Get(ctx, fp)
			if err != nil {
				return err
			}

			var b strings.Builder
			b.WriteString(fmt.Sprintf("# Financial Analysis: %s\n\n", rec.FileName))
			b.WriteString(fmt.Sprintf("Fingerprint: `%s`  \nAnalyzed: %s\n\n---\n\n", rec.Fingerprint, rec.CreatedAt.Format(time.RFC3339)))
			b.WriteString(rec.AnalysisResult)
			b.WriteString("\n")

			name := strings.TrimSuffix(rec.FileName, ".pdf") + "-analysis.md"
			path := filepath.Join(outputDir, name)
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Output directory")
	return cmd
}

// newDeleteCmd creates the delete subcommand.
func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [fingerprint]",
		Short: "Delete a document record and its index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fp, err := parseFingerprint(args[0])
			if err != nil {
				return err
			}

			tk, err := openToolkit(ctx)
			if err != nil {
				return err
			}
			defer tk.close()

			if err := tk.store.Delete(ctx, fp); err != nil {
				return err
			}
			if err := tk.indexes.Delete(vectorindex.HandleFor(fp)); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to delete index: %v\n", err)
			}
			fmt.Printf("deleted %s\n", fp.Short())
			return nil
		},
	}
	return cmd
}

// newReindexCmd creates the reindex subcommand.
func newReindexCmd() *cobra.Command {
	var all bool
	var force bool

	cmd := &cobra.Command{
		Use:   "reindex [fingerprint]",
		Short: "Rebuild vector indexes from stored text",
		Long:  "Rebuild the retrieval index for one document, or for every stored document with --all.",
		Example: `  # Rebuild one document's index
  docctl reindex 3a7bd3e2360a3d29eea436fcfb7e44c735d117c42d1c1835420b6b99 --force

  # Rebuild every index that is missing
  docctl reindex --all

  # Rebuild every index unconditionally
  docctl reindex --all --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !all && len(args) != 1 {
				return fmt.Errorf("pass a fingerprint or --all")
			}

			tk, err := openToolkit(ctx)
			if err != nil {
				return err
			}
			defer tk.close()

			emb := buildEmbedder(tk.cfg, tk.log)
			builder := vectorindex.NewBuilder(emb, tk.log.Logger)
			ch, err := chunker.New(chunker.Config{
				ChunkSizeWords: tk.cfg.Chunking.SizeWords,
				OverlapWords:   tk.cfg.Chunking.OverlapWords,
			})
			if err != nil {
				return err
			}

			if !all {
				fp, err := parseFingerprint(args[0])
				if err != nil {
					return err
				}
				chunks, err := reindexOne(ctx, tk, builder, ch, fp, force)
				if err != nil {
					return err
				}
				fmt.Printf("reindexed %s (%d chunks)\n", fp.Short(), chunks)
				return nil
			}

			summaries, err := tk.store.List(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no documents")
				return nil
			}

			bar := progressbar.NewOptions(len(summaries),
				progressbar.OptionSetDescription("Rebuilding indexes"),
				progressbar.OptionShowCount(),
			)

			var failed int
			for _, s := range summaries {
				if _, err := reindexOne(ctx, tk, builder, ch, s.Fingerprint, force); err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "\n%s: %v\n", s.Fingerprint.Short(), err)
				}
				bar.Add(1)
			}
			fmt.Println()
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(summaries))
			}
			fmt.Printf("reindexed %d documents\n", len(summaries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reindex every stored document")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Rebuild even when an index already exists")
	return cmd
}

// reindexOne rebuilds a single document's index and updates its record.
func reindexOne(ctx context.Context, tk *toolkit, builder *vectorindex.Builder, ch *chunker.Chunker, fp domain.Fingerprint, force bool) (int, error) {
	rec, err := tk.store.Get(ctx, fp)
	if err != nil {
		return 0, err
	}

	handle := vectorindex.HandleFor(fp)
	if !force && tk.indexes.Exists(handle) {
		return 0, nil
	}

	chunks := ch.Chunk(rec.ExtractedText)
	ix, err := builder.Build(ctx, handle, chunks)
	if err != nil {
		return 0, err
	}
	if ix == nil {
		handle = ""
	} else if err := tk.indexes.Save(ix); err != nil {
		return 0, err
	}

	if rec.IndexHandle != handle {
		rec.IndexHandle = handle
		if err := tk.store.Put(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// buildEmbedder mirrors the server's embedder selection.
func buildEmbedder(cfg *config.Config, log *logger.Logger) embedder.Embedder {
	if cfg.Embedding.APIKey == "" {
		fmt.Fprintln(os.Stderr, "warning: no embedding API key set, using mock embeddings")
		return embedder.NewMockEmbedder(256)
	}
	embCfg := embedder.DefaultConfig(cfg.Embedding.APIKey)
	embCfg.Model = cfg.Embedding.Model
	embCfg.BaseURL = cfg.Embedding.BaseURL
	emb, err := embedder.NewOpenAIEmbedder(embCfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using mock embeddings\n", err)
		return embedder.NewMockEmbedder(256)
	}
	return emb
}
