package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
	containers "github.com/fin360/financial-analyzer/internal/testing"
)

// startPostgres spins up a throwaway PostgreSQL container. Gated behind
// the INTEGRATION environment variable so unit runs stay hermetic.
func startPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container tests")
	}

	ctx := context.Background()
	tc := containers.NewTestContainers(containers.DefaultContainerConfig(), nil)
	if err := tc.StartPostgres(ctx); err != nil {
		t.Fatalf("StartPostgres: %v", err)
	}
	t.Cleanup(func() {
		if err := tc.Cleanup(context.Background()); err != nil {
			t.Logf("container cleanup: %v", err)
		}
	})

	db, err := tc.OpenPostgres(ctx)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &PostgresDB{DB: db}
}

func TestPostgresContentStoreRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	store, err := NewPostgresContentStore(ctx, db)
	if err != nil {
		t.Fatalf("NewPostgresContentStore: %v", err)
	}

	fp := domain.FingerprintBytes([]byte("%PDF integration fixture"))
	rec := &domain.DocumentRecord{
		Fingerprint:    fp,
		FileName:       "annual-report.pdf",
		ExtractedText:  "\n**Page 1**\nRevenue grew 12% year over year.",
		AnalysisResult: "## 1. Executive Summary\nSolid year.",
		Tables:         []domain.Table{{Headers: []string{"Year", "Revenue"}, Rows: [][]string{{"2025", "1.2M"}}}},
		IndexHandle:    "findoc-" + fp.Short(),
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}

	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FileName != rec.FileName {
		t.Errorf("FileName = %q, want %q", got.FileName, rec.FileName)
	}
	if got.AnalysisResult != rec.AnalysisResult {
		t.Errorf("AnalysisResult = %q, want %q", got.AnalysisResult, rec.AnalysisResult)
	}
	if len(got.Tables) != 1 || len(got.Tables[0].Rows) != 1 {
		t.Errorf("Tables = %+v, want one table with one row", got.Tables)
	}
	if got.IndexHandle != rec.IndexHandle {
		t.Errorf("IndexHandle = %q, want %q", got.IndexHandle, rec.IndexHandle)
	}

	// Upsert replaces the record, never duplicates it.
	rec.FileName = "annual-report-v2.pdf"
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}
	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("List returned %d summaries, want 1", len(summaries))
	}
	if summaries[0].FileName != "annual-report-v2.pdf" {
		t.Errorf("summary FileName = %q after upsert", summaries[0].FileName)
	}

	if err := store.Delete(ctx, fp); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, fp); !domain.IsKind(err, domain.KindDocumentNotFound) {
		t.Errorf("Get after delete = %v, want DOCUMENT_NOT_FOUND", err)
	}

	// Deleting a missing fingerprint is not an error.
	if err := store.Delete(ctx, fp); err != nil {
		t.Errorf("Delete missing fingerprint: %v", err)
	}
}

func TestActivityStoreRecordAndPrune(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	store, err := NewActivityStore(ctx, db)
	if err != nil {
		t.Fatalf("NewActivityStore: %v", err)
	}

	fp := domain.FingerprintBytes([]byte("%PDF activity fixture")).String()
	if err := store.Record(ctx, "docs.analyzed", fp, []byte(`{"fingerprint":"`+fp+`"}`)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, "docs.chat", fp, nil); err != nil {
		t.Fatalf("Record with empty payload: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(entries))
	}
	if entries[0].Subject != "docs.chat" {
		t.Errorf("newest entry subject = %q, want docs.chat", entries[0].Subject)
	}
	if string(entries[0].Payload) != "{}" {
		t.Errorf("empty payload stored as %q, want {}", entries[0].Payload)
	}

	// Nothing is old enough to prune yet.
	n, err := store.Prune(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Errorf("Prune removed %d entries, want 0", n)
	}

	// A zero retention window prunes everything.
	n, err = store.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune all: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune removed %d entries, want 2", n)
	}
}
