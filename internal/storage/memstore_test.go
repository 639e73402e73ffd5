package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryContentStore()

	_, err := s.Get(context.Background(), domain.FingerprintBytes([]byte("nope")))
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want DOCUMENT_NOT_FOUND", err)
	}
}

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryContentStore()
	ctx := context.Background()
	fp := domain.FingerprintBytes([]byte("doc"))

	rec := &domain.DocumentRecord{
		Fingerprint:    fp,
		FileName:       "report.pdf",
		ExtractedText:  "text",
		AnalysisResult: "analysis",
		Tables:         []domain.Table{{Headers: []string{"A"}, Rows: [][]string{{"1"}}}},
		IndexHandle:    "findoc-" + fp.Short(),
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FileName != "report.pdf" || got.IndexHandle != rec.IndexHandle {
		t.Fatalf("record = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be filled in")
	}

	if err := s.Delete(ctx, fp); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, fp); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("after delete err = %v, want DOCUMENT_NOT_FOUND", err)
	}

	// Deleting again is not an error.
	if err := s.Delete(ctx, fp); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryContentStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"old.pdf", "mid.pdf", "new.pdf"} {
		s.Put(ctx, &domain.DocumentRecord{
			Fingerprint: domain.FingerprintBytes([]byte(name)),
			FileName:    name,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].FileName != "new.pdf" || got[2].FileName != "old.pdf" {
		t.Fatalf("order = %v %v %v", got[0].FileName, got[1].FileName, got[2].FileName)
	}
}

func TestDocumentRowRoundTrip(t *testing.T) {
	rec := &domain.DocumentRecord{
		Fingerprint:    domain.FingerprintBytes([]byte("x")),
		FileName:       "x.pdf",
		ExtractedText:  "body",
		AnalysisResult: "result",
		Tables:         []domain.Table{{Rows: [][]string{{"a", "b"}}}},
		IndexHandle:    "findoc-abc",
		CreatedAt:      time.Now().UTC(),
	}

	row, err := rowFromRecord(rec)
	if err != nil {
		t.Fatalf("rowFromRecord: %v", err)
	}
	back, err := row.toRecord()
	if err != nil {
		t.Fatalf("toRecord: %v", err)
	}

	if back.Fingerprint != rec.Fingerprint || back.IndexHandle != rec.IndexHandle {
		t.Fatalf("round trip = %+v", back)
	}
	if len(back.Tables) != 1 || back.Tables[0].Rows[0][1] != "b" {
		t.Fatalf("tables = %+v", back.Tables)
	}
}
