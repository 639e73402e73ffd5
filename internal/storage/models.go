package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// documentRow is the database shape of a stored analysis, keyed by the
// document fingerprint. Tables ride along as JSONB.
type documentRow struct {
	Fingerprint    string         `db:"fingerprint"`
	FileName       string         `db:"file_name"`
	ExtractedText  string         `db:"extracted_text"`
	AnalysisResult string         `db:"analysis_result"`
	Tables         []byte         `db:"extracted_tables"`
	IndexHandle    sql.NullString `db:"index_handle"`
	CreatedAt      time.Time      `db:"created_at"`
}

func rowFromRecord(rec *domain.DocumentRecord) (*documentRow, error) {
	tables, err := json.Marshal(rec.Tables)
	if err != nil {
		return nil, fmt.Errorf("encoding tables: %w", err)
	}

	row := &documentRow{
		Fingerprint:    rec.Fingerprint.String(),
		FileName:       rec.FileName,
		ExtractedText:  rec.ExtractedText,
		AnalysisResult: rec.AnalysisResult,
		Tables:         tables,
		CreatedAt:      rec.CreatedAt,
	}
	if rec.IndexHandle != "" {
		row.IndexHandle = sql.NullString{String: rec.IndexHandle, Valid: true}
	}
	return row, nil
}

func (r *documentRow) toRecord() (*domain.DocumentRecord, error) {
	var tables []domain.Table
	if len(r.Tables) > 0 {
		if err := json.Unmarshal(r.Tables, &tables); err != nil {
			return nil, fmt.Errorf("decoding tables: %w", err)
		}
	}

	return &domain.DocumentRecord{
		Fingerprint:    domain.Fingerprint(r.Fingerprint),
		FileName:       r.FileName,
		ExtractedText:  r.ExtractedText,
		AnalysisResult: r.AnalysisResult,
		Tables:         tables,
		IndexHandle:    r.IndexHandle.String,
		CreatedAt:      r.CreatedAt,
	}, nil
}
