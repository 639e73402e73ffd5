package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// ContentStore persists analysis results keyed by document fingerprint.
type ContentStore interface {
	// Get returns the record for a fingerprint, or DOCUMENT_NOT_FOUND.
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error)

	// Put writes a complete record atomically, replacing any existing
	// record with the same fingerprint.
	Put(ctx context.Context, rec *domain.DocumentRecord) error

	// List returns summaries of all stored documents, newest first.
	List(ctx context.Context) ([]domain.DocumentSummary, error)

	// Delete removes the record for a fingerprint. Deleting a missing
	// fingerprint is not an error.
	Delete(ctx context.Context, fp domain.Fingerprint) error
}

// schema creates the documents table. Applied at startup.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	fingerprint      TEXT PRIMARY KEY,
	file_name        TEXT NOT NULL,
	extracted_text   TEXT NOT NULL,
	analysis_result  TEXT NOT NULL,
	extracted_tables JSONB NOT NULL DEFAULT '[]',
	index_handle     TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC);
`

// PostgresContentStore implements ContentStore on PostgreSQL.
type PostgresContentStore struct {
	db *PostgresDB
}

// NewPostgresContentStore creates the store and ensures the schema exists.
func NewPostgresContentStore(ctx context.Context, db *PostgresDB) (*PostgresContentStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "applying schema", err)
	}
	return &PostgresContentStore{db: db}, nil
}

// Get returns the record for a fingerprint.
func (s *PostgresContentStore) Get(ctx context.Context, fp domain.Fingerprint) (*domain.DocumentRecord, error) {
	var row documentRow
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, file_name, extracted_text, analysis_result,
		       extracted_tables, index_handle, created_at
		FROM documents WHERE fingerprint = $1`,
		fp.String(),
	).Scan(
		&row.Fingerprint, &row.FileName, &row.ExtractedText, &row.AnalysisResult,
		&row.Tables, &row.IndexHandle, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindDocumentNotFound, "no record for fingerprint "+fp.Short(), nil)
	}
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "querying document", err)
	}

	rec, err := row.toRecord()
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "decoding document row", err)
	}
	return rec, nil
}

// Put writes the full record in one transaction so readers never observe
// a partially updated document.
func (s *PostgresContentStore) Put(ctx context.Context, rec *domain.DocumentRecord) error {
	row, err := rowFromRecord(rec)
	if err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "encoding document row", err)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents
				(fingerprint, file_name, extracted_text, analysis_result,
				 extracted_tables, index_handle, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (fingerprint) DO UPDATE SET
				file_name = EXCLUDED.file_name,
				extracted_text = EXCLUDED.extracted_text,
				analysis_result = EXCLUDED.analysis_result,
				extracted_tables = EXCLUDED.extracted_tables,
				index_handle = EXCLUDED.index_handle,
				created_at = EXCLUDED.created_at`,
			row.Fingerprint, row.FileName, row.ExtractedText, row.AnalysisResult,
			row.Tables, row.IndexHandle, row.CreatedAt,
		)
		return err
	})
	if err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "writing document", err)
	}
	return nil
}

// List returns summaries of all stored documents, newest first.
func (s *PostgresContentStore) List(ctx context.Context) ([]domain.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, file_name, created_at
		FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "listing documents", err)
	}
	defer rows.Close()

	var out []domain.DocumentSummary
	for rows.Next() {
		var sum domain.DocumentSummary
		var fp string
		if err := rows.Scan(&fp, &sum.FileName, &sum.CreatedAt); err != nil {
			return nil, domain.NewError(domain.KindStorageUnavailable, "scanning document row", err)
		}
		sum.Fingerprint = domain.Fingerprint(fp)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "iterating documents", err)
	}
	return out, nil
}

// Delete removes the record for a fingerprint.
func (s *PostgresContentStore) Delete(ctx context.Context, fp domain.Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE fingerprint = $1`, fp.String())
	if err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "deleting document", err)
	}
	return nil
}
