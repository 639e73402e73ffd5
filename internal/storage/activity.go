package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fin360/financial-analyzer/internal/domain"
)

// activitySchema creates the activity log table. Applied at startup.
const activitySchema = `
CREATE TABLE IF NOT EXISTS activity_log (
	id          BIGSERIAL PRIMARY KEY,
	subject     TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_activity_log_created_at ON activity_log (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_log_fingerprint ON activity_log (fingerprint);
`

// ActivityEntry is one recorded lifecycle event.
type ActivityEntry struct {
	ID          int64           `json:"id"`
	Subject     string          `json:"subject"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ActivityStore persists an append-only audit trail of document events.
type ActivityStore struct {
	db *PostgresDB
}

// NewActivityStore creates the store and ensures the schema exists.
func NewActivityStore(ctx context.Context, db *PostgresDB) (*ActivityStore, error) {
	if _, err := db.ExecContext(ctx, activitySchema); err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "applying activity schema", err)
	}
	return &ActivityStore{db: db}, nil
}

// Record appends one event to the log.
func (s *ActivityStore) Record(ctx context.Context, subject, fingerprint string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (subject, fingerprint, payload)
		VALUES ($1, $2, $3)`,
		subject, fingerprint, payload,
	)
	if err != nil {
		return domain.NewError(domain.KindStorageUnavailable, "recording activity", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, fingerprint, payload, created_at
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "querying activity", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.Subject, &e.Fingerprint, &e.Payload, &e.CreatedAt); err != nil {
			return nil, domain.NewError(domain.KindStorageUnavailable, "scanning activity row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.KindStorageUnavailable, "iterating activity rows", err)
	}
	return entries, nil
}

// Prune removes entries older than the retention window and returns the
// number deleted.
func (s *ActivityStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM activity_log WHERE created_at < $1`,
		time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, domain.NewError(domain.KindStorageUnavailable, "pruning activity", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
