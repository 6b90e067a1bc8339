package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CheckpointStore persists batch progress for resumable backfill runs.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Get(ctx context.Context, job string) (string, error) {
	var lastEmailID string
	err := s.db.QueryRowContext(ctx, `
SELECT last_email_id
FROM backfill_checkpoints
WHERE job = $1
`, job).Scan(&lastEmailID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get checkpoint: %w", err)
	}
	return lastEmailID, nil
}

func (s *CheckpointStore) Put(ctx context.Context, job, lastEmailID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO backfill_checkpoints (job, last_email_id, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (job) DO UPDATE SET last_email_id = EXCLUDED.last_email_id, updated_at = EXCLUDED.updated_at
`, job, lastEmailID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}
