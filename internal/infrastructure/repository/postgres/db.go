package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// EnsureSchema creates the engine-owned tables. The upstream pipeline's
// email_classifications and email_entities tables are not ours to create.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker/admin startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS shipments (
	id TEXT PRIMARY KEY,
	booking_number TEXT,
	bl_number TEXT,
	container_numbers JSONB NOT NULL DEFAULT '[]'::jsonb,
	workflow_state TEXT NOT NULL,
	workflow_phase TEXT NOT NULL,
	status TEXT NOT NULL,
	state_order INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_shipments_booking
	ON shipments(booking_number)
	WHERE booking_number IS NOT NULL AND status <> 'cancelled';
CREATE INDEX IF NOT EXISTS idx_shipments_bl ON shipments(bl_number);
CREATE INDEX IF NOT EXISTS idx_shipments_containers ON shipments USING GIN (container_numbers);

CREATE TABLE IF NOT EXISTS shipment_documents (
	shipment_id TEXT NOT NULL REFERENCES shipments(id),
	email_id TEXT NOT NULL,
	message_id TEXT,
	document_type TEXT NOT NULL,
	link_method TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	linked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (shipment_id, email_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_shipment_documents_message
	ON shipment_documents(shipment_id, message_id)
	WHERE message_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_shipment_documents_email ON shipment_documents(email_id);

CREATE TABLE IF NOT EXISTS link_candidates (
	id TEXT PRIMARY KEY,
	email_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_value TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	matched_shipment_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (email_id, entity_type, entity_value)
);

CREATE INDEX IF NOT EXISTS idx_link_candidates_status ON link_candidates(status);

CREATE TABLE IF NOT EXISTS backfill_checkpoints (
	job TEXT PRIMARY KEY,
	last_email_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
