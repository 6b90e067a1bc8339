package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

type LinkCandidateRepository struct {
	db *sql.DB
}

func NewLinkCandidateRepository(db *sql.DB) *LinkCandidateRepository {
	return &LinkCandidateRepository{db: db}
}

const candidateColumns = `id, email_id, document_type, entity_type, entity_value, confidence, status, matched_shipment_ids, created_at, updated_at`

// Upsert inserts or refreshes a candidate on its natural key. The stored id
// survives refreshes; the caller's candidate is updated in place with it.
func (r *LinkCandidateRepository) Upsert(ctx context.Context, candidate *domain.LinkCandidate) error {
	matchedJSON, err := json.Marshal(candidate.MatchedShipmentIDs)
	if err != nil {
		return fmt.Errorf("marshal matched shipment ids: %w", err)
	}
	if candidate.MatchedShipmentIDs == nil {
		matchedJSON = []byte(`[]`)
	}
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
INSERT INTO link_candidates (
	id, email_id, document_type, entity_type, entity_value, confidence, status, matched_shipment_ids, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (email_id, entity_type, entity_value) DO UPDATE
SET document_type = EXCLUDED.document_type,
	confidence = EXCLUDED.confidence,
	status = EXCLUDED.status,
	matched_shipment_ids = EXCLUDED.matched_shipment_ids,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at
`,
		candidate.ID, candidate.EmailID, string(candidate.DocumentType), string(candidate.EntityType),
		candidate.EntityValue, candidate.Confidence, string(candidate.Status), matchedJSON, now,
	)
	if err := row.Scan(&candidate.ID, &candidate.CreatedAt); err != nil {
		return fmt.Errorf("upsert link candidate: %w", err)
	}
	candidate.UpdatedAt = now
	return nil
}

func (r *LinkCandidateRepository) GetByID(ctx context.Context, id string) (*domain.LinkCandidate, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+candidateColumns+`
FROM link_candidates
WHERE id = $1
`, id)
	candidate, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCandidateNotFound, "get candidate", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}
	return candidate, nil
}

func (r *LinkCandidateRepository) ListByStatus(ctx context.Context, status domain.CandidateStatus, limit int) ([]domain.LinkCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+candidateColumns+`
FROM link_candidates
WHERE status = $1
ORDER BY updated_at DESC
LIMIT $2
`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates by status: %w", err)
	}
	defer rows.Close()

	var out []domain.LinkCandidate
	for rows.Next() {
		candidate, scanErr := scanCandidate(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan candidate row: %w", scanErr)
		}
		out = append(out, *candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return out, nil
}

func (r *LinkCandidateRepository) UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE link_candidates
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update candidate status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("candidate rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrCandidateNotFound, "update candidate status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func scanCandidate(row rowScanner) (*domain.LinkCandidate, error) {
	var c domain.LinkCandidate
	var docType, entityType, status string
	var matchedRaw []byte

	err := row.Scan(
		&c.ID, &c.EmailID, &docType, &entityType, &c.EntityValue,
		&c.Confidence, &status, &matchedRaw, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(matchedRaw, &c.MatchedShipmentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal matched shipment ids: %w", err)
	}
	c.DocumentType = domain.DocumentType(docType)
	c.EntityType = domain.EntityType(entityType)
	c.Status = domain.CandidateStatus(status)
	return &c, nil
}
