// Package postgres exposes the upstream classification pipeline's output
// tables as a read-only ClassificationSource. The tables belong to the
// pipeline; this package never writes them and never creates them.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// Document returns the email's current classification with its extracted
// entities. The upstream pipeline overwrites classification in place, so a
// single row per email is the contract here.
func (s *Source) Document(ctx context.Context, emailID string) (*domain.ClassifiedDocument, error) {
	var doc domain.ClassifiedDocument
	var messageID sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT email_id, message_id, document_type
FROM email_classifications
WHERE email_id = $1
`, emailID).Scan(&doc.EmailID, &messageID, &doc.DocumentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load classification",
			fmt.Errorf("email %s has no classification", emailID))
	}
	if err != nil {
		return nil, fmt.Errorf("query classification: %w", err)
	}
	doc.MessageID = messageID.String

	entities, err := s.entities(ctx, emailID)
	if err != nil {
		return nil, err
	}
	doc.Entities = entities
	return &doc, nil
}

// ListUnlinked pages classified emails with no link row yet, in email-id
// order so the backfill checkpoint can resume mid-corpus.
func (s *Source) ListUnlinked(ctx context.Context, afterEmailID string, limit int) ([]domain.ClassifiedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.email_id, c.message_id, c.document_type
FROM email_classifications c
WHERE c.email_id > $1
  AND NOT EXISTS (
	SELECT 1 FROM shipment_documents d WHERE d.email_id = c.email_id
  )
ORDER BY c.email_id
LIMIT $2
`, afterEmailID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unlinked classifications: %w", err)
	}
	defer rows.Close()

	var out []domain.ClassifiedDocument
	for rows.Next() {
		var doc domain.ClassifiedDocument
		var messageID sql.NullString
		if err := rows.Scan(&doc.EmailID, &messageID, &doc.DocumentType); err != nil {
			return nil, fmt.Errorf("scan classification row: %w", err)
		}
		doc.MessageID = messageID.String
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classification rows: %w", err)
	}

	for i := range out {
		entities, err := s.entities(ctx, out[i].EmailID)
		if err != nil {
			return nil, err
		}
		out[i].Entities = entities
	}
	return out, nil
}

func (s *Source) entities(ctx context.Context, emailID string) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entity_type, entity_value, confidence
FROM email_entities
WHERE email_id = $1
ORDER BY entity_type, entity_value
`, emailID)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		var e domain.Entity
		var entityType string
		if err := rows.Scan(&entityType, &e.Value, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		e.Type = domain.EntityType(entityType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}
	return out, nil
}
