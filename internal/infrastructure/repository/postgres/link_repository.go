package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

type DocumentLinkRepository struct {
	db *sql.DB
}

func NewDocumentLinkRepository(db *sql.DB) *DocumentLinkRepository {
	return &DocumentLinkRepository{db: db}
}

// Create inserts a link row. ON CONFLICT DO NOTHING absorbs both the
// (shipment, email) primary key and the partial (shipment, message_id)
// uniqueness, making repeated ingestion of the same email or the same
// physical message a silent no-op.
func (r *DocumentLinkRepository) Create(ctx context.Context, link *domain.DocumentLink) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO shipment_documents (
	shipment_id, email_id, message_id, document_type, link_method, confidence, linked_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT DO NOTHING
`,
		link.ShipmentID, link.EmailID, nullable(link.MessageID), string(link.DocumentType),
		string(link.LinkMethod), link.Confidence, link.LinkedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert document link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *DocumentLinkRepository) ListDocumentTypes(ctx context.Context, shipmentID string) ([]domain.DocumentType, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_type
FROM shipment_documents
WHERE shipment_id = $1
`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentType
	for rows.Next() {
		var dt string
		if err := rows.Scan(&dt); err != nil {
			return nil, fmt.Errorf("scan document type: %w", err)
		}
		out = append(out, domain.DocumentType(dt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document types: %w", err)
	}
	return out, nil
}

// Reclassify replaces the document type of an existing link; the only
// sanctioned mutation of a link row.
func (r *DocumentLinkRepository) Reclassify(ctx context.Context, shipmentID, emailID string, docType domain.DocumentType) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE shipment_documents
SET document_type = $3
WHERE shipment_id = $1 AND email_id = $2
`, shipmentID, emailID, string(docType))
	if err != nil {
		return fmt.Errorf("reclassify link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reclassify rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrShipmentNotFound, "reclassify link",
			fmt.Errorf("no link for shipment=%s email=%s", shipmentID, emailID))
	}
	return nil
}
