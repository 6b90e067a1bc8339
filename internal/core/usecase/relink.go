package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

// Relink re-applies the email's current classification to its existing link
// on the shipment and re-derives the workflow state from the full document
// set. Used after the upstream pipeline reclassifies an email; the derived
// state can move down as well as up.
func (uc *ResolveUseCase) Relink(ctx context.Context, shipmentID, emailID string) (domain.Resolution, error) {
	if shipmentID == "" || emailID == "" {
		return domain.Resolution{}, domain.WrapError(domain.ErrInvalidInput, "relink document",
			errors.New("shipment id and email id are required"))
	}

	doc, err := uc.source.Document(ctx, emailID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load classified document %s: %w", emailID, err)
	}

	if err := uc.links.Reclassify(ctx, shipmentID, emailID, doc.DocumentType); err != nil {
		return domain.Resolution{}, fmt.Errorf("reclassify link: %w", err)
	}

	shipment, err := uc.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load shipment: %w", err)
	}
	docTypes, err := uc.links.ListDocumentTypes(ctx, shipmentID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("list linked document types: %w", err)
	}

	derived := uc.table.Derive(docTypes)
	if derived.Code != shipment.WorkflowState {
		if _, err := uc.shipments.SetState(ctx, shipmentID, derived); err != nil {
			return domain.Resolution{}, fmt.Errorf("apply derived state: %w", err)
		}
		uc.logger.Info("relink_state_changed",
			"shipment_id", shipmentID,
			"email_id", emailID,
			"old_state", shipment.WorkflowState,
			"new_state", derived.Code,
		)
	}

	return domain.Resolution{
		Outcome:    domain.OutcomeLinked,
		ShipmentID: shipmentID,
		Link: &domain.DocumentLink{
			ShipmentID:   shipmentID,
			EmailID:      emailID,
			DocumentType: doc.DocumentType,
			LinkedAt:     time.Now().UTC(),
		},
	}, nil
}
