package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

// ReviewUseCase disposes of link candidates on operator decision. Confirm
// promotes a candidate to a document link against the chosen shipment and
// advances its state; Reject closes it.
type ReviewUseCase struct {
	shipments  ports.ShipmentRepository
	links      ports.DocumentLinkRepository
	candidates ports.LinkCandidateRepository
	source     ports.ClassificationSource
	table      *workflow.Table
	logger     *slog.Logger
}

func NewReviewUseCase(
	shipments ports.ShipmentRepository,
	links ports.DocumentLinkRepository,
	candidates ports.LinkCandidateRepository,
	source ports.ClassificationSource,
	table *workflow.Table,
	logger *slog.Logger,
) *ReviewUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewUseCase{
		shipments:  shipments,
		links:      links,
		candidates: candidates,
		source:     source,
		table:      table,
		logger:     logger,
	}
}

func (uc *ReviewUseCase) Confirm(ctx context.Context, candidateID, shipmentID string) (*domain.DocumentLink, error) {
	candidate, err := uc.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("load candidate: %w", err)
	}
	if candidate.Status != domain.CandidatePending && candidate.Status != domain.CandidateAmbiguous {
		return nil, domain.WrapError(domain.ErrInvalidInput, "confirm candidate",
			fmt.Errorf("candidate %s is %s", candidateID, candidate.Status))
	}

	shipment, err := uc.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("load shipment: %w", err)
	}
	if candidate.Status == domain.CandidateAmbiguous && !containsID(candidate.MatchedShipmentIDs, shipmentID) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "confirm candidate",
			errors.New("shipment is not among the ambiguous matches"))
	}

	doc, err := uc.source.Document(ctx, candidate.EmailID)
	if err != nil {
		return nil, fmt.Errorf("load classified document: %w", err)
	}

	link := &domain.DocumentLink{
		ShipmentID:   shipment.ID,
		EmailID:      candidate.EmailID,
		MessageID:    doc.MessageID,
		DocumentType: doc.DocumentType,
		LinkMethod:   candidate.EntityType,
		Confidence:   candidate.Confidence * rankWeight(candidate.EntityType),
		LinkedAt:     time.Now().UTC(),
	}
	if _, err := uc.links.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("create confirmed link: %w", err)
	}

	if next, apply := uc.table.Advance(shipment.StateOrder, doc.DocumentType); apply {
		if _, err := uc.shipments.AdvanceState(ctx, shipment.ID, next); err != nil {
			return nil, fmt.Errorf("advance after confirm: %w", err)
		}
	}

	if err := uc.candidates.UpdateStatus(ctx, candidateID, domain.CandidateConfirmed); err != nil {
		return nil, fmt.Errorf("mark candidate confirmed: %w", err)
	}
	uc.logger.Info("candidate_confirmed",
		"candidate_id", candidateID, "shipment_id", shipmentID, "email_id", candidate.EmailID)
	return link, nil
}

func (uc *ReviewUseCase) Reject(ctx context.Context, candidateID string) error {
	candidate, err := uc.candidates.GetByID(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("load candidate: %w", err)
	}
	if candidate.Status == domain.CandidateConfirmed {
		return domain.WrapError(domain.ErrInvalidInput, "reject candidate",
			errors.New("candidate already confirmed"))
	}
	if err := uc.candidates.UpdateStatus(ctx, candidateID, domain.CandidateRejected); err != nil {
		return fmt.Errorf("mark candidate rejected: %w", err)
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
