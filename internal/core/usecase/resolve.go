package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

// ResolveUseCase matches one classified document against the shipment
// registry, creating links, shipments, or candidates, and advancing the
// matched shipment's workflow state.
type ResolveUseCase struct {
	shipments  ports.ShipmentRepository
	links      ports.DocumentLinkRepository
	candidates ports.LinkCandidateRepository
	source     ports.ClassificationSource
	table      *workflow.Table
	logger     *slog.Logger
}

func NewResolveUseCase(
	shipments ports.ShipmentRepository,
	links ports.DocumentLinkRepository,
	candidates ports.LinkCandidateRepository,
	source ports.ClassificationSource,
	table *workflow.Table,
	logger *slog.Logger,
) *ResolveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveUseCase{
		shipments:  shipments,
		links:      links,
		candidates: candidates,
		source:     source,
		table:      table,
		logger:     logger,
	}
}

// ResolveByEmailID loads the email's current classification and entities
// from the upstream source and resolves it.
func (uc *ResolveUseCase) ResolveByEmailID(ctx context.Context, emailID string) (domain.Resolution, error) {
	doc, err := uc.source.Document(ctx, emailID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("load classified document %s: %w", emailID, err)
	}
	return uc.Resolve(ctx, *doc)
}

// Resolve walks identifier types by specificity. The first rank with any
// match decides the document: exactly one shipment links it, several record
// an ambiguous candidate and stop. With no match anywhere, shipment-creating
// document types carrying a booking number seed a new shipment; everything
// else becomes a pending candidate for later backfill passes.
func (uc *ResolveUseCase) Resolve(ctx context.Context, doc domain.ClassifiedDocument) (domain.Resolution, error) {
	if doc.EmailID == "" || doc.DocumentType == "" {
		return domain.Resolution{}, domain.WrapError(domain.ErrInvalidInput, "resolve document",
			errors.New("email id and document type are required"))
	}

	identifiers := normalizedIdentifiers(doc)
	if len(identifiers) == 0 {
		uc.logger.Info("document_without_identifiers", "email_id", doc.EmailID, "document_type", doc.DocumentType)
		return domain.Resolution{Outcome: domain.OutcomeSkipped}, nil
	}

	for rank := 0; rank <= 2; rank++ {
		ents := identifiers[rank]
		if len(ents) == 0 {
			continue
		}
		matched, matchedBy, err := uc.lookupRank(ctx, ents)
		if err != nil {
			return domain.Resolution{}, err
		}
		switch len(matched) {
		case 0:
			continue
		case 1:
			return uc.linkAndAdvance(ctx, doc, matched[0], matchedBy)
		default:
			return uc.recordAmbiguous(ctx, doc, ents, matched)
		}
	}

	return uc.handleUnmatched(ctx, doc, identifiers)
}

// normalizedIdentifiers buckets the document's identifier entities by rank
// with canonical values, dropping those that normalize to empty.
func normalizedIdentifiers(doc domain.ClassifiedDocument) map[int][]domain.Entity {
	out := make(map[int][]domain.Entity)
	for _, e := range doc.IdentifierEntities() {
		value := normalizeIdentifier(e.Type, e.Value)
		if value == "" {
			continue
		}
		e.Value = value
		out[e.Type.IdentifierRank()] = append(out[e.Type.IdentifierRank()], e)
	}
	return out
}

// lookupRank unions the shipments matched by each entity of one rank and
// returns the entity that produced the match when it is unique.
func (uc *ResolveUseCase) lookupRank(ctx context.Context, ents []domain.Entity) ([]domain.Shipment, domain.Entity, error) {
	seen := make(map[string]domain.Shipment)
	byShipment := make(map[string]domain.Entity)
	for _, e := range ents {
		shipments, err := uc.shipments.FindByIdentifier(ctx, e.Type, e.Value)
		if err != nil {
			return nil, domain.Entity{}, fmt.Errorf("lookup %s=%s: %w", e.Type, e.Value, err)
		}
		for _, s := range shipments {
			if _, ok := seen[s.ID]; !ok {
				seen[s.ID] = s
				byShipment[s.ID] = e
			}
		}
	}
	matched := make([]domain.Shipment, 0, len(seen))
	for _, s := range seen {
		matched = append(matched, s)
	}
	if len(matched) == 1 {
		return matched, byShipment[matched[0].ID], nil
	}
	return matched, domain.Entity{}, nil
}

func (uc *ResolveUseCase) linkAndAdvance(
	ctx context.Context,
	doc domain.ClassifiedDocument,
	shipment domain.Shipment,
	matchedBy domain.Entity,
) (domain.Resolution, error) {
	link := &domain.DocumentLink{
		ShipmentID:   shipment.ID,
		EmailID:      doc.EmailID,
		MessageID:    doc.MessageID,
		DocumentType: doc.DocumentType,
		LinkMethod:   matchedBy.Type,
		Confidence:   matchedBy.Confidence * rankWeight(matchedBy.Type),
		LinkedAt:     time.Now().UTC(),
	}

	created, err := uc.links.Create(ctx, link)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("create document link: %w", err)
	}
	if !created {
		// Same email or same physical message already linked here.
		return domain.Resolution{Outcome: domain.OutcomeDuplicate, ShipmentID: shipment.ID}, nil
	}

	if err := uc.enrich(ctx, &shipment, doc); err != nil {
		return domain.Resolution{}, err
	}
	if err := uc.advance(ctx, shipment.ID, shipment.StateOrder, doc); err != nil {
		return domain.Resolution{}, err
	}

	return domain.Resolution{Outcome: domain.OutcomeLinked, ShipmentID: shipment.ID, Link: link}, nil
}

// enrich copies bl/container identifiers the shipment is still missing from
// the document's entities, so later documents carrying only those keys can
// match retroactively.
func (uc *ResolveUseCase) enrich(ctx context.Context, shipment *domain.Shipment, doc domain.ClassifiedDocument) error {
	var blNumber string
	var containers []string
	for _, e := range doc.IdentifierEntities() {
		value := normalizeIdentifier(e.Type, e.Value)
		if value == "" {
			continue
		}
		switch e.Type {
		case domain.EntityBLNumber:
			if shipment.BLNumber == "" && blNumber == "" {
				blNumber = value
			}
		case domain.EntityContainerNumber:
			if !shipment.HasContainer(value) {
				containers = append(containers, value)
			}
		}
	}
	if blNumber == "" && len(containers) == 0 {
		return nil
	}
	if err := uc.shipments.EnrichIdentifiers(ctx, shipment.ID, blNumber, containers); err != nil {
		return fmt.Errorf("enrich shipment identifiers: %w", err)
	}
	return nil
}

func (uc *ResolveUseCase) advance(ctx context.Context, shipmentID string, currentOrder int, doc domain.ClassifiedDocument) error {
	next, apply := uc.table.Advance(currentOrder, doc.DocumentType)
	if !apply {
		if _, mapped := uc.table.CandidateFor(doc.DocumentType); !mapped {
			uc.logger.Warn("unmapped_document_type",
				"document_type", doc.DocumentType, "email_id", doc.EmailID, "shipment_id", shipmentID)
		}
		return nil
	}
	applied, err := uc.shipments.AdvanceState(ctx, shipmentID, next)
	if err != nil {
		return fmt.Errorf("advance shipment state: %w", err)
	}
	if !applied {
		// A concurrent writer got there first with an equal or higher state.
		uc.logger.Debug("state_advance_superseded", "shipment_id", shipmentID, "candidate", next.Code)
	}
	return nil
}

func (uc *ResolveUseCase) handleUnmatched(
	ctx context.Context,
	doc domain.ClassifiedDocument,
	identifiers map[int][]domain.Entity,
) (domain.Resolution, error) {
	bookings := identifiers[domain.EntityBookingNumber.IdentifierRank()]
	if doc.DocumentType.CreatesShipment() && len(bookings) > 0 {
		return uc.createShipment(ctx, doc, bookings[0], identifiers)
	}
	return uc.recordPending(ctx, doc, identifiers)
}

func (uc *ResolveUseCase) createShipment(
	ctx context.Context,
	doc domain.ClassifiedDocument,
	booking domain.Entity,
	identifiers map[int][]domain.Entity,
) (domain.Resolution, error) {
	initial := uc.table.Initial()
	now := time.Now().UTC()
	shipment := &domain.Shipment{
		ID:            uuid.NewString(),
		BookingNumber: booking.Value,
		WorkflowState: initial.Code,
		WorkflowPhase: initial.Phase,
		Status:        initial.Status,
		StateOrder:    initial.Order,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if bls := identifiers[domain.EntityBLNumber.IdentifierRank()]; len(bls) > 0 {
		shipment.BLNumber = bls[0].Value
	}
	for _, c := range identifiers[domain.EntityContainerNumber.IdentifierRank()] {
		if !shipment.HasContainer(c.Value) {
			shipment.ContainerNumbers = append(shipment.ContainerNumbers, c.Value)
		}
	}

	err := uc.shipments.Create(ctx, shipment)
	if domain.IsKind(err, domain.ErrDuplicateBooking) {
		// Lost a creation race: the shipment now exists, match against it.
		uc.logger.Info("shipment_create_race", "booking_number", booking.Value, "email_id", doc.EmailID)
		existing, findErr := uc.shipments.FindByIdentifier(ctx, domain.EntityBookingNumber, booking.Value)
		if findErr != nil {
			return domain.Resolution{}, fmt.Errorf("re-match after duplicate booking: %w", findErr)
		}
		if len(existing) != 1 {
			return domain.Resolution{}, domain.WrapError(domain.ErrDuplicateBooking, "re-match after duplicate booking",
				fmt.Errorf("expected one shipment for %s, found %d", booking.Value, len(existing)))
		}
		return uc.linkAndAdvance(ctx, doc, existing[0], booking)
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("create shipment: %w", err)
	}

	res, err := uc.linkAndAdvance(ctx, doc, *shipment, booking)
	if err != nil {
		return domain.Resolution{}, err
	}
	res.Outcome = domain.OutcomeCreated
	uc.logger.Info("shipment_created",
		"shipment_id", shipment.ID, "booking_number", shipment.BookingNumber, "email_id", doc.EmailID)
	return res, nil
}

func (uc *ResolveUseCase) recordAmbiguous(
	ctx context.Context,
	doc domain.ClassifiedDocument,
	ents []domain.Entity,
	matched []domain.Shipment,
) (domain.Resolution, error) {
	ids := make([]string, 0, len(matched))
	for _, s := range matched {
		ids = append(ids, s.ID)
	}
	res := domain.Resolution{Outcome: domain.OutcomeAmbiguous}
	for _, e := range ents {
		candidate := domain.LinkCandidate{
			ID:                 uuid.NewString(),
			EmailID:            doc.EmailID,
			DocumentType:       doc.DocumentType,
			EntityType:         e.Type,
			EntityValue:        e.Value,
			Confidence:         e.Confidence,
			Status:             domain.CandidateAmbiguous,
			MatchedShipmentIDs: ids,
		}
		if err := uc.candidates.Upsert(ctx, &candidate); err != nil {
			return domain.Resolution{}, fmt.Errorf("record ambiguous candidate: %w", err)
		}
		res.Candidates = append(res.Candidates, candidate)
	}
	uc.logger.Warn("ambiguous_match",
		"email_id", doc.EmailID, "entity_type", ents[0].Type, "matched_shipments", len(matched))
	return res, nil
}

func (uc *ResolveUseCase) recordPending(
	ctx context.Context,
	doc domain.ClassifiedDocument,
	identifiers map[int][]domain.Entity,
) (domain.Resolution, error) {
	res := domain.Resolution{Outcome: domain.OutcomeCandidate}
	for rank := 0; rank <= 2; rank++ {
		for _, e := range identifiers[rank] {
			candidate := domain.LinkCandidate{
				ID:           uuid.NewString(),
				EmailID:      doc.EmailID,
				DocumentType: doc.DocumentType,
				EntityType:   e.Type,
				EntityValue:  e.Value,
				Confidence:   e.Confidence,
				Status:       domain.CandidatePending,
			}
			if err := uc.candidates.Upsert(ctx, &candidate); err != nil {
				return domain.Resolution{}, fmt.Errorf("record pending candidate: %w", err)
			}
			res.Candidates = append(res.Candidates, candidate)
		}
	}
	return res, nil
}
