package usecase

import (
	"context"
	"testing"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

func newResolveFixture(t *testing.T) (*ResolveUseCase, *shipmentRepoFake, *linkRepoFake, *candidateRepoFake, *sourceFake) {
	t.Helper()
	table, err := workflow.Load()
	if err != nil {
		t.Fatalf("workflow.Load() error = %v", err)
	}
	shipments := newShipmentRepoFake()
	links := newLinkRepoFake()
	candidates := newCandidateRepoFake()
	source := newSourceFake()
	uc := NewResolveUseCase(shipments, links, candidates, source, table, nil)
	return uc, shipments, links, candidates, source
}

func bookingDoc(emailID, messageID, booking string) domain.ClassifiedDocument {
	return domain.ClassifiedDocument{
		EmailID:      emailID,
		MessageID:    messageID,
		DocumentType: domain.DocBookingConfirmation,
		Entities: []domain.Entity{
			{Type: domain.EntityBookingNumber, Value: booking, Confidence: 0.95},
		},
	}
}

func TestResolveCreatesShipmentThenLinksSecondEmail(t *testing.T) {
	uc, shipments, links, _, _ := newResolveFixture(t)
	ctx := context.Background()

	first, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if first.Outcome != domain.OutcomeCreated {
		t.Fatalf("first outcome = %s, want created", first.Outcome)
	}

	second, err := uc.Resolve(ctx, bookingDoc("em-2", "msg-2", "263042012"))
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if second.Outcome != domain.OutcomeLinked {
		t.Fatalf("second outcome = %s, want linked", second.Outcome)
	}
	if second.ShipmentID != first.ShipmentID {
		t.Fatalf("second email linked to %s, want %s", second.ShipmentID, first.ShipmentID)
	}
	if len(shipments.shipments) != 1 {
		t.Fatalf("expected one shipment, got %d", len(shipments.shipments))
	}
	if links.count() != 2 {
		t.Fatalf("expected two link rows, got %d", links.count())
	}
}

func TestResolveIsIdempotentPerEmail(t *testing.T) {
	uc, _, links, _, _ := newResolveFixture(t)
	ctx := context.Background()

	doc := bookingDoc("em-1", "msg-1", "263042012")
	if _, err := uc.Resolve(ctx, doc); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	res, err := uc.Resolve(ctx, doc)
	if err != nil {
		t.Fatalf("repeat Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("repeat outcome = %s, want duplicate", res.Outcome)
	}
	if links.count() != 1 {
		t.Fatalf("expected one link row after repeat, got %d", links.count())
	}
}

func TestResolveDeduplicatesByMessageID(t *testing.T) {
	uc, _, links, _, _ := newResolveFixture(t)
	ctx := context.Background()

	if _, err := uc.Resolve(ctx, bookingDoc("em-1", "provider-msg-7", "263042012")); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	// Physically the same message re-ingested under a new email id.
	res, err := uc.Resolve(ctx, bookingDoc("em-1-copy", "provider-msg-7", "263042012"))
	if err != nil {
		t.Fatalf("re-ingest Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeDuplicate {
		t.Fatalf("re-ingest outcome = %s, want duplicate", res.Outcome)
	}
	if links.count() != 1 {
		t.Fatalf("expected one link row, got %d", links.count())
	}
}

func TestResolveNormalizesIdentifiers(t *testing.T) {
	uc, _, _, _, _ := newResolveFixture(t)
	ctx := context.Background()

	created, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "bkg: 2630 4201-2"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	linked, err := uc.Resolve(ctx, bookingDoc("em-2", "msg-2", "263042012"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if linked.ShipmentID != created.ShipmentID {
		t.Fatal("prefixed/spaced booking number did not normalize to the same shipment")
	}
}

func TestResolveRanksBookingOverContainer(t *testing.T) {
	uc, shipments, _, _, _ := newResolveFixture(t)
	ctx := context.Background()

	created, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	// Another shipment sharing a container with the target.
	other := bookingDoc("em-2", "msg-2", "999999999")
	other.Entities = append(other.Entities, domain.Entity{Type: domain.EntityContainerNumber, Value: "MSKU1234567", Confidence: 0.9})
	if _, err := uc.Resolve(ctx, other); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := shipments.EnrichIdentifiers(ctx, created.ShipmentID, "", []string{"MSKU1234567"}); err != nil {
		t.Fatalf("EnrichIdentifiers() error = %v", err)
	}

	doc := domain.ClassifiedDocument{
		EmailID:      "em-3",
		MessageID:    "msg-3",
		DocumentType: domain.DocBillOfLading,
		Entities: []domain.Entity{
			{Type: domain.EntityContainerNumber, Value: "MSKU1234567", Confidence: 0.99},
			{Type: domain.EntityBookingNumber, Value: "263042012", Confidence: 0.8},
		},
	}
	res, err := uc.Resolve(ctx, doc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeLinked {
		t.Fatalf("outcome = %s, want linked", res.Outcome)
	}
	if res.ShipmentID != created.ShipmentID {
		t.Fatal("booking number did not outrank the ambiguous container match")
	}
	if res.Link.LinkMethod != domain.EntityBookingNumber {
		t.Fatalf("link method = %s, want booking_number", res.Link.LinkMethod)
	}
}

func TestResolveAmbiguousNeverAutoLinks(t *testing.T) {
	uc, _, links, candidates, _ := newResolveFixture(t)
	ctx := context.Background()

	a, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "111111111"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	b, err := uc.Resolve(ctx, bookingDoc("em-2", "msg-2", "222222222"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	// Same BL on both shipments.
	repo := uc.shipments.(*shipmentRepoFake)
	_ = repo.EnrichIdentifiers(ctx, a.ShipmentID, "MAEU123456789", nil)
	_ = repo.EnrichIdentifiers(ctx, b.ShipmentID, "MAEU123456789", nil)

	doc := domain.ClassifiedDocument{
		EmailID:      "em-3",
		MessageID:    "msg-3",
		DocumentType: domain.DocArrivalNotice,
		Entities: []domain.Entity{
			{Type: domain.EntityBLNumber, Value: "MAEU123456789", Confidence: 0.9},
		},
	}
	res, err := uc.Resolve(ctx, doc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeAmbiguous {
		t.Fatalf("outcome = %s, want ambiguous", res.Outcome)
	}
	if links.count() != 2 {
		t.Fatalf("ambiguous match created a link: %d rows", links.count())
	}
	ambiguous, err := candidates.ListByStatus(ctx, domain.CandidateAmbiguous, 10)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(ambiguous) != 1 {
		t.Fatalf("expected one ambiguous candidate, got %d", len(ambiguous))
	}
	if len(ambiguous[0].MatchedShipmentIDs) != 2 {
		t.Fatalf("candidate matched %d shipments, want 2", len(ambiguous[0].MatchedShipmentIDs))
	}
}

func TestResolveUnmatchedNonCreatingTypeBecomesPendingCandidate(t *testing.T) {
	uc, shipments, links, candidates, _ := newResolveFixture(t)
	ctx := context.Background()

	doc := domain.ClassifiedDocument{
		EmailID:      "em-1",
		MessageID:    "msg-1",
		DocumentType: domain.DocArrivalNotice,
		Entities: []domain.Entity{
			{Type: domain.EntityBLNumber, Value: "MAEU123456789", Confidence: 0.9},
		},
	}
	res, err := uc.Resolve(ctx, doc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeCandidate {
		t.Fatalf("outcome = %s, want candidate", res.Outcome)
	}
	if len(shipments.shipments) != 0 || links.count() != 0 {
		t.Fatal("unmatched non-creating document created shipment or link")
	}
	pending, _ := candidates.ListByStatus(ctx, domain.CandidatePending, 10)
	if len(pending) != 1 {
		t.Fatalf("expected one pending candidate, got %d", len(pending))
	}
}

func TestResolveCreationRaceFallsBackToMatch(t *testing.T) {
	uc, shipments, links, _, _ := newResolveFixture(t)
	ctx := context.Background()

	// Simulates losing the create race: the first lookup misses because a
	// concurrent writer has not committed yet, Create then trips the unique
	// booking constraint, and the resolver re-matches instead of failing.
	shipments.shipments["ship-race"] = &domain.Shipment{
		ID:            "ship-race",
		BookingNumber: "263042012",
		WorkflowState: "booking_confirmation_received",
		WorkflowPhase: "booking",
		Status:        domain.StatusBooked,
		StateOrder:    10,
	}
	shipments.findMisses = 1

	res, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeLinked {
		t.Fatalf("outcome = %s, want linked", res.Outcome)
	}
	if res.ShipmentID != "ship-race" {
		t.Fatalf("race fallback linked to %s, want ship-race", res.ShipmentID)
	}
	if len(shipments.shipments) != 1 || links.count() != 1 {
		t.Fatalf("shipments=%d links=%d after race", len(shipments.shipments), links.count())
	}
}

func TestResolveAdvancesWorkflowState(t *testing.T) {
	uc, shipments, _, _, _ := newResolveFixture(t)
	ctx := context.Background()

	created, err := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	bl := domain.ClassifiedDocument{
		EmailID:      "em-2",
		MessageID:    "msg-2",
		DocumentType: domain.DocBillOfLading,
		Entities: []domain.Entity{
			{Type: domain.EntityBookingNumber, Value: "263042012", Confidence: 0.9},
			{Type: domain.EntityBLNumber, Value: "MAEU123456789", Confidence: 0.9},
		},
	}
	if _, err := uc.Resolve(ctx, bl); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	s, _ := shipments.GetByID(ctx, created.ShipmentID)
	if s.WorkflowState != "bill_of_lading_issued" || s.Status != domain.StatusInTransit {
		t.Fatalf("state = %s/%s after bill of lading", s.WorkflowState, s.Status)
	}
	if s.BLNumber != "MAEU123456789" {
		t.Fatalf("bl number not enriched, got %q", s.BLNumber)
	}

	// A stale lower-order document afterwards must not regress state.
	si := domain.ClassifiedDocument{
		EmailID:      "em-3",
		MessageID:    "msg-3",
		DocumentType: domain.DocSIDraft,
		Entities: []domain.Entity{
			{Type: domain.EntityBookingNumber, Value: "263042012", Confidence: 0.9},
		},
	}
	if _, err := uc.Resolve(ctx, si); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	s, _ = shipments.GetByID(ctx, created.ShipmentID)
	if s.WorkflowState != "bill_of_lading_issued" {
		t.Fatalf("state regressed to %s", s.WorkflowState)
	}
}

func TestResolveCancellationOverridesOrder(t *testing.T) {
	uc, shipments, _, _, _ := newResolveFixture(t)
	ctx := context.Background()

	created, _ := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))
	bl := bookingDoc("em-2", "msg-2", "263042012")
	bl.DocumentType = domain.DocBillOfLading
	if _, err := uc.Resolve(ctx, bl); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	cancel := bookingDoc("em-3", "msg-3", "263042012")
	cancel.DocumentType = domain.DocBookingCancellation
	if _, err := uc.Resolve(ctx, cancel); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	s, _ := shipments.GetByID(ctx, created.ShipmentID)
	if s.WorkflowState != "cancelled" || s.Status != domain.StatusCancelled {
		t.Fatalf("state = %s/%s after cancellation", s.WorkflowState, s.Status)
	}
}

func TestResolveUnmappedTypeLinksWithoutStateChange(t *testing.T) {
	uc, shipments, links, _, _ := newResolveFixture(t)
	ctx := context.Background()

	created, _ := uc.Resolve(ctx, bookingDoc("em-1", "msg-1", "263042012"))

	invoice := bookingDoc("em-2", "msg-2", "263042012")
	invoice.DocumentType = domain.DocInvoice
	res, err := uc.Resolve(ctx, invoice)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeLinked {
		t.Fatalf("outcome = %s, want linked", res.Outcome)
	}
	if links.count() != 2 {
		t.Fatalf("expected 2 links, got %d", links.count())
	}
	s, _ := shipments.GetByID(ctx, created.ShipmentID)
	if s.WorkflowState != "booking_confirmation_received" {
		t.Fatalf("invoice moved state to %s", s.WorkflowState)
	}
}

func TestResolveSkipsDocumentsWithoutUsableIdentifiers(t *testing.T) {
	uc, _, _, candidates, _ := newResolveFixture(t)
	ctx := context.Background()

	doc := domain.ClassifiedDocument{
		EmailID:      "em-1",
		MessageID:    "msg-1",
		DocumentType: domain.DocCorrespondence,
		Entities: []domain.Entity{
			{Type: domain.EntityBookingNumber, Value: "   ", Confidence: 0.5},
			{Type: "vessel_name", Value: "MSC OSCAR", Confidence: 0.9},
		},
	}
	res, err := uc.Resolve(ctx, doc)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Outcome != domain.OutcomeSkipped {
		t.Fatalf("outcome = %s, want skipped", res.Outcome)
	}
	pending, _ := candidates.ListByStatus(ctx, domain.CandidatePending, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no candidates, got %d", len(pending))
	}
}

func TestResolveRejectsEmptyInput(t *testing.T) {
	uc, _, _, _, _ := newResolveFixture(t)
	_, err := uc.Resolve(context.Background(), domain.ClassifiedDocument{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
