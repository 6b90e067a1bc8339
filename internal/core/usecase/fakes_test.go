package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

// In-memory fakes honoring the same invariants as the postgres
// implementations: booking uniqueness over non-cancelled shipments,
// link conflict no-ops, order-guarded state updates.

type shipmentRepoFake struct {
	mu        sync.Mutex
	shipments map[string]*domain.Shipment
	createErr error
	findErr   error
	// findMisses makes that many FindByIdentifier calls return empty,
	// simulating a lookup racing a concurrent insert.
	findMisses int
}

func newShipmentRepoFake() *shipmentRepoFake {
	return &shipmentRepoFake{shipments: make(map[string]*domain.Shipment)}
}

func (f *shipmentRepoFake) GetByID(_ context.Context, id string) (*domain.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[id]
	if !ok {
		return nil, domain.ErrShipmentNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *shipmentRepoFake) FindByIdentifier(_ context.Context, idType domain.EntityType, value string) ([]domain.Shipment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findMisses > 0 {
		f.findMisses--
		return nil, nil
	}
	var out []domain.Shipment
	for _, s := range f.shipments {
		match := false
		switch idType {
		case domain.EntityBookingNumber:
			match = s.BookingNumber == value && s.Status != domain.StatusCancelled
		case domain.EntityBLNumber:
			match = s.BLNumber == value
		case domain.EntityContainerNumber:
			match = s.HasContainer(value)
		}
		if match {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *shipmentRepoFake) Create(_ context.Context, shipment *domain.Shipment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shipments {
		if shipment.BookingNumber != "" && s.BookingNumber == shipment.BookingNumber && s.Status != domain.StatusCancelled {
			return domain.ErrDuplicateBooking
		}
	}
	cp := *shipment
	f.shipments[shipment.ID] = &cp
	return nil
}

func (f *shipmentRepoFake) AdvanceState(_ context.Context, shipmentID string, next workflow.StateDef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[shipmentID]
	if !ok {
		return false, domain.ErrShipmentNotFound
	}
	if !next.Terminal && s.StateOrder >= next.Order {
		return false, nil
	}
	f.apply(s, next)
	return true, nil
}

func (f *shipmentRepoFake) SetState(_ context.Context, shipmentID string, next workflow.StateDef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[shipmentID]
	if !ok {
		return false, domain.ErrShipmentNotFound
	}
	if s.WorkflowState == next.Code {
		return false, nil
	}
	f.apply(s, next)
	return true, nil
}

func (f *shipmentRepoFake) apply(s *domain.Shipment, next workflow.StateDef) {
	s.WorkflowState = next.Code
	s.WorkflowPhase = next.Phase
	s.Status = next.Status
	s.StateOrder = next.Order
}

func (f *shipmentRepoFake) EnrichIdentifiers(_ context.Context, shipmentID, blNumber string, containers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shipments[shipmentID]
	if !ok {
		return domain.ErrShipmentNotFound
	}
	if s.BLNumber == "" && blNumber != "" {
		s.BLNumber = blNumber
	}
	for _, c := range containers {
		if !s.HasContainer(c) {
			s.ContainerNumbers = append(s.ContainerNumbers, c)
		}
	}
	return nil
}

func (f *shipmentRepoFake) ListIDs(_ context.Context, afterID string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.shipments {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type linkKey struct{ shipmentID, emailID string }

type linkRepoFake struct {
	mu    sync.Mutex
	rows  map[linkKey]*domain.DocumentLink
	byMsg map[linkKey]struct{} // shipmentID + messageID
}

func newLinkRepoFake() *linkRepoFake {
	return &linkRepoFake{
		rows:  make(map[linkKey]*domain.DocumentLink),
		byMsg: make(map[linkKey]struct{}),
	}
}

func (f *linkRepoFake) Create(_ context.Context, link *domain.DocumentLink) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := linkKey{link.ShipmentID, link.EmailID}
	if _, dup := f.rows[key]; dup {
		return false, nil
	}
	if link.MessageID != "" {
		msgKey := linkKey{link.ShipmentID, link.MessageID}
		if _, dup := f.byMsg[msgKey]; dup {
			return false, nil
		}
		f.byMsg[msgKey] = struct{}{}
	}
	cp := *link
	f.rows[key] = &cp
	return true, nil
}

func (f *linkRepoFake) ListDocumentTypes(_ context.Context, shipmentID string) ([]domain.DocumentType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DocumentType
	for key, link := range f.rows {
		if key.shipmentID == shipmentID {
			out = append(out, link.DocumentType)
		}
	}
	return out, nil
}

func (f *linkRepoFake) Reclassify(_ context.Context, shipmentID, emailID string, docType domain.DocumentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.rows[linkKey{shipmentID, emailID}]
	if !ok {
		return domain.ErrShipmentNotFound
	}
	link.DocumentType = docType
	return nil
}

func (f *linkRepoFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *linkRepoFake) emailLinked(emailID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.rows {
		if key.emailID == emailID {
			return true
		}
	}
	return false
}

type candidateRepoFake struct {
	mu   sync.Mutex
	rows map[string]*domain.LinkCandidate // by natural key email|type|value
	byID map[string]*domain.LinkCandidate
}

func newCandidateRepoFake() *candidateRepoFake {
	return &candidateRepoFake{
		rows: make(map[string]*domain.LinkCandidate),
		byID: make(map[string]*domain.LinkCandidate),
	}
}

func naturalKey(c *domain.LinkCandidate) string {
	return c.EmailID + "|" + string(c.EntityType) + "|" + c.EntityValue
}

func (f *candidateRepoFake) Upsert(_ context.Context, candidate *domain.LinkCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := naturalKey(candidate)
	if existing, ok := f.rows[key]; ok {
		existing.Status = candidate.Status
		existing.Confidence = candidate.Confidence
		existing.MatchedShipmentIDs = candidate.MatchedShipmentIDs
		*candidate = *existing
		return nil
	}
	cp := *candidate
	f.rows[key] = &cp
	f.byID[candidate.ID] = f.rows[key]
	return nil
}

func (f *candidateRepoFake) GetByID(_ context.Context, id string) (*domain.LinkCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrCandidateNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *candidateRepoFake) ListByStatus(_ context.Context, status domain.CandidateStatus, limit int) ([]domain.LinkCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LinkCandidate
	for _, c := range f.rows {
		if c.Status == status && len(out) < limit {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmailID < out[j].EmailID })
	return out, nil
}

func (f *candidateRepoFake) UpdateStatus(_ context.Context, id string, status domain.CandidateStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return domain.ErrCandidateNotFound
	}
	c.Status = status
	return nil
}

type sourceFake struct {
	docs map[string]domain.ClassifiedDocument
	// when set, ListUnlinked mimics the SQL-level exclusion of emails that
	// already have a link row
	links *linkRepoFake
}

func newSourceFake(docs ...domain.ClassifiedDocument) *sourceFake {
	f := &sourceFake{docs: make(map[string]domain.ClassifiedDocument)}
	for _, d := range docs {
		f.docs[d.EmailID] = d
	}
	return f
}

func (f *sourceFake) Document(_ context.Context, emailID string) (*domain.ClassifiedDocument, error) {
	d, ok := f.docs[emailID]
	if !ok {
		return nil, domain.ErrInvalidInput
	}
	return &d, nil
}

func (f *sourceFake) ListUnlinked(_ context.Context, afterEmailID string, limit int) ([]domain.ClassifiedDocument, error) {
	var ids []string
	for id := range f.docs {
		if id <= afterEmailID {
			continue
		}
		if f.links != nil && f.links.emailLinked(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.ClassifiedDocument
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, f.docs[id])
	}
	return out, nil
}

type checkpointFake struct {
	mu   sync.Mutex
	vals map[string]string
}

func newCheckpointFake() *checkpointFake {
	return &checkpointFake{vals: make(map[string]string)}
}

func (f *checkpointFake) Get(_ context.Context, job string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vals[job], nil
}

func (f *checkpointFake) Put(_ context.Context, job, lastEmailID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[job] = lastEmailID
	return nil
}
