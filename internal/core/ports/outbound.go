package ports

import (
	"context"
	"time"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

// ShipmentRepository persists shipment aggregates. Implementations enforce
// booking-number uniqueness across non-cancelled shipments (Create returns
// domain.ErrDuplicateBooking when violated) and serialize state updates per
// shipment through the order-guarded compare-and-swap in AdvanceState.
type ShipmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Shipment, error)
	// FindByIdentifier returns every shipment whose given natural key equals
	// the normalized value. More than one element means an ambiguous match.
	FindByIdentifier(ctx context.Context, idType domain.EntityType, value string) ([]domain.Shipment, error)
	Create(ctx context.Context, shipment *domain.Shipment) error
	// AdvanceState applies the state triple only while the stored order is
	// below the candidate's, unless the candidate is terminal. Returns false
	// when a concurrent writer already applied an equal or higher state.
	AdvanceState(ctx context.Context, shipmentID string, next workflow.StateDef) (bool, error)
	// SetState applies a re-derived state unconditionally (reconciliation
	// repair path, may move down as well as up).
	SetState(ctx context.Context, shipmentID string, next workflow.StateDef) (bool, error)
	// EnrichIdentifiers fills missing bl_number and appends unseen container
	// numbers; it never overwrites populated fields.
	EnrichIdentifiers(ctx context.Context, shipmentID string, blNumber string, containers []string) error
	// ListIDs pages shipment ids in ascending order for batch scans.
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// DocumentLinkRepository persists shipment-document links.
type DocumentLinkRepository interface {
	// Create inserts the link, returning false without error when a row for
	// the (shipment, email) pair or (shipment, message) pair already exists.
	Create(ctx context.Context, link *domain.DocumentLink) (bool, error)
	ListDocumentTypes(ctx context.Context, shipmentID string) ([]domain.DocumentType, error)
	// Reclassify replaces the document type of an existing link.
	Reclassify(ctx context.Context, shipmentID, emailID string, docType domain.DocumentType) error
}

// LinkCandidateRepository persists unresolved and ambiguous candidates,
// keyed naturally by (email_id, entity_type, entity_value).
type LinkCandidateRepository interface {
	Upsert(ctx context.Context, candidate *domain.LinkCandidate) error
	GetByID(ctx context.Context, id string) (*domain.LinkCandidate, error)
	ListByStatus(ctx context.Context, status domain.CandidateStatus, limit int) ([]domain.LinkCandidate, error)
	UpdateStatus(ctx context.Context, id string, status domain.CandidateStatus) error
}

// ClassificationSource is the read-only view over the upstream pipeline's
// output: one current document type per email plus its extracted entities.
type ClassificationSource interface {
	Document(ctx context.Context, emailID string) (*domain.ClassifiedDocument, error)
	// ListUnlinked pages classified emails that have no document link yet,
	// ordered by email id for checkpointed resumption.
	ListUnlinked(ctx context.Context, afterEmailID string, limit int) ([]domain.ClassifiedDocument, error)
}

// CheckpointStore persists batch progress so interrupted runs resume after
// the last fully processed batch.
type CheckpointStore interface {
	Get(ctx context.Context, job string) (string, error)
	Put(ctx context.Context, job string, lastEmailID string) error
}

// MessageQueue carries classified-email events between the upstream
// pipeline and the resolver worker. publishedAt is the event's publication
// time, so subscribers can observe queue lag.
type MessageQueue interface {
	PublishEmailClassified(ctx context.Context, emailID string) error
	SubscribeEmailClassified(ctx context.Context, handler func(ctx context.Context, emailID string, publishedAt time.Time) error) error
}

// Retrier runs an operation, retrying transient failures. Implementations
// decide which errors count as transient and how often to retry.
type Retrier interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error) error
}
