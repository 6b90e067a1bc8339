package ports

import (
	"context"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

// DocumentResolver is the inbound contract for linking one classified
// document to a shipment and advancing its workflow state.
type DocumentResolver interface {
	Resolve(ctx context.Context, doc domain.ClassifiedDocument) (domain.Resolution, error)
	ResolveByEmailID(ctx context.Context, emailID string) (domain.Resolution, error)
	// Relink re-applies the email's current classification to an existing
	// link and re-derives the shipment's workflow state.
	Relink(ctx context.Context, shipmentID, emailID string) (domain.Resolution, error)
}

// Reconciler replays resolution and state derivation over the historical
// corpus. Verify never mutates; Backfill does, idempotently.
type Reconciler interface {
	Verify(ctx context.Context) (*domain.VerifyReport, error)
	Backfill(ctx context.Context) (*domain.BackfillReport, error)
}

// CandidateReviewer is the operator contract for disposing of ambiguous or
// pending link candidates.
type CandidateReviewer interface {
	Confirm(ctx context.Context, candidateID, shipmentID string) (*domain.DocumentLink, error)
	Reject(ctx context.Context, candidateID string) error
}
