package resilience

import (
	"context"
	"errors"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/ports"
)

// ClassifyDomainError separates the registry's permanent, typed failures
// from transient infrastructure ones. Unrecognized errors count as
// transient: drivers and networks fail without sentinels.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrShipmentNotFound),
		domain.IsKind(err, domain.ErrCandidateNotFound),
		domain.IsKind(err, domain.ErrDuplicateBooking):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
}

// DomainRetrier adapts the executor to the ports.Retrier contract with the
// domain classifier, for callers that should not see breaker internals.
type DomainRetrier struct {
	exec *Executor
}

var _ ports.Retrier = (*DomainRetrier)(nil)

func NewDomainRetrier(exec *Executor) *DomainRetrier {
	return &DomainRetrier{exec: exec}
}

func (r *DomainRetrier) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	return r.exec.Execute(ctx, operation, fn, ClassifyDomainError)
}
