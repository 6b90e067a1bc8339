package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/infrastructure/resilience"
)

// ClassifyError marks connection-level NATS failures as retryable so the
// executor backs off instead of failing the batch outright. Context
// cancellation is neither retried nor held against the breaker.
func ClassifyError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	case isConnectivityError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isConnectivityError(err error) bool {
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout):
		return true
	}
	return false
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return errors.Join(domain.ErrTemporary, err)
	}
	return err
}
