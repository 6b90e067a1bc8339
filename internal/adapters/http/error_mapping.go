package httpadapter

import (
	"net/http"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrShipmentNotFound),
		domain.IsKind(err, domain.ErrCandidateNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateBooking):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
