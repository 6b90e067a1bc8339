package usecase

import (
	"strings"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

// Carrier noise prefixes seen in front of booking references in email
// bodies. SCAC owner codes on container numbers are part of the identifier
// and are never stripped.
var bookingNoisePrefixes = []string{"BKG:", "BKG", "BOOKING:", "BOOKING", "BN:", "REF:"}

// normalizeIdentifier canonicalizes an extracted identifier value for exact
// matching: uppercase, trimmed, internal whitespace and separators removed.
// An empty result means the identifier is unusable and must be skipped.
func normalizeIdentifier(idType domain.EntityType, value string) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '/', '.':
			return -1
		}
		return r
	}, v)

	if idType == domain.EntityBookingNumber {
		for _, prefix := range bookingNoisePrefixes {
			trimmed := strings.ReplaceAll(prefix, " ", "")
			if strings.HasPrefix(v, trimmed) && len(v) > len(trimmed) {
				v = v[len(trimmed):]
				break
			}
		}
	}
	return v
}

// rankWeight scales link confidence by identifier specificity so a stored
// container-based link never outscores a booking-based one at equal
// extraction confidence.
func rankWeight(idType domain.EntityType) float64 {
	switch idType {
	case domain.EntityBookingNumber:
		return 1.0
	case domain.EntityBLNumber:
		return 0.9
	case domain.EntityContainerNumber:
		return 0.75
	default:
		return 0
	}
}
