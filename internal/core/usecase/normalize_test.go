package usecase

import (
	"testing"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := []struct {
		name   string
		idType domain.EntityType
		in     string
		want   string
	}{
		{"plain booking", domain.EntityBookingNumber, "263042012", "263042012"},
		{"lowercase trimmed", domain.EntityBookingNumber, "  abc123  ", "ABC123"},
		{"bkg prefix", domain.EntityBookingNumber, "BKG:263042012", "263042012"},
		{"booking word prefix", domain.EntityBookingNumber, "Booking 263042012", "263042012"},
		{"internal separators", domain.EntityBookingNumber, "2630-4201/2", "263042012"},
		{"empty after trim", domain.EntityBookingNumber, "   ", ""},
		{"container keeps owner code", domain.EntityContainerNumber, "msku 123456-7", "MSKU1234567"},
		{"bl untouched prefix", domain.EntityBLNumber, "MAEU123456789", "MAEU123456789"},
		{"prefix only is unusable stays", domain.EntityBookingNumber, "BKG", "BKG"},
	}
	for _, tc := range cases {
		if got := normalizeIdentifier(tc.idType, tc.in); got != tc.want {
			t.Errorf("%s: normalizeIdentifier(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestRankWeightOrdersIdentifiers(t *testing.T) {
	if !(rankWeight(domain.EntityBookingNumber) > rankWeight(domain.EntityBLNumber) &&
		rankWeight(domain.EntityBLNumber) > rankWeight(domain.EntityContainerNumber)) {
		t.Fatal("rank weights out of order")
	}
	if rankWeight("vessel_name") != 0 {
		t.Fatal("non-identifier type has non-zero weight")
	}
}
