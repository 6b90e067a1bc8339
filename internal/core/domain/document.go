package domain

// EntityType names a structured value extracted from an email by the
// upstream pipeline. Only the identifier types participate in matching.
type EntityType string

const (
	EntityBookingNumber   EntityType = "booking_number"
	EntityBLNumber        EntityType = "bl_number"
	EntityContainerNumber EntityType = "container_number"
)

// IdentifierRank orders identifier types by specificity. Lower is more
// specific; non-identifier types rank negative and never match.
func (t EntityType) IdentifierRank() int {
	switch t {
	case EntityBookingNumber:
		return 0
	case EntityBLNumber:
		return 1
	case EntityContainerNumber:
		return 2
	default:
		return -1
	}
}

func (t EntityType) IsIdentifier() bool {
	return t.IdentifierRank() >= 0
}

type Entity struct {
	Type       EntityType `json:"entity_type"`
	Value      string     `json:"entity_value"`
	Confidence float64    `json:"confidence"`
}

type DocumentType string

const (
	DocBookingConfirmation DocumentType = "booking_confirmation"
	DocBookingAmendment    DocumentType = "booking_amendment"
	DocBookingCancellation DocumentType = "booking_cancellation"
	DocSIDraft             DocumentType = "si_draft"
	DocSIConfirmation      DocumentType = "si_confirmation"
	DocVGMConfirmation     DocumentType = "vgm_confirmation"
	DocCutoffNotice        DocumentType = "cutoff_notice"
	DocBLDraft             DocumentType = "bl_draft"
	DocBillOfLading        DocumentType = "bill_of_lading"
	DocDepartureNotice     DocumentType = "departure_notice"
	DocArrivalNotice       DocumentType = "arrival_notice"
	DocCustomsClearance    DocumentType = "customs_clearance"
	DocDeliveryOrder       DocumentType = "delivery_order"
	DocProofOfDelivery     DocumentType = "proof_of_delivery"
	DocInvoice             DocumentType = "invoice"
	DocCorrespondence      DocumentType = "correspondence"
)

// CreatesShipment reports whether a document of this type may seed a new
// shipment when no existing one matches.
func (d DocumentType) CreatesShipment() bool {
	return d == DocBookingConfirmation || d == DocBookingAmendment
}

// ClassifiedDocument is the read-only input produced by the upstream
// classification and entity-extraction pipeline for one email. MessageID is
// the provider-stable identity of the physical message and is the dedup key
// across re-ingested copies of the same mail (thread replies included).
type ClassifiedDocument struct {
	EmailID      string       `json:"email_id"`
	MessageID    string       `json:"message_id"`
	DocumentType DocumentType `json:"document_type"`
	Entities     []Entity     `json:"entities"`
}

// IdentifierEntities returns the matching-relevant entities sorted by
// identifier rank, preserving input order within a rank.
func (d ClassifiedDocument) IdentifierEntities() []Entity {
	out := make([]Entity, 0, len(d.Entities))
	for _, e := range d.Entities {
		if e.Type.IsIdentifier() {
			out = append(out, e)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Type.IdentifierRank() < out[j-1].Type.IdentifierRank(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
