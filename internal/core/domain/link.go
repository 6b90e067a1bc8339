package domain

import "time"

// DocumentLink ties an email to a shipment. At most one row exists per
// (shipment_id, email_id) and per (shipment_id, message_id); re-processing
// the same email or another copy of the same physical message is a no-op.
type DocumentLink struct {
	ShipmentID   string       `json:"shipment_id"`
	EmailID      string       `json:"email_id"`
	MessageID    string       `json:"message_id,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	LinkMethod   EntityType   `json:"link_method"`
	Confidence   float64      `json:"confidence"`
	LinkedAt     time.Time    `json:"linked_at"`
}

type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateAmbiguous CandidateStatus = "ambiguous"
	CandidateConfirmed CandidateStatus = "confirmed"
	CandidateRejected  CandidateStatus = "rejected"
)

// LinkCandidate records an identifier that matched no shipment (pending) or
// several (ambiguous). Pending candidates are retried on later backfill
// passes as shipments gain identifiers; ambiguous ones wait for an operator.
type LinkCandidate struct {
	ID                 string          `json:"id"`
	EmailID            string          `json:"email_id"`
	DocumentType       DocumentType    `json:"document_type"`
	EntityType         EntityType      `json:"entity_type"`
	EntityValue        string          `json:"entity_value"`
	Confidence         float64         `json:"confidence"`
	Status             CandidateStatus `json:"status"`
	MatchedShipmentIDs []string        `json:"matched_shipment_ids,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type ResolutionOutcome string

const (
	OutcomeLinked    ResolutionOutcome = "linked"
	OutcomeCreated   ResolutionOutcome = "created"
	OutcomeDuplicate ResolutionOutcome = "duplicate"
	OutcomeCandidate ResolutionOutcome = "candidate"
	OutcomeAmbiguous ResolutionOutcome = "ambiguous"
	OutcomeSkipped   ResolutionOutcome = "skipped"
)

// Resolution describes what Resolve did with one document.
type Resolution struct {
	Outcome    ResolutionOutcome `json:"outcome"`
	ShipmentID string            `json:"shipment_id,omitempty"`
	Link       *DocumentLink     `json:"link,omitempty"`
	Candidates []LinkCandidate   `json:"candidates,omitempty"`
}
