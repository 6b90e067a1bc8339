package domain

// DriftEntry is one shipment whose stored workflow state differs from the
// state derived from its linked document set.
type DriftEntry struct {
	ShipmentID    string `json:"shipment_id"`
	BookingNumber string `json:"booking_number,omitempty"`
	StoredState   string `json:"stored_state"`
	DerivedState  string `json:"derived_state"`
}

// VerifyReport summarizes a read-only reconciliation pass.
type VerifyReport struct {
	Checked  int            `json:"checked"`
	Matching int            `json:"matching"`
	Drifted  int            `json:"drifted"`
	Errors   int            `json:"errors"`
	ByState  map[string]int `json:"by_state"`
	Drift    []DriftEntry   `json:"drift,omitempty"`
}

// StateTransition records a before/after pair applied by backfill.
type StateTransition struct {
	ShipmentID    string `json:"shipment_id"`
	BookingNumber string `json:"booking_number,omitempty"`
	OldState      string `json:"old_state"`
	NewState      string `json:"new_state"`
}

// BackfillReport summarizes one backfill run: how the unlinked corpus was
// disposed of and which shipments changed state during re-derivation.
type BackfillReport struct {
	Scanned     int               `json:"scanned"`
	Linked      int               `json:"linked"`
	Created     int               `json:"created"`
	Candidates  int               `json:"candidates"`
	Skipped     int               `json:"skipped"`
	Errors      int               `json:"errors"`
	Updated     int               `json:"updated"`
	Transitions []StateTransition `json:"transitions,omitempty"`
	LastEmailID string            `json:"last_email_id,omitempty"`
}
