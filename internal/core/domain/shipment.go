package domain

import "time"

// ShipmentStatus is the coarse lifecycle label derived from the workflow
// state table alongside state and phase.
type ShipmentStatus string

const (
	StatusBooked    ShipmentStatus = "booked"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusCancelled ShipmentStatus = "cancelled"
)

// Shipment is the aggregate a document resolves against. BookingNumber is
// unique across non-cancelled shipments; BLNumber and ContainerNumbers are
// filled in over time as later documents carry them. StateOrder mirrors the
// workflow table rank of WorkflowState and is the compare-and-swap guard for
// concurrent advances. Shipments are never hard-deleted; cancellation is a
// terminal state.
type Shipment struct {
	ID               string         `json:"id"`
	BookingNumber    string         `json:"booking_number,omitempty"`
	BLNumber         string         `json:"bl_number,omitempty"`
	ContainerNumbers []string       `json:"container_numbers,omitempty"`
	WorkflowState    string         `json:"workflow_state"`
	WorkflowPhase    string         `json:"workflow_phase"`
	Status           ShipmentStatus `json:"status"`
	StateOrder       int            `json:"state_order"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// HasContainer reports whether the shipment already carries the container.
func (s *Shipment) HasContainer(number string) bool {
	for _, c := range s.ContainerNumbers {
		if c == number {
			return true
		}
	}
	return false
}
