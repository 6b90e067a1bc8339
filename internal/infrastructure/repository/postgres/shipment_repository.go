package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
	"github.com/dkozyrev/freight-linker/internal/core/workflow"
)

type ShipmentRepository struct {
	db *sql.DB
}

func NewShipmentRepository(db *sql.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

const shipmentColumns = `id, booking_number, bl_number, container_numbers, workflow_state, workflow_phase, status, state_order, created_at, updated_at`

func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE id = $1
`, id)
	shipment, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrShipmentNotFound, "get shipment", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan shipment: %w", err)
	}
	return shipment, nil
}

// FindByIdentifier resolves one natural key to candidate shipments. Booking
// lookups exclude cancelled shipments since a booking number may be reused
// after cancellation; BL and container lookups do not.
func (r *ShipmentRepository) FindByIdentifier(ctx context.Context, idType domain.EntityType, value string) ([]domain.Shipment, error) {
	var rows *sql.Rows
	var err error
	switch idType {
	case domain.EntityBookingNumber:
		rows, err = r.db.QueryContext(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE booking_number = $1 AND status <> 'cancelled'
ORDER BY id
`, value)
	case domain.EntityBLNumber:
		rows, err = r.db.QueryContext(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE bl_number = $1
ORDER BY id
`, value)
	case domain.EntityContainerNumber:
		needle, marshalErr := json.Marshal([]string{value})
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal container needle: %w", marshalErr)
		}
		rows, err = r.db.QueryContext(ctx, `
SELECT `+shipmentColumns+`
FROM shipments
WHERE container_numbers @> $1::jsonb
ORDER BY id
`, needle)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "find by identifier",
			fmt.Errorf("unsupported identifier type %q", idType))
	}
	if err != nil {
		return nil, fmt.Errorf("query shipments by %s: %w", idType, err)
	}
	defer rows.Close()

	var out []domain.Shipment
	for rows.Next() {
		shipment, scanErr := scanShipment(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan shipment row: %w", scanErr)
		}
		out = append(out, *shipment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment rows: %w", err)
	}
	return out, nil
}

func (r *ShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	containersJSON, err := json.Marshal(shipment.ContainerNumbers)
	if err != nil {
		return fmt.Errorf("marshal container numbers: %w", err)
	}
	if shipment.ContainerNumbers == nil {
		containersJSON = []byte(`[]`)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO shipments (
	id, booking_number, bl_number, container_numbers, workflow_state, workflow_phase, status, state_order, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		shipment.ID, nullable(shipment.BookingNumber), nullable(shipment.BLNumber), containersJSON,
		shipment.WorkflowState, shipment.WorkflowPhase, string(shipment.Status), shipment.StateOrder,
		shipment.CreatedAt, shipment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateBooking, "insert shipment", err)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// AdvanceState is the order-guarded compare-and-swap: it writes the state
// triple only while the stored order is strictly below the candidate's. The
// terminal state bypasses the guard. Zero rows affected means a concurrent
// writer already applied an equal or higher state.
func (r *ShipmentRepository) AdvanceState(ctx context.Context, shipmentID string, next workflow.StateDef) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE shipments
SET workflow_state = $2, workflow_phase = $3, status = $4, state_order = $5, updated_at = $6
WHERE id = $1 AND (state_order < $5 OR $7)
`, shipmentID, next.Code, next.Phase, string(next.Status), next.Order, time.Now().UTC(), next.Terminal)
	if err != nil {
		return false, fmt.Errorf("advance shipment state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetState applies a re-derived state unconditionally; used by backfill to
// repair drift in either direction.
func (r *ShipmentRepository) SetState(ctx context.Context, shipmentID string, next workflow.StateDef) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE shipments
SET workflow_state = $2, workflow_phase = $3, status = $4, state_order = $5, updated_at = $6
WHERE id = $1 AND workflow_state <> $2
`, shipmentID, next.Code, next.Phase, string(next.Status), next.Order, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set shipment state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set state rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ShipmentRepository) EnrichIdentifiers(ctx context.Context, shipmentID, blNumber string, containers []string) error {
	if blNumber != "" {
		_, err := r.db.ExecContext(ctx, `
UPDATE shipments
SET bl_number = $2, updated_at = $3
WHERE id = $1 AND bl_number IS NULL
`, shipmentID, blNumber, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("enrich bl number: %w", err)
		}
	}
	for _, container := range containers {
		needle, err := json.Marshal([]string{container})
		if err != nil {
			return fmt.Errorf("marshal container: %w", err)
		}
		element, err := json.Marshal(container)
		if err != nil {
			return fmt.Errorf("marshal container element: %w", err)
		}
		_, err = r.db.ExecContext(ctx, `
UPDATE shipments
SET container_numbers = container_numbers || $2::jsonb, updated_at = $3
WHERE id = $1 AND NOT container_numbers @> $4::jsonb
`, shipmentID, fmt.Sprintf("[%s]", element), time.Now().UTC(), needle)
		if err != nil {
			return fmt.Errorf("enrich container number: %w", err)
		}
	}
	return nil
}

func (r *ShipmentRepository) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM shipments
WHERE id > $1
ORDER BY id
LIMIT $2
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list shipment ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan shipment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*domain.Shipment, error) {
	var s domain.Shipment
	var booking, bl sql.NullString
	var containersRaw []byte
	var status string

	err := row.Scan(
		&s.ID, &booking, &bl, &containersRaw, &s.WorkflowState, &s.WorkflowPhase,
		&status, &s.StateOrder, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(containersRaw, &s.ContainerNumbers); err != nil {
		return nil, fmt.Errorf("unmarshal container numbers: %w", err)
	}
	s.BookingNumber = booking.String
	s.BLNumber = bl.String
	s.Status = domain.ShipmentStatus(status)
	return &s, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
