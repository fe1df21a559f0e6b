package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// AvailabilityRepository computes the projection with plain reads. It takes no
// locks, so numbers can lag a placement that is still in flight.
type AvailabilityRepository struct {
	conn
}

func NewAvailabilityRepository(pool *pgxpool.Pool, opts ...Option) *AvailabilityRepository {
	return &AvailabilityRepository{conn: newConn(pool, opts)}
}

const availabilitySelect = `
SELECT z.id, z.event_id, z.name, z.quota, z.sold,
	COALESCE(SUM(h.quantity) FILTER (WHERE h.status = 'pending' AND h.expires_at > $2), 0),
	COALESCE(SUM(h.quantity) FILTER (WHERE h.status = 'waiting'), 0)
FROM zones z
LEFT JOIN holds h ON h.zone_id = z.id AND h.status IN ('pending', 'waiting')
`

func scanAvailability(row pgx.Row) (domain.Availability, error) {
	var a domain.Availability
	if err := row.Scan(&a.ZoneID, &a.EventID, &a.Name, &a.Quota, &a.Sold, &a.Pending, &a.Waiting); err != nil {
		return domain.Availability{}, err
	}
	a.Available = domain.Zone{Quota: a.Quota, Sold: a.Sold}.Available(a.Pending)
	return a, nil
}

func (r *AvailabilityRepository) ZoneAvailability(ctx context.Context, zoneID string, now time.Time) (domain.Availability, error) {
	query := availabilitySelect + `WHERE z.id = $1 GROUP BY z.id`
	a, err := scanAvailability(r.queryRow(ctx, query, zoneID, now))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Availability{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Availability{}, domain.ErrZoneNotFound
		}
		return domain.Availability{}, fmt.Errorf("zone availability: %w", err)
	}
	return a, nil
}

func (r *AvailabilityRepository) EventAvailability(ctx context.Context, eventID string, now time.Time) ([]domain.Availability, error) {
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`
	var exists bool
	if err := r.queryRow(ctx, existsQuery, eventID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("check event: %w", err)
	}
	if !exists {
		return nil, domain.ErrEventNotFound
	}

	query := availabilitySelect + `WHERE z.event_id = $1 GROUP BY z.id ORDER BY z.created_at ASC, z.id ASC`
	rows, err := r.query(ctx, query, eventID, now)
	if err != nil {
		return nil, fmt.Errorf("event availability: %w", err)
	}
	defer rows.Close()

	zones := []domain.Availability{}
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		zones = append(zones, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate availability: %w", rows.Err())
	}
	return zones, nil
}
