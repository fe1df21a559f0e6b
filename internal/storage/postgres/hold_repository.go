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

// HoldRepository is the hold ledger and the zone counters. Placement,
// reconciliation and the sweeper all run against it.
type HoldRepository struct {
	conn
}

func NewHoldRepository(pool *pgxpool.Pool, opts ...Option) *HoldRepository {
	return &HoldRepository{conn: newConn(pool, opts)}
}

const holdColumns = `id, batch_id, user_id, cart_id, cart_line_id, event_id, zone_id, quantity, status, expires_at, queue_position, created_at, promoted_at`

func scanHold(row pgx.Row) (domain.Hold, error) {
	var (
		h      domain.Hold
		status string
	)
	err := row.Scan(&h.ID, &h.BatchID, &h.UserID, &h.CartID, &h.CartLineID, &h.EventID, &h.ZoneID,
		&h.Quantity, &status, &h.ExpiresAt, &h.QueuePosition, &h.CreatedAt, &h.PromotedAt)
	if err != nil {
		return domain.Hold{}, err
	}
	if h.Status, err = domain.ParseHoldStatus(status); err != nil {
		return domain.Hold{}, err
	}
	return h, nil
}

func collectHolds(rows pgx.Rows) ([]domain.Hold, error) {
	defer rows.Close()
	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate holds: %w", rows.Err())
	}
	return holds, nil
}

func (r *HoldRepository) GetZoneForUpdate(ctx context.Context, zoneID string) (domain.Zone, error) {
	const query = `SELECT id, event_id, name, quota, sold FROM zones WHERE id = $1 FOR UPDATE`
	var z domain.Zone
	err := r.queryRow(ctx, query, zoneID).Scan(&z.ID, &z.EventID, &z.Name, &z.Quota, &z.Sold)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Zone{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Zone{}, domain.ErrZoneNotFound
		}
		return domain.Zone{}, fmt.Errorf("lock zone: %w", err)
	}
	return z, nil
}

func (r *HoldRepository) SumLivePending(ctx context.Context, zoneID string, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity), 0)
FROM holds
WHERE zone_id = $1 AND status = 'pending' AND expires_at > $2`

	var total int
	if err := r.queryRow(ctx, query, zoneID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum pending holds: %w", err)
	}
	return total, nil
}

// NextQueuePosition is one past the highest waiting position in the zone.
// Callers hold the zone lock, so two placements never get the same value.
func (r *HoldRepository) NextQueuePosition(ctx context.Context, zoneID string) (int, error) {
	const query = `
SELECT COALESCE(MAX(queue_position), 0) + 1
FROM holds
WHERE zone_id = $1 AND status = 'waiting'`

	var pos int
	if err := r.queryRow(ctx, query, zoneID).Scan(&pos); err != nil {
		return 0, fmt.Errorf("next queue position: %w", err)
	}
	return pos, nil
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, batch_id, user_id, cart_id, cart_line_id, event_id, zone_id, quantity, status, expires_at, queue_position, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`

	_, err := r.exec(ctx, stmt,
		hold.ID,
		hold.BatchID,
		hold.UserID,
		hold.CartID,
		hold.CartLineID,
		hold.EventID,
		hold.ZoneID,
		hold.Quantity,
		string(hold.Status),
		hold.ExpiresAt,
		hold.QueuePosition,
		hold.CreatedAt,
	)
	if err != nil {
		// Another placement for the same cart line got in first.
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: concurrent placement for cart line %s", domain.ErrTransientLock, hold.CartLineID)
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

// ExpireActiveHoldsForLines retires the user's pending and waiting holds for
// the given cart lines and returns them.
func (r *HoldRepository) ExpireActiveHoldsForLines(ctx context.Context, userID string, cartLineIDs []string, now time.Time) ([]domain.Hold, error) {
	stmt := `
UPDATE holds
SET status = 'expired', updated_at = $3
WHERE user_id = $1 AND cart_line_id = ANY($2::uuid[]) AND status IN ('pending', 'waiting')
RETURNING ` + holdColumns

	rows, err := r.query(ctx, stmt, userID, cartLineIDs, now)
	if err != nil {
		return nil, fmt.Errorf("expire line holds: %w", err)
	}
	holds, err := collectHolds(rows)
	if err != nil {
		return nil, fmt.Errorf("expire line holds: %w", err)
	}
	return holds, nil
}

func (r *HoldRepository) HasLivePending(ctx context.Context, userID, cartID string, now time.Time) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM holds
	WHERE user_id = $1 AND cart_id = $2 AND status = 'pending' AND expires_at > $3
)`

	var ok bool
	if err := r.queryRow(ctx, query, userID, cartID, now).Scan(&ok); err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("check active hold: %w", err)
	}
	return ok, nil
}

// ListLivePending returns the cart's unexpired pending holds. With forUpdate
// the rows stay locked until the transaction ends.
func (r *HoldRepository) ListLivePending(ctx context.Context, userID, cartID string, now time.Time, forUpdate bool) ([]domain.Hold, error) {
	query := `
SELECT ` + holdColumns + `
FROM holds
WHERE user_id = $1 AND cart_id = $2 AND status = 'pending' AND expires_at > $3
ORDER BY zone_id, created_at, id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := r.query(ctx, query, userID, cartID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list pending holds: %w", err)
	}
	holds, err := collectHolds(rows)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, err
	}
	return holds, nil
}

// IncrementSold adds qty to the zone's sold counter. The quota guard is in the
// statement so the counter can never pass it, whatever the caller computed.
func (r *HoldRepository) IncrementSold(ctx context.Context, zoneID string, qty int) error {
	const stmt = `UPDATE zones SET sold = sold + $2 WHERE id = $1 AND sold + $2 <= quota`
	tag, err := r.exec(ctx, stmt, zoneID, qty)
	if err != nil {
		return fmt.Errorf("increment sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: zone %s", domain.ErrOversold, zoneID)
	}
	return nil
}

// TransitionHolds moves every listed hold from one status to another. It
// fails unless all of them were in the from status.
func (r *HoldRepository) TransitionHolds(ctx context.Context, holdIDs []string, from, to domain.HoldStatus, now time.Time) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}
	const stmt = `
UPDATE holds
SET status = $3, updated_at = $4
WHERE id = ANY($1::uuid[]) AND status = $2`

	tag, err := r.exec(ctx, stmt, holdIDs, string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("transition holds: %w", err)
	}
	if int(tag.RowsAffected()) != len(holdIDs) {
		return fmt.Errorf("%w: %d of %d holds were %s", domain.ErrIllegalTransition, tag.RowsAffected(), len(holdIDs), from)
	}
	return nil
}

func (r *HoldRepository) ExpireCartHolds(ctx context.Context, userID, cartID string, statuses []domain.HoldStatus, now time.Time) ([]domain.Hold, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	stmt := `
UPDATE holds
SET status = 'expired', updated_at = $4
WHERE user_id = $1 AND cart_id = $2 AND status = ANY($3::text[])
RETURNING ` + holdColumns

	rows, err := r.query(ctx, stmt, userID, cartID, names, now)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("expire cart holds: %w", err)
	}
	holds, err := collectHolds(rows)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, err
	}
	return holds, nil
}

// ExpireLapsedPending expires every pending hold whose expires_at is at or
// before now, in one statement.
func (r *HoldRepository) ExpireLapsedPending(ctx context.Context, now time.Time) ([]domain.Hold, error) {
	stmt := `
UPDATE holds
SET status = 'expired', updated_at = $1
WHERE status = 'pending' AND expires_at <= $1
RETURNING ` + holdColumns

	var holds []domain.Hold
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		rows, err := r.query(txCtx, stmt, now)
		if err != nil {
			return fmt.Errorf("expire lapsed holds: %w", err)
		}
		holds, err = collectHolds(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *HoldRepository) ListZonesWithWaiting(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT zone_id FROM holds WHERE status = 'waiting' ORDER BY zone_id`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list queued zones: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan zone id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate queued zones: %w", rows.Err())
	}
	return ids, nil
}

// HeadOfQueue locks and returns the zone's lowest-positioned waiting hold, or
// nil when the queue is empty.
func (r *HoldRepository) HeadOfQueue(ctx context.Context, zoneID string) (*domain.Hold, error) {
	query := `
SELECT ` + holdColumns + `
FROM holds
WHERE zone_id = $1 AND status = 'waiting'
ORDER BY queue_position, created_at, id
LIMIT 1
FOR UPDATE`

	h, err := scanHold(r.queryRow(ctx, query, zoneID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("head of queue: %w", err)
	}
	return &h, nil
}

func (r *HoldRepository) PromoteHold(ctx context.Context, holdID string, expiresAt, now time.Time) error {
	const stmt = `
UPDATE holds
SET status = 'pending', expires_at = $2, promoted_at = $3, queue_position = NULL, updated_at = $3
WHERE id = $1 AND status = 'waiting'`

	tag, err := r.exec(ctx, stmt, holdID, expiresAt, now)
	if err != nil {
		return fmt.Errorf("promote hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: hold %s is no longer waiting", domain.ErrIllegalTransition, holdID)
	}
	return nil
}
