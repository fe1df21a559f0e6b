package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// CartRepository reads carts written by the storefront.
type CartRepository struct {
	conn
}

func NewCartRepository(pool *pgxpool.Pool, opts ...Option) *CartRepository {
	return &CartRepository{conn: newConn(pool, opts)}
}

// ListCartLines returns the lines of a cart owned by userID in insertion
// order. EventID is empty for a line whose zone does not exist; placement
// reports that zone as missing when it tries to lock it.
func (r *CartRepository) ListCartLines(ctx context.Context, userID, cartID string) ([]domain.CartLine, error) {
	const ownerQuery = `SELECT user_id FROM carts WHERE id = $1`
	var owner string
	if err := r.queryRow(ctx, ownerQuery, cartID).Scan(&owner); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if owner != userID {
		return nil, domain.ErrCartNotFound
	}

	const query = `
SELECT cl.id, cl.cart_id, cl.zone_id, COALESCE(z.event_id::text, ''), cl.quantity
FROM cart_lines cl
LEFT JOIN zones z ON z.id = cl.zone_id
WHERE cl.cart_id = $1
ORDER BY cl.created_at ASC, cl.id ASC`
	rows, err := r.query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		line := domain.CartLine{UserID: owner}
		if err := rows.Scan(&line.ID, &line.CartID, &line.ZoneID, &line.EventID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cart lines: %w", rows.Err())
	}
	return lines, nil
}
