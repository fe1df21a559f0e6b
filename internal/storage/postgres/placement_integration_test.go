package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
	"github.com/cimillas/ultimate-ticket/holds/internal/testutil"
)

func TestPlacement_ConcurrentBuyersNeverOversell(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	_, zoneID := testutil.InsertEventAndZone(t, ctx, pool, "Concert", 10, 2)
	holds := NewHoldRepository(pool, WithLockTimeout(5*time.Second))
	svc := app.NewHoldService(holds, NewCartRepository(pool), clock.NewSystem())

	const buyers = 10
	carts := make([]string, buyers)
	for i := range carts {
		carts[i], _ = testutil.InsertCart(t, ctx, pool, fmt.Sprintf("user-%d", i),
			testutil.CartLine{ZoneID: zoneID, Quantity: 1 + i%2})
	}

	var wg sync.WaitGroup
	errs := make(chan error, buyers)
	for i := range carts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceHold(ctx, app.PlaceHoldInput{UserID: fmt.Sprintf("user-%d", i), CartID: carts[i]})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && !errors.Is(err, domain.ErrTransientLock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var quota, sold, pending int
	err := pool.QueryRow(ctx, `
SELECT z.quota, z.sold, COALESCE(SUM(h.quantity) FILTER (WHERE h.status = 'pending' AND h.expires_at > NOW()), 0)
FROM zones z LEFT JOIN holds h ON h.zone_id = z.id
WHERE z.id = $1
GROUP BY z.id`, zoneID).Scan(&quota, &sold, &pending)
	if err != nil {
		t.Fatalf("read zone: %v", err)
	}
	if sold+pending > quota {
		t.Fatalf("oversold: sold %d + pending %d > quota %d", sold, pending, quota)
	}

	var dupPositions int
	err = pool.QueryRow(ctx, `
SELECT COUNT(*) FROM (
	SELECT queue_position FROM holds
	WHERE zone_id = $1 AND status = 'waiting'
	GROUP BY queue_position HAVING COUNT(*) > 1
) d`, zoneID).Scan(&dupPositions)
	if err != nil {
		t.Fatalf("read positions: %v", err)
	}
	if dupPositions != 0 {
		t.Fatalf("expected unique queue positions, got %d duplicates", dupPositions)
	}
}

func TestReconcile_ConfirmTwiceSellsOnce(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	_, zoneID := testutil.InsertEventAndZone(t, ctx, pool, "Concert", 20, 5)
	cartID, _ := testutil.InsertCart(t, ctx, pool, "user-1", testutil.CartLine{ZoneID: zoneID, Quantity: 3})

	repo := NewHoldRepository(pool, WithLockTimeout(time.Second))
	holds := app.NewHoldService(repo, NewCartRepository(pool), clock.NewSystem())
	reconcile := app.NewReconcileService(repo, clock.NewSystem())

	if _, err := holds.PlaceHold(ctx, app.PlaceHoldInput{UserID: "user-1", CartID: cartID}); err != nil {
		t.Fatalf("place: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := reconcile.ConfirmHold(ctx, "user-1", cartID); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}

	var sold int
	if err := pool.QueryRow(ctx, `SELECT sold FROM zones WHERE id = $1`, zoneID).Scan(&sold); err != nil {
		t.Fatalf("read sold: %v", err)
	}
	if sold != 8 {
		t.Fatalf("expected sold 8, got %d", sold)
	}
}
