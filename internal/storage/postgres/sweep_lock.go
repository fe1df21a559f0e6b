package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// sweepLockID is the session advisory lock every sweeping process contends
// for. It must differ from the migration and test database locks.
const sweepLockID int64 = 801234569

// SweepLock is a non-blocking session advisory lock. The lock lives on one
// pooled connection that is held until release, so the sweep's own queries
// run on other connections.
type SweepLock struct {
	pool *pgxpool.Pool
}

func NewSweepLock(pool *pgxpool.Pool) *SweepLock {
	return &SweepLock{pool: pool}
}

func (l *SweepLock) TryLock(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, sweepLockID).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try sweep lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, sweepLockID); err != nil {
			// An unlock that fails leaves the lock on the session; closing the
			// connection is the only way to drop it.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
	return release, true, nil
}
