package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

type txKey struct{}

// Option tunes the transactions a repository opens.
type Option func(*conn)

// WithLockTimeout bounds how long a statement waits for a row lock. A waiter
// that gives up surfaces as domain.ErrTransientLock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *conn) { c.lockTimeout = d }
}

// conn is shared by every repository: it routes statements to the transaction
// carried in the context when there is one.
type conn struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func newConn(pool *pgxpool.Pool, opts []Option) conn {
	c := conn{pool: pool}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c conn) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return classify(withTx(ctx, c.pool, c.lockTimeout, fn))
}

func withTx(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	if lockTimeout > 0 {
		// set_config with is_local=true scopes the timeout to this transaction.
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", lockTimeout.Milliseconds())); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (c conn) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return c.pool.Exec(ctx, sql, args...)
}

func (c conn) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return c.pool.QueryRow(ctx, sql, args...)
}

func (c conn) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return c.pool.Query(ctx, sql, args...)
}

// Lock contention codes: lock_not_available, deadlock_detected and
// serialization_failure.
var transientCodes = map[string]bool{
	"55P03": true,
	"40P01": true,
	"40001": true,
}

// classify tags lock contention with domain.ErrTransientLock and keeps the
// driver error in the chain.
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransientLock) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCodes[pgErr.Code] {
		return fmt.Errorf("%w: %w", domain.ErrTransientLock, err)
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isInvalidUUID(err error) bool {
	return pgCode(err) == "22P02"
}
