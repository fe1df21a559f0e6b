package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const holdTTLKey = "hold_ttl_minutes"

type SettingsRepository struct {
	conn
}

func NewSettingsRepository(pool *pgxpool.Pool, opts ...Option) *SettingsRepository {
	return &SettingsRepository{conn: newConn(pool, opts)}
}

func (r *SettingsRepository) HoldTTLMinutes(ctx context.Context) (int, bool, error) {
	var raw string
	err := r.queryRow(ctx, `SELECT value FROM settings WHERE key = $1`, holdTTLKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read %s: %w", holdTTLKey, err)
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s %q: %w", holdTTLKey, raw, err)
	}
	return minutes, true, nil
}

func (r *SettingsRepository) SetHoldTTLMinutes(ctx context.Context, minutes int) error {
	const stmt = `
INSERT INTO settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := r.exec(ctx, stmt, holdTTLKey, strconv.Itoa(minutes)); err != nil {
		return fmt.Errorf("write %s: %w", holdTTLKey, err)
	}
	return nil
}
