package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultHoldTTL = 15 * time.Minute

// TTLSource yields the lifetime of a new or freshly promoted pending hold.
type TTLSource interface {
	HoldTTL(ctx context.Context) time.Duration
}

// StaticTTL is a TTLSource that never changes.
type StaticTTL time.Duration

func (s StaticTTL) HoldTTL(context.Context) time.Duration {
	return time.Duration(s)
}

// SettingsReader reads the operator-controlled TTL. ok is false when no value
// is stored.
type SettingsReader interface {
	HoldTTLMinutes(ctx context.Context) (minutes int, ok bool, err error)
}

// TTLBounds clamp whatever the settings store returns.
type TTLBounds struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Clamp forces d into [Min, Max]. A zero bound is ignored.
func (b TTLBounds) Clamp(d time.Duration) time.Duration {
	if b.Min > 0 && d < b.Min {
		return b.Min
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// SettingsTTL reads the TTL from the settings store on every call and falls
// back to the configured default when the store is unavailable.
type SettingsTTL struct {
	reader SettingsReader
	bounds TTLBounds
	logger zerolog.Logger
}

func NewSettingsTTL(reader SettingsReader, bounds TTLBounds, logger zerolog.Logger) *SettingsTTL {
	if bounds.Default <= 0 {
		bounds.Default = defaultHoldTTL
	}
	return &SettingsTTL{reader: reader, bounds: bounds, logger: logger}
}

func (s *SettingsTTL) HoldTTL(ctx context.Context) time.Duration {
	minutes, ok, err := s.reader.HoldTTLMinutes(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Dur("fallback", s.bounds.Default).Msg("read hold ttl setting")
		return s.bounds.Clamp(s.bounds.Default)
	}
	if !ok || minutes <= 0 {
		return s.bounds.Clamp(s.bounds.Default)
	}
	return s.bounds.Clamp(time.Duration(minutes) * time.Minute)
}
