package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

var tracer = otel.Tracer("github.com/cimillas/ultimate-ticket/holds/internal/app")

// EventPublisher receives hold lifecycle events after the ledger change has
// committed. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.HoldEvent) error
}

// AvailabilityCache is a read-through cache for the availability projection.
type AvailabilityCache interface {
	GetZone(ctx context.Context, zoneID string) (domain.Availability, bool, error)
	SetZone(ctx context.Context, a domain.Availability) error
	GetEvent(ctx context.Context, eventID string) ([]domain.Availability, bool, error)
	SetEvent(ctx context.Context, eventID string, zones []domain.Availability) error
	Invalidate(ctx context.Context, zoneIDs, eventIDs []string) error
}

// Observer records operational counters. internal/metrics implements it with
// prometheus collectors.
type Observer interface {
	HoldsPlaced(status domain.HoldStatus, n int)
	HoldsConfirmed(n int)
	HoldsReleased(n int)
	SweepFinished(expired, promoted, failedZones int, d time.Duration)
	LockFailed(op string)
}

// SweepLocker guards sweeps across processes. TryLock does not wait: ok is
// false when another process holds the lock. release must be called once
// when ok is true.
type SweepLocker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, []domain.HoldEvent) error { return nil }

type nopObserver struct{}

func (nopObserver) HoldsPlaced(domain.HoldStatus, int) {}
func (nopObserver) HoldsConfirmed(int) {}
func (nopObserver) HoldsReleased(int) {}
func (nopObserver) SweepFinished(int, int, int, time.Duration) {}
func (nopObserver) LockFailed(string) {}

// hooks carries the side channels every service shares.
type hooks struct {
	logger    zerolog.Logger
	publisher EventPublisher
	cache     AvailabilityCache
	observer  Observer
	ttl       TTLSource
	sweepLock SweepLocker

	confirmAttempts uint
	confirmBackoff  func() backoff.BackOff
}

func defaultHooks() hooks {
	return hooks{
		logger:    zerolog.Nop(),
		publisher: nopPublisher{},
		observer:  nopObserver{},
		ttl:       StaticTTL(defaultHoldTTL),

		confirmAttempts: defaultConfirmAttempts,
		confirmBackoff:  defaultConfirmBackoff,
	}
}

const defaultConfirmAttempts = 5

func defaultConfirmBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// Option configures the services in this package.
type Option func(*hooks)

// WithLogger sets the logger used for best-effort failures and sweep reports.
func WithLogger(l zerolog.Logger) Option {
	return func(h *hooks) { h.logger = l }
}

// WithPublisher sets the hold event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(h *hooks) {
		if p != nil {
			h.publisher = p
		}
	}
}

// WithCache enables the availability cache.
func WithCache(c AvailabilityCache) Option {
	return func(h *hooks) { h.cache = c }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(h *hooks) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithTTLSource sets where new pending holds get their TTL from.
func WithTTLSource(src TTLSource) Option {
	return func(h *hooks) {
		if src != nil {
			h.ttl = src
		}
	}
}

// WithSweepLock makes Sweep skip with ErrSweepBusy while another process
// holds the lock.
func WithSweepLock(l SweepLocker) Option {
	return func(h *hooks) { h.sweepLock = l }
}

// WithHoldTTL overrides the TTL for new pending holds with a fixed duration.
func WithHoldTTL(d time.Duration) Option {
	return func(h *hooks) {
		if d > 0 {
			h.ttl = StaticTTL(d)
		}
	}
}

// WithConfirmRetry sets how many times a confirm that hit a lock timeout is
// attempted and the backoff between attempts.
func WithConfirmRetry(attempts uint, b func() backoff.BackOff) Option {
	return func(h *hooks) {
		if attempts > 0 {
			h.confirmAttempts = attempts
		}
		if b != nil {
			h.confirmBackoff = b
		}
	}
}

func newHooks(opts []Option) hooks {
	h := defaultHooks()
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// afterCommit publishes events and drops cached projections for the touched
// zones. Neither may fail the operation: the ledger is already committed.
func (h hooks) afterCommit(ctx context.Context, events []domain.HoldEvent) {
	if len(events) == 0 {
		return
	}
	if err := h.publisher.Publish(ctx, events); err != nil {
		h.logger.Warn().Err(err).Int("events", len(events)).Msg("publish hold events")
	}
	if h.cache == nil {
		return
	}
	zoneIDs, eventIDs := touched(events)
	if err := h.cache.Invalidate(ctx, zoneIDs, eventIDs); err != nil {
		h.logger.Warn().Err(err).Strs("zones", zoneIDs).Msg("invalidate availability cache")
	}
}

func touched(events []domain.HoldEvent) (zoneIDs, eventIDs []string) {
	seenZone := make(map[string]struct{})
	seenEvent := make(map[string]struct{})
	for _, e := range events {
		if _, ok := seenZone[e.ZoneID]; !ok {
			seenZone[e.ZoneID] = struct{}{}
			zoneIDs = append(zoneIDs, e.ZoneID)
		}
		if _, ok := seenEvent[e.EventID]; !ok {
			seenEvent[e.EventID] = struct{}{}
			eventIDs = append(eventIDs, e.EventID)
		}
	}
	return zoneIDs, eventIDs
}

func holdEvents(t domain.HoldEventType, holds []domain.Hold, at time.Time) []domain.HoldEvent {
	out := make([]domain.HoldEvent, 0, len(holds))
	for _, h := range holds {
		out = append(out, domain.NewHoldEvent(t, h, at))
	}
	return out
}
