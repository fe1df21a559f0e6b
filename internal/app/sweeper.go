package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// ErrSweepBusy means another sweep holds the sweep lock.
var ErrSweepBusy = errors.New("sweep already running")

type SweepRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ExpireLapsedPending(ctx context.Context, now time.Time) ([]domain.Hold, error)
	ListZonesWithWaiting(ctx context.Context) ([]string, error)
	GetZoneForUpdate(ctx context.Context, zoneID string) (domain.Zone, error)
	SumLivePending(ctx context.Context, zoneID string, now time.Time) (int, error)
	HeadOfQueue(ctx context.Context, zoneID string) (*domain.Hold, error)
	PromoteHold(ctx context.Context, holdID string, expiresAt, now time.Time) error
}

// Sweeper expires lapsed pending holds and promotes queued demand into freed
// capacity. It holds no timer of its own; internal/sweeper drives it.
type Sweeper struct {
	repo  SweepRepository
	clock clock.Clock
	hooks
}

func NewSweeper(repo SweepRepository, clk clock.Clock, opts ...Option) *Sweeper {
	return &Sweeper{
		repo:  repo,
		clock: clk,
		hooks: newHooks(opts),
	}
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Expired     int
	Promoted    int
	FailedZones int
}

// Changed is the number of hold rows the sweep transitioned.
func (r SweepResult) Changed() int {
	return r.Expired + r.Promoted
}

// Run sweeps at the current clock time.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	return s.Sweep(ctx, s.clock.Now())
}

// Sweep expires every pending hold with expires_at <= now in one statement,
// then visits each zone with a non-empty queue and promotes at most its head.
// The head is promoted only if its whole quantity fits; nothing behind it is
// considered, so the queue stays strictly FIFO. A zone whose promotion fails
// is logged and skipped. With a sweep lock configured, a sweep that finds the
// lock taken returns ErrSweepBusy without touching the ledger.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	if s.sweepLock != nil {
		release, ok, err := s.sweepLock.TryLock(ctx)
		if err != nil {
			span.RecordError(err)
			return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return SweepResult{}, ErrSweepBusy
		}
		defer release()
	}

	start := time.Now()
	var res SweepResult

	expired, err := s.repo.ExpireLapsedPending(ctx, now)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("expire lapsed holds: %w", err)
	}
	res.Expired = len(expired)
	s.afterCommit(ctx, holdEvents(domain.HoldEventExpired, expired, now))

	zoneIDs, err := s.repo.ListZonesWithWaiting(ctx)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("list queued zones: %w", err)
	}

	ttl := s.ttl.HoldTTL(ctx)
	for _, zoneID := range zoneIDs {
		if ctx.Err() != nil {
			break
		}
		promoted, err := s.promoteHead(ctx, zoneID, now, ttl)
		if err != nil {
			res.FailedZones++
			s.logger.Error().Err(err).Str("zone_id", zoneID).Msg("promote queued hold")
			continue
		}
		if promoted != nil {
			res.Promoted++
			s.afterCommit(ctx, holdEvents(domain.HoldEventPromoted, []domain.Hold{*promoted}, now))
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.expired", res.Expired),
		attribute.Int("sweep.promoted", res.Promoted),
		attribute.Int("sweep.failed_zones", res.FailedZones),
	)
	s.observer.SweepFinished(res.Expired, res.Promoted, res.FailedZones, time.Since(start))
	s.logger.Info().
		Int("expired", res.Expired).
		Int("promoted", res.Promoted).
		Int("failed_zones", res.FailedZones).
		Int("queued_zones", len(zoneIDs)).
		Msg("sweep finished")

	return res, ctx.Err()
}

func (s *Sweeper) promoteHead(ctx context.Context, zoneID string, now time.Time, ttl time.Duration) (*domain.Hold, error) {
	var promoted *domain.Hold
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		zone, err := s.repo.GetZoneForUpdate(txCtx, zoneID)
		if err != nil {
			return err
		}
		head, err := s.repo.HeadOfQueue(txCtx, zoneID)
		if err != nil || head == nil {
			return err
		}
		pending, err := s.repo.SumLivePending(txCtx, zoneID, now)
		if err != nil {
			return err
		}
		if zone.Available(pending) < head.Quantity {
			return nil
		}

		if err := head.Transition(domain.HoldStatusPending); err != nil {
			return err
		}
		expiresAt := now.Add(ttl)
		if err := s.repo.PromoteHold(txCtx, head.ID, expiresAt, now); err != nil {
			return err
		}
		head.ExpiresAt = &expiresAt
		head.PromotedAt = &now
		head.QueuePosition = nil
		promoted = head
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}
