package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

type ReconcileRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListLivePending(ctx context.Context, userID, cartID string, now time.Time, forUpdate bool) ([]domain.Hold, error)
	GetZoneForUpdate(ctx context.Context, zoneID string) (domain.Zone, error)
	IncrementSold(ctx context.Context, zoneID string, qty int) error
	TransitionHolds(ctx context.Context, holdIDs []string, from, to domain.HoldStatus, now time.Time) error
	ExpireCartHolds(ctx context.Context, userID, cartID string, statuses []domain.HoldStatus, now time.Time) ([]domain.Hold, error)
}

// ReconcileService applies the payment verdict to a cart's holds.
type ReconcileService struct {
	repo  ReconcileRepository
	clock clock.Clock
	hooks
}

func NewReconcileService(repo ReconcileRepository, clk clock.Clock, opts ...Option) *ReconcileService {
	return &ReconcileService{
		repo:  repo,
		clock: clk,
		hooks: newHooks(opts),
	}
}

// ReconcileResult describes what a confirm or release changed. Changed is
// false when there was nothing to do, which is how repeated calls stay
// idempotent.
type ReconcileResult struct {
	Holds    []domain.Hold
	Quantity int
	Changed  bool
}

// ConfirmHold commits every live pending hold of the cart: sold grows by the
// held quantity per zone and the holds become confirmed, all in one
// transaction. Lock timeouts are retried because a paid order must not lose
// its seats to a transient failure.
func (s *ReconcileService) ConfirmHold(ctx context.Context, userID, cartID string) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "ReconcileService.ConfirmHold")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cartID))

	if userID == "" {
		return ReconcileResult{}, domain.ErrUserRequired
	}
	if cartID == "" {
		return ReconcileResult{}, domain.ErrInvalidID
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (ReconcileResult, error) {
		attempt++
		res, err := s.confirmOnce(ctx, userID, cartID)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, domain.ErrTransientLock) {
			s.observer.LockFailed("confirm")
			s.logger.Warn().Err(err).Int("attempt", attempt).Str("cart_id", cartID).Msg("confirm hit lock timeout, retrying")
			return ReconcileResult{}, err
		}
		return ReconcileResult{}, backoff.Permanent(err)
	}, backoff.WithBackOff(s.confirmBackoff()), backoff.WithMaxTries(s.confirmAttempts))
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("cart_id", cartID).Int("attempts", attempt).Msg("confirm hold failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReconcileResult{}, err
	}
	if !res.Changed {
		return res, nil
	}

	now := s.clock.Now()
	s.afterCommit(ctx, holdEvents(domain.HoldEventConfirmed, res.Holds, now))
	s.observer.HoldsConfirmed(len(res.Holds))
	return res, nil
}

func (s *ReconcileService) confirmOnce(ctx context.Context, userID, cartID string) (ReconcileResult, error) {
	now := s.clock.Now()
	var res ReconcileResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		candidates, err := s.repo.ListLivePending(txCtx, userID, cartID, now, false)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		// Zones first, then holds: the same order placement and the sweeper
		// take their locks in.
		locked := make(map[string]bool)
		for _, zoneID := range zoneIDsOf(candidates) {
			if _, err := s.repo.GetZoneForUpdate(txCtx, zoneID); err != nil {
				return err
			}
			locked[zoneID] = true
		}

		holds, err := s.repo.ListLivePending(txCtx, userID, cartID, now, true)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return nil
		}

		perZone := make(map[string]int)
		ids := make([]string, 0, len(holds))
		for i := range holds {
			perZone[holds[i].ZoneID] += holds[i].Quantity
			if err := holds[i].Transition(domain.HoldStatusConfirmed); err != nil {
				return err
			}
			ids = append(ids, holds[i].ID)
			res.Quantity += holds[i].Quantity
		}
		for _, zoneID := range zoneIDsOf(holds) {
			if !locked[zoneID] {
				if _, err := s.repo.GetZoneForUpdate(txCtx, zoneID); err != nil {
					return err
				}
			}
			if err := s.repo.IncrementSold(txCtx, zoneID, perZone[zoneID]); err != nil {
				return err
			}
		}
		if err := s.repo.TransitionHolds(txCtx, ids, domain.HoldStatusPending, domain.HoldStatusConfirmed, now); err != nil {
			return err
		}

		res.Holds = holds
		res.Changed = true
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	return res, nil
}

// ReleaseHold drops the cart's provisional claims after a declined or
// cancelled checkout. Pending holds and queued waiting holds both expire;
// sold is never touched.
func (s *ReconcileService) ReleaseHold(ctx context.Context, userID, cartID string) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "ReconcileService.ReleaseHold")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cartID))

	if userID == "" {
		return ReconcileResult{}, domain.ErrUserRequired
	}
	if cartID == "" {
		return ReconcileResult{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var released []domain.Hold
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		released, err = s.repo.ExpireCartHolds(txCtx, userID, cartID,
			[]domain.HoldStatus{domain.HoldStatusPending, domain.HoldStatusWaiting}, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransientLock) {
			s.observer.LockFailed("release")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReconcileResult{}, err
	}
	if len(released) == 0 {
		return ReconcileResult{}, nil
	}

	res := ReconcileResult{Holds: released, Changed: true}
	for _, h := range released {
		res.Quantity += h.Quantity
	}
	s.afterCommit(ctx, holdEvents(domain.HoldEventReleased, released, now))
	s.observer.HoldsReleased(len(released))
	return res, nil
}

func zoneIDsOf(holds []domain.Hold) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, h := range holds {
		if _, ok := seen[h.ZoneID]; ok {
			continue
		}
		seen[h.ZoneID] = struct{}{}
		ids = append(ids, h.ZoneID)
	}
	sort.Strings(ids)
	return ids
}
