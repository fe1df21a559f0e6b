package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// CartReader loads the lines of a cart owned by userID. A cart that does not
// exist or belongs to someone else is ErrCartNotFound.
type CartReader interface {
	ListCartLines(ctx context.Context, userID, cartID string) ([]domain.CartLine, error)
}

type HoldRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ExpireActiveHoldsForLines(ctx context.Context, userID string, cartLineIDs []string, now time.Time) ([]domain.Hold, error)
	GetZoneForUpdate(ctx context.Context, zoneID string) (domain.Zone, error)
	SumLivePending(ctx context.Context, zoneID string, now time.Time) (int, error)
	NextQueuePosition(ctx context.Context, zoneID string) (int, error)
	CreateHold(ctx context.Context, hold domain.Hold) error
	HasLivePending(ctx context.Context, userID, cartID string, now time.Time) (bool, error)
}

// HoldService turns cart lines into holds.
type HoldService struct {
	repo  HoldRepository
	carts CartReader
	clock clock.Clock
	hooks
}

func NewHoldService(repo HoldRepository, carts CartReader, clk clock.Clock, opts ...Option) *HoldService {
	return &HoldService{
		repo:  repo,
		carts: carts,
		clock: clk,
		hooks: newHooks(opts),
	}
}

type PlaceHoldInput struct {
	UserID string
	CartID string
}

// PlaceHold creates one hold per cart line in a single transaction. Holds get
// capacity (pending) when the zone has room for the whole line and join the
// zone's queue (waiting) otherwise. Calling it again for the same cart expires
// the previous active holds of those lines first, so retries never double
// count.
func (s *HoldService) PlaceHold(ctx context.Context, in PlaceHoldInput) (domain.HoldBatch, error) {
	ctx, span := tracer.Start(ctx, "HoldService.PlaceHold")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", in.CartID))

	if in.UserID == "" {
		return domain.HoldBatch{}, domain.ErrUserRequired
	}
	if in.CartID == "" {
		return domain.HoldBatch{}, domain.ErrInvalidID
	}

	lines, err := s.carts.ListCartLines(ctx, in.UserID, in.CartID)
	if err != nil {
		return domain.HoldBatch{}, err
	}
	if err := validateLines(lines); err != nil {
		return domain.HoldBatch{}, err
	}

	ttl := s.ttl.HoldTTL(ctx)
	now := s.clock.Now()
	batch := domain.HoldBatch{
		ID:        newID(),
		UserID:    in.UserID,
		CartID:    in.CartID,
		CreatedAt: now,
	}
	var superseded []domain.Hold

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Zone rows first, ascending, then hold rows. Confirm and the sweeper
		// lock in the same order.
		groups := groupByZone(lines)
		zones := make([]domain.Zone, len(groups))
		for i, group := range groups {
			zone, err := s.repo.GetZoneForUpdate(txCtx, group.zoneID)
			if err != nil {
				return err
			}
			zones[i] = zone
		}

		prior, err := s.repo.ExpireActiveHoldsForLines(txCtx, in.UserID, lineIDs(lines), now)
		if err != nil {
			return err
		}
		superseded = prior

		placed := make([]domain.Hold, len(lines))
		for i, group := range groups {
			zone := zones[i]
			pending, err := s.repo.SumLivePending(txCtx, zone.ID, now)
			if err != nil {
				return err
			}
			available := zone.Available(pending)

			for _, idx := range group.lines {
				line := lines[idx]
				hold := domain.Hold{
					ID:         newID(),
					BatchID:    batch.ID,
					UserID:     in.UserID,
					CartID:     in.CartID,
					CartLineID: line.ID,
					EventID:    zone.EventID,
					ZoneID:     zone.ID,
					Quantity:   line.Quantity,
					CreatedAt:  now,
				}
				if available >= line.Quantity {
					expiresAt := now.Add(ttl)
					hold.Status = domain.HoldStatusPending
					hold.ExpiresAt = &expiresAt
					available -= line.Quantity
				} else {
					pos, err := s.repo.NextQueuePosition(txCtx, zone.ID)
					if err != nil {
						return err
					}
					hold.Status = domain.HoldStatusWaiting
					hold.QueuePosition = &pos
				}
				if err := s.repo.CreateHold(txCtx, hold); err != nil {
					return err
				}
				placed[idx] = hold
			}
		}
		batch.Holds = placed
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransientLock) {
			s.observer.LockFailed("place")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.HoldBatch{}, err
	}

	events := holdEvents(domain.HoldEventReleased, superseded, now)
	events = append(events, holdEvents(domain.HoldEventPlaced, batch.Holds, now)...)
	s.afterCommit(ctx, events)

	for _, h := range batch.Holds {
		s.observer.HoldsPlaced(h.Status, 1)
	}
	s.logger.Debug().
		Str("batch_id", batch.ID).
		Str("cart_id", in.CartID).
		Int("holds", len(batch.Holds)).
		Bool("all_pending", batch.Pending()).
		Int("superseded", len(superseded)).
		Msg("holds placed")

	return batch, nil
}

// HasActiveHold reports whether the cart has at least one pending hold that
// has not expired. Checkout calls it before authorizing a payment.
func (s *HoldService) HasActiveHold(ctx context.Context, userID, cartID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "HoldService.HasActiveHold")
	defer span.End()

	if userID == "" {
		return false, domain.ErrUserRequired
	}
	if cartID == "" {
		return false, domain.ErrInvalidID
	}
	return s.repo.HasLivePending(ctx, userID, cartID, s.clock.Now())
}

func validateLines(lines []domain.CartLine) error {
	if len(lines) == 0 {
		return domain.ErrEmptyCart
	}
	for _, l := range lines {
		if l.ID == "" || l.ZoneID == "" {
			return domain.ErrInvalidID
		}
		if l.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

func lineIDs(lines []domain.CartLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	return ids
}

type zoneGroup struct {
	zoneID string
	lines  []int
}

// groupByZone returns the cart's lines grouped by zone with zones in
// ascending id order. Every transaction that locks more than one zone uses
// this order, so two carts sharing zones cannot deadlock each other.
func groupByZone(lines []domain.CartLine) []zoneGroup {
	idx := make(map[string]int)
	var groups []zoneGroup
	for i, l := range lines {
		g, ok := idx[l.ZoneID]
		if !ok {
			g = len(groups)
			idx[l.ZoneID] = g
			groups = append(groups, zoneGroup{zoneID: l.ZoneID})
		}
		groups[g].lines = append(groups[g].lines, i)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].zoneID < groups[j].zoneID })
	return groups
}
