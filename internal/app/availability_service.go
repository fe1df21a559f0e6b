package app

import (
	"context"
	"time"

	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// AvailabilityRepository computes the projection without taking locks.
type AvailabilityRepository interface {
	ZoneAvailability(ctx context.Context, zoneID string, now time.Time) (domain.Availability, error)
	EventAvailability(ctx context.Context, eventID string, now time.Time) ([]domain.Availability, error)
}

// AvailabilityService serves browse-time seat counts. Results may lag
// in-flight placements; only the locked sections need exact numbers.
type AvailabilityService struct {
	repo  AvailabilityRepository
	clock clock.Clock
	hooks
}

func NewAvailabilityService(repo AvailabilityRepository, clk clock.Clock, opts ...Option) *AvailabilityService {
	return &AvailabilityService{
		repo:  repo,
		clock: clk,
		hooks: newHooks(opts),
	}
}

func (s *AvailabilityService) ForZone(ctx context.Context, zoneID string) (domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.ForZone")
	defer span.End()

	if zoneID == "" {
		return domain.Availability{}, domain.ErrInvalidID
	}
	if s.cache != nil {
		a, ok, err := s.cache.GetZone(ctx, zoneID)
		if err != nil {
			s.logger.Warn().Err(err).Str("zone_id", zoneID).Msg("read availability cache")
		} else if ok {
			return a, nil
		}
	}

	a, err := s.repo.ZoneAvailability(ctx, zoneID, s.clock.Now())
	if err != nil {
		return domain.Availability{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetZone(ctx, a); err != nil {
			s.logger.Warn().Err(err).Str("zone_id", zoneID).Msg("write availability cache")
		}
	}
	return a, nil
}

func (s *AvailabilityService) ForEvent(ctx context.Context, eventID string) ([]domain.Availability, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.ForEvent")
	defer span.End()

	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	if s.cache != nil {
		zones, ok, err := s.cache.GetEvent(ctx, eventID)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", eventID).Msg("read availability cache")
		} else if ok {
			return zones, nil
		}
	}

	zones, err := s.repo.EventAvailability(ctx, eventID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetEvent(ctx, eventID, zones); err != nil {
			s.logger.Warn().Err(err).Str("event_id", eventID).Msg("write availability cache")
		}
	}
	return zones, nil
}
