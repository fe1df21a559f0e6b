package app

import (
	"context"
	"strings"
	"time"

	"github.com/cimillas/ultimate-ticket/holds/internal/clock"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// CatalogRepository is the write side of events and zones used by operators
// to seed inventory. The catalog itself lives elsewhere; zones are read back
// through the availability projection.
type CatalogRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateZone(ctx context.Context, zone domain.Zone) error
}

type CatalogService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name     string
	StartsAt *time.Time
}

func (s *CatalogService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	startsAt := s.clock.Now()
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	event := domain.Event{
		ID:       newID(),
		Name:     name,
		StartsAt: startsAt,
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *CatalogService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

type CreateZoneInput struct {
	EventID string
	Name    string
	Quota   int
}

// CreateZone adds a zone with nothing sold yet.
func (s *CatalogService) CreateZone(ctx context.Context, in CreateZoneInput) (domain.Zone, error) {
	if in.EventID == "" {
		return domain.Zone{}, domain.ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Zone{}, domain.ErrZoneNameRequired
	}
	if in.Quota < 0 {
		return domain.Zone{}, domain.ErrInvalidQuota
	}

	zone := domain.Zone{
		ID:      newID(),
		EventID: in.EventID,
		Name:    name,
		Quota:   in.Quota,
	}
	if err := s.repo.CreateZone(ctx, zone); err != nil {
		return domain.Zone{}, err
	}
	return zone, nil
}
