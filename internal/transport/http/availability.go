package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// AvailabilityReader is the read side used by the availability endpoints.
type AvailabilityReader interface {
	ForZone(ctx context.Context, zoneID string) (domain.Availability, error)
	ForEvent(ctx context.Context, eventID string) ([]domain.Availability, error)
}

type eventAvailabilityResponse struct {
	EventID string                `json:"event_id"`
	Zones   []domain.Availability `json:"zones"`
}

func HandleZoneAvailability(svc AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.ForZone(r.Context(), chi.URLParam(r, "zoneID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func HandleEventAvailability(svc AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		zones, err := svc.ForEvent(r.Context(), eventID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if zones == nil {
			zones = []domain.Availability{}
		}
		writeJSON(w, http.StatusOK, eventAvailabilityResponse{EventID: eventID, Zones: zones})
	}
}
