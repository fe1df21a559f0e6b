package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// AdminEventService is the minimal interface needed for admin event endpoints.
type AdminEventService interface {
	CreateEvent(ctx context.Context, in app.CreateEventInput) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

// AdminZoneService is the minimal interface needed for admin zone endpoints.
// Zones are read back through the event availability endpoint.
type AdminZoneService interface {
	CreateZone(ctx context.Context, in app.CreateZoneInput) (domain.Zone, error)
}

// HoldTTLSettings stores the operator-controlled hold lifetime.
type HoldTTLSettings interface {
	HoldTTLMinutes(ctx context.Context) (int, bool, error)
	SetHoldTTLMinutes(ctx context.Context, minutes int) error
}

type createEventRequest struct {
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
}

type eventResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

type createZoneRequest struct {
	Name  string `json:"name"`
	Quota int    `json:"quota"`
}

type zoneResponse struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	Quota   int    `json:"quota"`
	Sold    int    `json:"sold"`
}

type holdTTLRequest struct {
	Minutes int `json:"minutes"`
}

type holdTTLResponse struct {
	// Minutes is the stored value, zero when unset.
	Minutes int `json:"minutes"`
	// EffectiveMinutes is what new holds get after defaults and clamping.
	EffectiveMinutes float64 `json:"effective_minutes"`
}

func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HandleListEvents lists every event.
func HandleListEvents(svc AdminEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]eventResponse, 0, len(events))
		for _, event := range events {
			resp = append(resp, toEventResponse(event))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleCreateEvent creates an event from {name, starts_at}.
func HandleCreateEvent(svc AdminEventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEventRequest
		if err := decodeStrict(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		var startsAt *time.Time
		if req.StartsAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.StartsAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidStartsAt, "invalid starts_at format")
				return
			}
			startsAt = &parsed
		}

		event, err := svc.CreateEvent(r.Context(), app.CreateEventInput{
			Name:     req.Name,
			StartsAt: startsAt,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEventResponse(event))
	}
}

// HandleCreateZone adds a zone with its quota to an event.
func HandleCreateZone(svc AdminZoneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createZoneRequest
		if err := decodeStrict(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		zone, err := svc.CreateZone(r.Context(), app.CreateZoneInput{
			EventID: chi.URLParam(r, "eventID"),
			Name:    req.Name,
			Quota:   req.Quota,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toZoneResponse(zone))
	}
}

// HandleGetHoldTTL returns the stored and effective hold TTL.
func HandleGetHoldTTL(store HoldTTLSettings, effective app.TTLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHoldTTL(w, r, store, effective, http.StatusOK)
	}
}

// HandlePutHoldTTL stores a new hold TTL in minutes. Holds already placed keep
// their expiry.
func HandlePutHoldTTL(store HoldTTLSettings, effective app.TTLSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req holdTTLRequest
		if err := decodeStrict(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Minutes <= 0 {
			writeError(w, http.StatusBadRequest, codeInvalidTTL, "minutes must be positive")
			return
		}
		if err := store.SetHoldTTLMinutes(r.Context(), req.Minutes); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeHoldTTL(w, r, store, effective, http.StatusOK)
	}
}

func writeHoldTTL(w http.ResponseWriter, r *http.Request, store HoldTTLSettings, effective app.TTLSource, status int) {
	minutes, _, err := store.HoldTTLMinutes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, holdTTLResponse{
		Minutes:          minutes,
		EffectiveMinutes: effective.HoldTTL(r.Context()).Minutes(),
	})
}

func toEventResponse(event domain.Event) eventResponse {
	return eventResponse{
		ID:       event.ID,
		Name:     event.Name,
		StartsAt: event.StartsAt,
	}
}

func toZoneResponse(zone domain.Zone) zoneResponse {
	return zoneResponse{
		ID:      zone.ID,
		EventID: zone.EventID,
		Name:    zone.Name,
		Quota:   zone.Quota,
		Sold:    zone.Sold,
	}
}
