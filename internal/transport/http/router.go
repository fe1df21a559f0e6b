package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
)

// Dependencies are the services the router exposes. Nil optional fields leave
// their routes unregistered.
type Dependencies struct {
	Logger       zerolog.Logger
	CORSOrigins  []string
	DB           Pinger
	Holds        HoldPlacer
	Reconcile    HoldReconciler
	Availability AvailabilityReader
	Sweeps       SweepTrigger
	Events       AdminEventService
	Zones        AdminZoneService
	Settings     HoldTTLSettings
	EffectiveTTL app.TTLSource
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(deps.CORSOrigins))

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler(deps.DB))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/carts/{cartID}/holds", func(r chi.Router) {
		if deps.Holds != nil {
			r.Post("/", HandlePlaceHold(deps.Holds))
			r.Get("/active", HandleActiveHold(deps.Holds))
		}
		if deps.Reconcile != nil {
			r.Post("/confirm", HandleConfirmHold(deps.Reconcile))
			r.Post("/release", HandleReleaseHold(deps.Reconcile))
		}
	})

	if deps.Availability != nil {
		r.Get("/zones/{zoneID}/availability", HandleZoneAvailability(deps.Availability))
		r.Get("/events/{eventID}/availability", HandleEventAvailability(deps.Availability))
	}

	r.Route("/admin", func(r chi.Router) {
		if deps.Sweeps != nil {
			r.Post("/sweeps", HandleSweep(deps.Sweeps))
		}
		if deps.Events != nil {
			r.Get("/events", HandleListEvents(deps.Events))
			r.Post("/events", HandleCreateEvent(deps.Events))
		}
		if deps.Zones != nil {
			r.Post("/events/{eventID}/zones", HandleCreateZone(deps.Zones))
		}
		if deps.Settings != nil && deps.EffectiveTTL != nil {
			r.Get("/settings/hold-ttl", HandleGetHoldTTL(deps.Settings, deps.EffectiveTTL))
			r.Put("/settings/hold-ttl", HandlePutHoldTTL(deps.Settings, deps.EffectiveTTL))
		}
	})

	return r
}
