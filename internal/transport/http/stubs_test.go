package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

type stubPlacer struct {
	batch    domain.HoldBatch
	active   bool
	err      error
	gotInput app.PlaceHoldInput
	gotUser  string
	gotCart  string
}

func (s *stubPlacer) PlaceHold(_ context.Context, in app.PlaceHoldInput) (domain.HoldBatch, error) {
	s.gotInput = in
	return s.batch, s.err
}

func (s *stubPlacer) HasActiveHold(_ context.Context, userID, cartID string) (bool, error) {
	s.gotUser, s.gotCart = userID, cartID
	return s.active, s.err
}

type stubReconciler struct {
	result    app.ReconcileResult
	err       error
	confirmed int
	released  int
	gotUser   string
	gotCart   string
}

func (s *stubReconciler) ConfirmHold(_ context.Context, userID, cartID string) (app.ReconcileResult, error) {
	s.confirmed++
	s.gotUser, s.gotCart = userID, cartID
	return s.result, s.err
}

func (s *stubReconciler) ReleaseHold(_ context.Context, userID, cartID string) (app.ReconcileResult, error) {
	s.released++
	s.gotUser, s.gotCart = userID, cartID
	return s.result, s.err
}

type stubAvailability struct {
	zone  domain.Availability
	zones []domain.Availability
	err   error
	gotID string
}

func (s *stubAvailability) ForZone(_ context.Context, zoneID string) (domain.Availability, error) {
	s.gotID = zoneID
	return s.zone, s.err
}

func (s *stubAvailability) ForEvent(_ context.Context, eventID string) ([]domain.Availability, error) {
	s.gotID = eventID
	return s.zones, s.err
}

type stubSweeps struct {
	result app.SweepResult
	err    error
}

func (s *stubSweeps) TryRun(context.Context) (app.SweepResult, error) {
	return s.result, s.err
}

type stubCatalog struct {
	events   []domain.Event
	err      error
	gotEvent app.CreateEventInput
	gotZone  app.CreateZoneInput
}

func (s *stubCatalog) CreateEvent(_ context.Context, in app.CreateEventInput) (domain.Event, error) {
	s.gotEvent = in
	if s.err != nil {
		return domain.Event{}, s.err
	}
	startsAt := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	if in.StartsAt != nil {
		startsAt = *in.StartsAt
	}
	return domain.Event{ID: "evt-1", Name: in.Name, StartsAt: startsAt}, nil
}

func (s *stubCatalog) ListEvents(context.Context) ([]domain.Event, error) {
	return s.events, s.err
}

func (s *stubCatalog) CreateZone(_ context.Context, in app.CreateZoneInput) (domain.Zone, error) {
	s.gotZone = in
	if s.err != nil {
		return domain.Zone{}, s.err
	}
	return domain.Zone{ID: "zone-1", EventID: in.EventID, Name: in.Name, Quota: in.Quota}, nil
}

type stubSettings struct {
	minutes int
	set     bool
	err     error
}

func (s *stubSettings) HoldTTLMinutes(context.Context) (int, bool, error) {
	return s.minutes, s.set, s.err
}

func (s *stubSettings) SetHoldTTLMinutes(_ context.Context, minutes int) error {
	if s.err != nil {
		return s.err
	}
	s.minutes, s.set = minutes, true
	return nil
}

// do sends one request through the full router.
func do(t *testing.T, deps Dependencies, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	deps.Logger = zerolog.Nop()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string {
	return map[string]string{userHeader: id}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.Code != code {
		t.Fatalf("expected code %s, got %s", code, resp.Code)
	}
}

