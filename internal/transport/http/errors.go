package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
	"github.com/cimillas/ultimate-ticket/holds/internal/sweeper"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidStartsAt    = "invalid_starts_at"
	codeInvalidID          = "invalid_id"
	codeUserRequired       = "user_required"
	codeEmptyCart          = "empty_cart"
	codeInvalidQuantity    = "invalid_quantity"
	codeEventNameRequired  = "event_name_required"
	codeZoneNameRequired   = "zone_name_required"
	codeInvalidQuota       = "invalid_quota"
	codeInvalidTTL         = "invalid_ttl"
	codeValidationFailed   = "validation_failed"
	codeZoneNotFound       = "zone_not_found"
	codeEventNotFound      = "event_not_found"
	codeCartNotFound       = "cart_not_found"
	codeZoneAlreadyExists  = "zone_already_exists"
	codeZoneBusy           = "zone_busy"
	codeQuotaExceeded      = "quota_exceeded"
	codeHoldConflict       = "hold_conflict"
	codeSweepInProgress    = "sweep_in_progress"
	codeUnavailable        = "unavailable"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

// retryAfterSeconds is sent with 503 responses for lock contention.
const retryAfterSeconds = "1"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors onto HTTP responses. Specific
// errors are checked before their category.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTransientLock):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, codeZoneBusy, "could not reserve seats, try again")
	case errors.Is(err, sweeper.ErrBusy):
		writeError(w, http.StatusConflict, codeSweepInProgress, err.Error())

	case errors.Is(err, domain.ErrZoneNotFound):
		writeError(w, http.StatusNotFound, codeZoneNotFound, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, codeEventNotFound, err.Error())
	case errors.Is(err, domain.ErrCartNotFound):
		writeError(w, http.StatusNotFound, codeCartNotFound, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())

	case errors.Is(err, domain.ErrUserRequired):
		writeError(w, http.StatusUnauthorized, codeUserRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, codeEmptyCart, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrEventNameRequired):
		writeError(w, http.StatusBadRequest, codeEventNameRequired, err.Error())
	case errors.Is(err, domain.ErrZoneNameRequired):
		writeError(w, http.StatusBadRequest, codeZoneNameRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidQuota):
		writeError(w, http.StatusBadRequest, codeInvalidQuota, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())

	case errors.Is(err, domain.ErrZoneAlreadyExists):
		writeError(w, http.StatusConflict, codeZoneAlreadyExists, err.Error())
	case errors.Is(err, domain.ErrOversold):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("zone counters disagree with hold ledger")
		writeError(w, http.StatusConflict, codeQuotaExceeded, "zone quota exceeded")
	case errors.Is(err, domain.ErrIllegalTransition):
		writeError(w, http.StatusConflict, codeHoldConflict, "hold changed concurrently, try again")

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
