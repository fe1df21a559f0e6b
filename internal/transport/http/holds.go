package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

// HoldPlacer is the minimal interface needed for placement endpoints.
type HoldPlacer interface {
	PlaceHold(ctx context.Context, in app.PlaceHoldInput) (domain.HoldBatch, error)
	HasActiveHold(ctx context.Context, userID, cartID string) (bool, error)
}

// HoldReconciler applies a payment verdict to a cart's holds.
type HoldReconciler interface {
	ConfirmHold(ctx context.Context, userID, cartID string) (app.ReconcileResult, error)
	ReleaseHold(ctx context.Context, userID, cartID string) (app.ReconcileResult, error)
}

type holdResponse struct {
	ID            string     `json:"id"`
	CartLineID    string     `json:"cart_line_id"`
	EventID       string     `json:"event_id"`
	ZoneID        string     `json:"zone_id"`
	Quantity      int        `json:"quantity"`
	Status        string     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	PromotedAt    *time.Time `json:"promoted_at,omitempty"`
}

type holdBatchResponse struct {
	BatchID    string         `json:"batch_id"`
	CartID     string         `json:"cart_id"`
	AllPending bool           `json:"all_pending"`
	Holds      []holdResponse `json:"holds"`
	CreatedAt  time.Time      `json:"created_at"`
}

type activeHoldResponse struct {
	CartID string `json:"cart_id"`
	Active bool   `json:"active"`
}

type reconcileResponse struct {
	CartID   string         `json:"cart_id"`
	Changed  bool           `json:"changed"`
	Quantity int            `json:"quantity"`
	Holds    []holdResponse `json:"holds"`
}

func toHoldResponses(holds []domain.Hold) []holdResponse {
	resp := make([]holdResponse, 0, len(holds))
	for _, h := range holds {
		resp = append(resp, holdResponse{
			ID:            h.ID,
			CartLineID:    h.CartLineID,
			EventID:       h.EventID,
			ZoneID:        h.ZoneID,
			Quantity:      h.Quantity,
			Status:        string(h.Status),
			ExpiresAt:     h.ExpiresAt,
			QueuePosition: h.QueuePosition,
			PromotedAt:    h.PromotedAt,
		})
	}
	return resp
}

// HandlePlaceHold places holds for every line of the cart.
func HandlePlaceHold(svc HoldPlacer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID := chi.URLParam(r, "cartID")
		batch, err := svc.PlaceHold(r.Context(), app.PlaceHoldInput{
			UserID: userID(r),
			CartID: cartID,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, holdBatchResponse{
			BatchID:    batch.ID,
			CartID:     batch.CartID,
			AllPending: batch.Pending(),
			Holds:      toHoldResponses(batch.Holds),
			CreatedAt:  batch.CreatedAt,
		})
	}
}

// HandleActiveHold reports whether the cart still has live pending holds.
func HandleActiveHold(svc HoldPlacer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID := chi.URLParam(r, "cartID")
		active, err := svc.HasActiveHold(r.Context(), userID(r), cartID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, activeHoldResponse{CartID: cartID, Active: active})
	}
}

// HandleConfirmHold commits the cart's pending holds after a successful payment.
func HandleConfirmHold(svc HoldReconciler) http.HandlerFunc {
	return handleReconcile(svc.ConfirmHold)
}

// HandleReleaseHold drops the cart's holds after a failed or abandoned payment.
func HandleReleaseHold(svc HoldReconciler) http.HandlerFunc {
	return handleReconcile(svc.ReleaseHold)
}

func handleReconcile(op func(ctx context.Context, userID, cartID string) (app.ReconcileResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID := chi.URLParam(r, "cartID")
		res, err := op(r.Context(), userID(r), cartID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reconcileResponse{
			CartID:   cartID,
			Changed:  res.Changed,
			Quantity: res.Quantity,
			Holds:    toHoldResponses(res.Holds),
		})
	}
}
