package domain

import "time"

type HoldEventType string

const (
	HoldEventPlaced    HoldEventType = "hold.placed"
	HoldEventConfirmed HoldEventType = "hold.confirmed"
	HoldEventReleased  HoldEventType = "hold.released"
	HoldEventExpired   HoldEventType = "hold.expired"
	HoldEventPromoted  HoldEventType = "hold.promoted"
)

// HoldEvent is emitted after a ledger change commits.
type HoldEvent struct {
	Type       HoldEventType `json:"type"`
	HoldID     string        `json:"hold_id"`
	BatchID    string        `json:"batch_id,omitempty"`
	UserID     string        `json:"user_id"`
	CartID     string        `json:"cart_id"`
	EventID    string        `json:"event_id"`
	ZoneID     string        `json:"zone_id"`
	Quantity   int           `json:"quantity"`
	Status     HoldStatus    `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewHoldEvent snapshots h as an event of type t.
func NewHoldEvent(t HoldEventType, h Hold, at time.Time) HoldEvent {
	return HoldEvent{
		Type:       t,
		HoldID:     h.ID,
		BatchID:    h.BatchID,
		UserID:     h.UserID,
		CartID:     h.CartID,
		EventID:    h.EventID,
		ZoneID:     h.ZoneID,
		Quantity:   h.Quantity,
		Status:     h.Status,
		OccurredAt: at,
	}
}
