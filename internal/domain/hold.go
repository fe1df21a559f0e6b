package domain

import (
	"fmt"
	"time"
)

type HoldStatus string

const (
	HoldStatusPending   HoldStatus = "pending"
	HoldStatusWaiting   HoldStatus = "waiting"
	HoldStatusConfirmed HoldStatus = "confirmed"
	HoldStatusExpired   HoldStatus = "expired"
)

// ParseHoldStatus maps a stored status back onto the closed set.
func ParseHoldStatus(s string) (HoldStatus, error) {
	switch st := HoldStatus(s); st {
	case HoldStatusPending, HoldStatusWaiting, HoldStatusConfirmed, HoldStatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("unknown hold status %q", s)
	}
}

// Active reports whether the hold still participates in the zone queue or
// capacity accounting.
func (s HoldStatus) Active() bool {
	return s == HoldStatusPending || s == HoldStatusWaiting
}

// Terminal reports whether no further transitions are possible.
func (s HoldStatus) Terminal() bool {
	return s == HoldStatusConfirmed || s == HoldStatusExpired
}

// CanTransitionTo encodes the hold state machine:
//
//	pending -> confirmed | expired
//	waiting -> pending | expired
//
// confirmed and expired are terminal.
func (s HoldStatus) CanTransitionTo(next HoldStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case HoldStatusPending:
		return next == HoldStatusConfirmed || next == HoldStatusExpired
	case HoldStatusWaiting:
		return next == HoldStatusPending || next == HoldStatusExpired
	default:
		return false
	}
}

// Hold is a provisional claim on zone capacity tied to one cart line.
type Hold struct {
	ID         string
	BatchID    string
	UserID     string
	CartID     string
	CartLineID string
	EventID    string
	ZoneID     string
	Quantity   int
	Status     HoldStatus
	// ExpiresAt is set only while the hold is pending.
	ExpiresAt *time.Time
	// QueuePosition is set only while the hold is waiting.
	QueuePosition *int
	CreatedAt     time.Time
	PromotedAt    *time.Time
}

// LiveAt reports whether a pending hold still counts against capacity at now.
// Expiry is decided by the timestamp, not by the sweeper having run.
func (h Hold) LiveAt(now time.Time) bool {
	return h.Status == HoldStatusPending && h.ExpiresAt != nil && h.ExpiresAt.After(now)
}

// Transition moves the hold to next or reports ErrIllegalTransition.
func (h *Hold) Transition(next HoldStatus) error {
	if !h.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, h.Status, next)
	}
	h.Status = next
	return nil
}

// HoldBatch groups the holds written by one placement call.
type HoldBatch struct {
	ID        string
	UserID    string
	CartID    string
	Holds     []Hold
	CreatedAt time.Time
}

// Pending returns true when every hold in the batch got capacity, so the
// buyer can go straight to checkout.
func (b HoldBatch) Pending() bool {
	for _, h := range b.Holds {
		if h.Status != HoldStatusPending {
			return false
		}
	}
	return len(b.Holds) > 0
}
