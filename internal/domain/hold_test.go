package domain

import (
	"errors"
	"testing"
	"time"
)

func TestHoldStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	all := []HoldStatus{HoldStatusPending, HoldStatusWaiting, HoldStatusConfirmed, HoldStatusExpired}
	allowed := map[HoldStatus]map[HoldStatus]bool{
		HoldStatusPending: {HoldStatusConfirmed: true, HoldStatusExpired: true},
		HoldStatusWaiting: {HoldStatusPending: true, HoldStatusExpired: true},
	}

	for _, from := range all {
		if from.Terminal() != (len(allowed[from]) == 0) {
			t.Fatalf("%s: unexpected Terminal() = %v", from, from.Terminal())
		}
		for _, to := range all {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestHoldBatch_Pending(t *testing.T) {
	t.Parallel()

	pending := Hold{Status: HoldStatusPending}
	waiting := Hold{Status: HoldStatusWaiting}

	tests := []struct {
		name  string
		holds []Hold
		want  bool
	}{
		{name: "all pending", holds: []Hold{pending, pending}, want: true},
		{name: "one queued", holds: []Hold{pending, waiting}, want: false},
		{name: "empty", holds: nil, want: false},
	}
	for _, tt := range tests {
		if got := (HoldBatch{Holds: tt.holds}).Pending(); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestHold_Transition(t *testing.T) {
	t.Parallel()

	h := Hold{Status: HoldStatusConfirmed}
	err := h.Transition(HoldStatusExpired)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if h.Status != HoldStatusConfirmed {
		t.Fatalf("expected status unchanged, got %s", h.Status)
	}

	h = Hold{Status: HoldStatusWaiting}
	if err := h.Transition(HoldStatusPending); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h.Status != HoldStatusPending {
		t.Fatalf("expected pending, got %s", h.Status)
	}
}

func TestHold_LiveAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	cases := []struct {
		name string
		hold Hold
		want bool
	}{
		{"pending in future", Hold{Status: HoldStatusPending, ExpiresAt: &future}, true},
		{"pending at now", Hold{Status: HoldStatusPending, ExpiresAt: &now}, false},
		{"pending in past", Hold{Status: HoldStatusPending, ExpiresAt: &past}, false},
		{"waiting", Hold{Status: HoldStatusWaiting}, false},
		{"confirmed", Hold{Status: HoldStatusConfirmed, ExpiresAt: &future}, false},
	}
	for _, tc := range cases {
		if got := tc.hold.LiveAt(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestParseHoldStatus(t *testing.T) {
	t.Parallel()

	if st, err := ParseHoldStatus("waiting"); err != nil || st != HoldStatusWaiting {
		t.Fatalf("expected waiting, got %q (%v)", st, err)
	}
	if _, err := ParseHoldStatus("active"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestErrorCategories(t *testing.T) {
	t.Parallel()

	if !errors.Is(ErrZoneNotFound, ErrNotFound) {
		t.Fatalf("expected zone not found to be a not found error")
	}
	if !errors.Is(ErrEmptyCart, ErrValidation) {
		t.Fatalf("expected empty cart to be a validation error")
	}
	if errors.Is(ErrInvalidQuantity, ErrNotFound) {
		t.Fatalf("expected categories to be disjoint")
	}
	if ErrZoneNotFound.Error() != "zone not found" {
		t.Fatalf("unexpected message %q", ErrZoneNotFound.Error())
	}
}
