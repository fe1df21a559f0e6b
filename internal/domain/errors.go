package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap exactly one of these so callers can
// branch with errors.Is on the category alone.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrTransientLock = errors.New("could not acquire zone lock")
)

var (
	ErrZoneNotFound  = fmt.Errorf("zone %w", ErrNotFound)
	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)
	ErrCartNotFound  = fmt.Errorf("cart %w", ErrNotFound)

	ErrInvalidID         = fmt.Errorf("%w: invalid id", ErrValidation)
	ErrUserRequired      = fmt.Errorf("%w: user id required", ErrValidation)
	ErrEmptyCart         = fmt.Errorf("%w: cart has no lines", ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrEventNameRequired = fmt.Errorf("%w: event name required", ErrValidation)
	ErrZoneNameRequired  = fmt.Errorf("%w: zone name required", ErrValidation)
	ErrInvalidQuota      = fmt.Errorf("%w: invalid quota", ErrValidation)

	ErrZoneAlreadyExists = errors.New("zone already exists")
	// ErrOversold is returned when a confirm would push sold past quota. It
	// means the ledger and the zone counters disagree and must be investigated.
	ErrOversold = errors.New("zone quota exceeded")
	// ErrIllegalTransition guards the ledger against status writes the hold
	// state machine does not allow.
	ErrIllegalTransition = errors.New("illegal hold status transition")
)
