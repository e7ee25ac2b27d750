package l2cap

import "github.com/pkg/errors"

// Sentinel errors returned by the core. Callers should compare with
// errors.Is after unwrapping; failures that match one of these kinds wrap
// it with call-site context via errors.Wrap/Wrapf. Invalid option values
// and out-of-range channel parameters return plain errors instead.
var (
	// ErrNoResources is returned when the LCB or CCB pool is exhausted.
	ErrNoResources = errors.New("l2cap: no resources")
	// ErrNotKnown is returned for a callback about a handle or peer the
	// core has no record of.
	ErrNotKnown = errors.New("l2cap: not known")
	// ErrInvalidState is returned when an operation is not valid for the
	// LinkControlBlock's current state.
	ErrInvalidState = errors.New("l2cap: invalid state")
	// ErrNoLink is returned when an operation requires an existing LCB
	// that isn't present.
	ErrNoLink = errors.New("l2cap: no link")
	// ErrNoChannel is returned when an operation names a channel the core
	// has no record of.
	ErrNoChannel = errors.New("l2cap: no channel")
)
