package ensemble

import "errors"

var (
	// ErrInvalidWeight is returned when a weight outside [0, 1] is assigned.
	ErrInvalidWeight = errors.New("ensemble: weight must be within [0, 1]")
	// ErrDegenerateRescale is returned when reassigning an instrument that holds the whole vector.
	ErrDegenerateRescale = errors.New("ensemble: cannot rescale from a weight of 1.0")
	// ErrDuplicateAnalyst is returned when an analyst name is already a member.
	ErrDuplicateAnalyst = errors.New("ensemble: analyst already present")
	// ErrAnalystNotFound is returned when an analyst name is not a member.
	ErrAnalystNotFound = errors.New("ensemble: analyst not found")
	// ErrZeroConfidence is returned by Normalize when the cumulative confidence is zero.
	// It is a warning: the set is left as it was.
	ErrZeroConfidence = errors.New("ensemble: cumulative confidence is zero")
	// ErrMissingPrice is returned when a held instrument has no usable quote.
	ErrMissingPrice = errors.New("ensemble: missing price")
)
