package trajectory

import "errors"

var (
	// ErrConstructionInconsistency is returned when a helix rebuilt from its
	// parameters does not reproduce the position and momentum it was built from.
	ErrConstructionInconsistency = errors.New("helix construction inconsistent")

	// ErrInvalidDirection is returned for an unrecognised local basis direction.
	ErrInvalidDirection = errors.New("invalid local basis direction")

	// ErrNotAppendable is returned when a segment does not start after the
	// start of the current last segment.
	ErrNotAppendable = errors.New("segment not appendable")
)
