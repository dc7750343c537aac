package scanlist

import (
	"errors"
	"fmt"
)

// Domain errors for the scanlist package.
//
// Rejected edits wrap ErrValidation; malformed experiment documents wrap
// ErrConfiguration:
//
//	if errors.Is(err, scanlist.ErrValidation) {
//	    // edit rejected, list unchanged
//	}
var (
	// ErrValidation is returned when an edit would break a list invariant.
	ErrValidation = errors.New("scanlist: edit rejected")

	// ErrIndexOutOfRange is returned for a row index outside the list.
	ErrIndexOutOfRange = errors.New("scanlist: index out of range")

	// ErrCrossWell is returned when a position edit resolves to another well.
	ErrCrossWell = errors.New("scanlist: position resolves to a different well")

	// ErrInvalidGrid is returned for a beacon grid with no points.
	ErrInvalidGrid = errors.New("scanlist: invalid beacon grid")

	// ErrReadOnly is returned for edits while an experiment is running.
	ErrReadOnly = errors.New("scanlist: read-only")

	// ErrConfiguration is returned for a malformed experiment document.
	ErrConfiguration = errors.New("scanlist: invalid experiment configuration")

	// ErrInsufficientPoints is returned when a focus plane cannot be fitted.
	ErrInsufficientPoints = errors.New("scanlist: not enough points for a focus plane")
)

func validationErr(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrValidation, kind, fmt.Sprintf(format, args...))
}
