package deck

import "errors"

// Domain errors for the deck package.
//
// Lookup failures wrap ErrResolution so callers can treat every
// "cannot map this coordinate" case the same way:
//
//	if errors.Is(err, deck.ErrResolution) {
//	    // reject the edit, keep the run going
//	}
var (
	// ErrResolution is returned when a coordinate cannot be mapped to a slot/well.
	ErrResolution = errors.New("deck: coordinate cannot be resolved")

	// ErrUnknownSlot is returned when a slot ID is not part of the layout.
	ErrUnknownSlot = errors.New("deck: unknown slot")

	// ErrUnknownWell is returned when a well is not part of the slot's labware.
	ErrUnknownWell = errors.New("deck: unknown well")

	// ErrNoLabware is returned when a slot holds no labware.
	ErrNoLabware = errors.New("deck: slot holds no labware")

	// ErrOutOfDeck is returned when a point lies outside the deck bounds.
	ErrOutOfDeck = errors.New("deck: point outside deck bounds")

	// ErrUnsupportedUnit is returned for an unknown unit translation.
	ErrUnsupportedUnit = errors.New("deck: unsupported unit translation")

	// ErrInvalidLayout is returned when a layout file fails validation.
	ErrInvalidLayout = errors.New("deck: invalid layout")
)
