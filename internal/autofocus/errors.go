package autofocus

import "errors"

var (
	// ErrBusy is returned when a sweep is already running on the engine.
	ErrBusy = errors.New("autofocus: sweep already running")

	// ErrInvalidRange is returned for an empty or malformed z range.
	ErrInvalidRange = errors.New("autofocus: invalid z range")

	// ErrNoFrames is returned when a sweep ended before any frame was scored.
	ErrNoFrames = errors.New("autofocus: no frames captured")
)
