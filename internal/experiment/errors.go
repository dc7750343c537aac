package experiment

import "errors"

// Domain errors for the experiment package.
//
//	if errors.Is(err, experiment.ErrAlreadyRunning) {
//	    // second start rejected, first run unaffected
//	}
var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("experiment: already running")

	// ErrNotRunning is returned by Stop when no run is in progress.
	ErrNotRunning = errors.New("experiment: not running")

	// ErrInvalidParams is returned by Start when the scan parameters or the
	// scan list cannot produce a run.
	ErrInvalidParams = errors.New("experiment: invalid parameters")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("experiment: run not found")

	// errStopRequested unwinds the scan loop after a stop request.
	errStopRequested = errors.New("experiment: stop requested")
)
