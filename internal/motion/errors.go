package motion

import (
	"errors"
	"fmt"
)

// Domain errors for the motion package.
var (
	// ErrOutOfRange is returned when a target lies outside the travel limits.
	ErrOutOfRange = errors.New("motion: target out of range")

	// ErrDriverTimeout is returned when the driver did not confirm a move in time.
	ErrDriverTimeout = errors.New("motion: driver timeout")

	// ErrDriverDisconnected is returned when the driver connection is lost.
	// It is fatal to any in-progress experiment run.
	ErrDriverDisconnected = errors.New("motion: driver disconnected")

	// ErrBusy is returned when another holder owns the stage.
	ErrBusy = errors.New("motion: stage busy")

	// ErrUnknownAxis is returned for an axis name outside X/Y/Z.
	ErrUnknownAxis = errors.New("motion: unknown axis")
)

// Error describes a failed stage operation.
type Error struct {
	Op   string // "move_absolute", "home", "stop_axis", ...
	Axis string // empty when the operation spans every axis
	Err  error
}

func (e *Error) Error() string {
	if e.Axis != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Axis, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err means the driver is gone and a run must end.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDriverDisconnected)
}

func opError(op string, axis *Axis, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	e := &Error{Op: op, Err: err}
	if axis != nil {
		e.Axis = axis.String()
	}
	return e
}
