package motion

import (
	"context"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Stage is the motion façade. Implementations block until the physical
// operation completes and return *Error values wrapping the sentinel errors.
type Stage interface {
	// MoveAbsolute moves every axis to p (stage units).
	MoveAbsolute(ctx context.Context, p deck.Point) error

	// MoveRelative moves by delta from the current position.
	MoveRelative(ctx context.Context, delta deck.Point) error

	// Home homes every axis.
	Home(ctx context.Context) error

	// HomeAxis homes a single axis.
	HomeAxis(ctx context.Context, axis Axis) error

	// Park moves to the configured park position.
	Park(ctx context.Context) error

	// StopAxis halts motion on one axis immediately.
	StopAxis(axis Axis) error

	// Position returns the current absolute position.
	Position() (deck.Point, error)

	// SetSpeed sets the travel speed of one axis (stage units per second).
	SetSpeed(axis Axis, speed float64) error
}

// ParkSafely brings the stage to a safe idle state: Z to 0 first so the
// objective clears the labware, then every axis stopped, then X and Y homed.
func ParkSafely(ctx context.Context, s Stage) error {
	pos, err := s.Position()
	if err != nil {
		return err
	}
	if err := s.MoveAbsolute(ctx, AxisZ.With(pos, 0)); err != nil {
		return err
	}
	for _, a := range Axes {
		if err := s.StopAxis(a); err != nil {
			return err
		}
	}
	for _, a := range []Axis{AxisX, AxisY} {
		if err := s.HomeAxis(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
