package motion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// SimulatedConfig configures a SimulatedStage.
type SimulatedConfig struct {
	// Min and Max are the travel limits (inclusive). Equal values disable the check.
	Min deck.Point
	Max deck.Point

	// Home is the homed position; Park is the park position.
	Home deck.Point
	Park deck.Point

	// MoveDelay is how long each move blocks.
	MoveDelay time.Duration
}

// SimulatedStage is an in-memory Stage. It tracks position and the call
// history, enforces travel limits, and can inject driver faults.
//
// Thread Safety: All methods are safe for concurrent use.
type SimulatedStage struct {
	mu           sync.Mutex
	cfg          SimulatedConfig
	pos          deck.Point
	speeds       [3]float64
	failNext     error
	disconnected bool
	moves        []deck.Point
	stops        []Axis
	homes        []Axis
}

// NewSimulatedStage creates a simulated stage at its home position.
func NewSimulatedStage(cfg SimulatedConfig) *SimulatedStage {
	return &SimulatedStage{cfg: cfg, pos: cfg.Home}
}

// FailNext makes the next motion call return err.
func (s *SimulatedStage) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Disconnect makes every later call fail with ErrDriverDisconnected.
func (s *SimulatedStage) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
}

// Moves returns the absolute targets of every completed move.
func (s *SimulatedStage) Moves() []deck.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]deck.Point, len(s.moves))
	copy(out, s.moves)
	return out
}

// Stops returns the axes passed to StopAxis, in call order.
func (s *SimulatedStage) Stops() []Axis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Axis, len(s.stops))
	copy(out, s.stops)
	return out
}

// Homes returns the axes homed, in call order.
func (s *SimulatedStage) Homes() []Axis {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Axis, len(s.homes))
	copy(out, s.homes)
	return out
}

// Speed returns the configured speed of an axis.
func (s *SimulatedStage) Speed(axis Axis) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speeds[axis]
}

// fault returns the pending injected error, if any. Caller holds s.mu.
func (s *SimulatedStage) fault() error {
	if s.disconnected {
		return ErrDriverDisconnected
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

func (s *SimulatedStage) inRange(p deck.Point) bool {
	lo, hi := s.cfg.Min, s.cfg.Max
	if lo == hi {
		return true
	}
	for _, a := range Axes {
		if v := a.Of(p); v < a.Of(lo) || v > a.Of(hi) {
			return false
		}
	}
	return true
}

func (s *SimulatedStage) settle(ctx context.Context) error {
	if s.cfg.MoveDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.MoveDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SimulatedStage) moveTo(ctx context.Context, op string, p deck.Point) error {
	s.mu.Lock()
	if err := s.fault(); err != nil {
		s.mu.Unlock()
		return &Error{Op: op, Err: err}
	}
	if !s.inRange(p) {
		s.mu.Unlock()
		return &Error{Op: op, Err: fmt.Errorf("%w: %s", ErrOutOfRange, p)}
	}
	s.mu.Unlock()

	if err := s.settle(ctx); err != nil {
		return &Error{Op: op, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
	s.moves = append(s.moves, p)
	return nil
}

// MoveAbsolute implements Stage.
func (s *SimulatedStage) MoveAbsolute(ctx context.Context, p deck.Point) error {
	return s.moveTo(ctx, "move_absolute", p)
}

// MoveRelative implements Stage.
func (s *SimulatedStage) MoveRelative(ctx context.Context, delta deck.Point) error {
	s.mu.Lock()
	target := s.pos.Add(delta)
	s.mu.Unlock()
	return s.moveTo(ctx, "move_relative", target)
}

// Home implements Stage.
func (s *SimulatedStage) Home(ctx context.Context) error {
	for _, a := range Axes {
		if err := s.HomeAxis(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// HomeAxis implements Stage.
func (s *SimulatedStage) HomeAxis(ctx context.Context, axis Axis) error {
	if !axis.Valid() {
		return &Error{Op: "home_axis", Err: ErrUnknownAxis}
	}
	s.mu.Lock()
	if err := s.fault(); err != nil {
		s.mu.Unlock()
		return &Error{Op: "home_axis", Axis: axis.String(), Err: err}
	}
	s.mu.Unlock()

	if err := s.settle(ctx); err != nil {
		return &Error{Op: "home_axis", Axis: axis.String(), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = axis.With(s.pos, axis.Of(s.cfg.Home))
	s.homes = append(s.homes, axis)
	return nil
}

// Park implements Stage.
func (s *SimulatedStage) Park(ctx context.Context) error {
	return s.moveTo(ctx, "park", s.cfg.Park)
}

// StopAxis implements Stage.
func (s *SimulatedStage) StopAxis(axis Axis) error {
	if !axis.Valid() {
		return &Error{Op: "stop_axis", Err: ErrUnknownAxis}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return &Error{Op: "stop_axis", Axis: axis.String(), Err: ErrDriverDisconnected}
	}
	s.stops = append(s.stops, axis)
	return nil
}

// Position implements Stage.
func (s *SimulatedStage) Position() (deck.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return deck.Point{}, &Error{Op: "position", Err: ErrDriverDisconnected}
	}
	return s.pos, nil
}

// SetSpeed implements Stage.
func (s *SimulatedStage) SetSpeed(axis Axis, speed float64) error {
	if !axis.Valid() {
		return &Error{Op: "set_speed", Err: ErrUnknownAxis}
	}
	if speed <= 0 {
		return &Error{Op: "set_speed", Axis: axis.String(), Err: fmt.Errorf("%w: speed %g", ErrOutOfRange, speed)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speeds[axis] = speed
	return nil
}
