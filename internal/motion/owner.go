package motion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Logger defines the logging interface used by the motion package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Holder names who currently drives the stage.
type Holder string

// Known holders.
const (
	HolderInteractive Holder = "interactive"
	HolderExperiment  Holder = "experiment"
	HolderAutofocus   Holder = "autofocus"
)

// Owner is the single motion owner for one physical stage.
//
// Every physical call is serialised through one mutex, so two callers can
// never command the same axes at once. A task that needs the stage for a
// long time takes a Lease; while it is held the Owner's own methods (used
// by interactive callers) fail with ErrBusy.
//
// Thread Safety: All methods are safe for concurrent use.
type Owner struct {
	stage  Stage
	mu     sync.Mutex // serialises physical calls
	leaseM sync.Mutex // guards holder and logger
	holder Holder
	logger Logger
}

// NewOwner wraps a stage driver.
func NewOwner(stage Stage) *Owner {
	return &Owner{stage: stage, logger: noopLogger{}}
}

// SetLogger sets the logger for the owner.
func (o *Owner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	o.leaseM.Lock()
	defer o.leaseM.Unlock()
	o.logger = logger
}

func (o *Owner) log() Logger {
	o.leaseM.Lock()
	defer o.leaseM.Unlock()
	return o.logger
}

// Holder returns the current lease holder, or "" when the stage is free.
func (o *Owner) Holder() Holder {
	o.leaseM.Lock()
	defer o.leaseM.Unlock()
	return o.holder
}

// Acquire takes an exclusive lease on the stage.
//
// Returns:
//   - *Lease: Stage handle bound to the holder; call Release when done
//   - error: ErrBusy if another holder owns the stage
func (o *Owner) Acquire(h Holder) (*Lease, error) {
	o.leaseM.Lock()
	defer o.leaseM.Unlock()
	if o.holder != "" {
		return nil, fmt.Errorf("%w: held by %s", ErrBusy, o.holder)
	}
	o.holder = h
	o.logger.Debug("stage lease acquired", "holder", string(h))
	return &Lease{owner: o, holder: h}, nil
}

func (o *Owner) release(h Holder) {
	o.leaseM.Lock()
	defer o.leaseM.Unlock()
	if o.holder == h {
		o.holder = ""
		o.logger.Debug("stage lease released", "holder", string(h))
	}
}

// checkFree rejects interactive motion while a lease is held.
func (o *Owner) checkFree(op string) error {
	if h := o.Holder(); h != "" {
		return &Error{Op: op, Err: fmt.Errorf("%w: held by %s", ErrBusy, h)}
	}
	return nil
}

// do runs fn under the call mutex on behalf of h ("" for interactive
// callers). The holder is checked again once the mutex is held, so a
// call queued behind a running move fails with ErrBusy if the stage was
// leased to someone else in the meantime.
func (o *Owner) do(op string, axis *Axis, h Holder, fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur := o.Holder(); cur != h {
		if h == "" {
			return &Error{Op: op, Err: fmt.Errorf("%w: held by %s", ErrBusy, cur)}
		}
		return &Error{Op: op, Err: fmt.Errorf("%w: lease released", ErrBusy)}
	}
	return opError(op, axis, fn())
}

// MoveAbsolute moves to p unless the stage is leased.
func (o *Owner) MoveAbsolute(ctx context.Context, p deck.Point) error {
	if err := o.checkFree("move_absolute"); err != nil {
		return err
	}
	return o.do("move_absolute", nil, "", func() error { return o.stage.MoveAbsolute(ctx, p) })
}

// MoveRelative moves by delta unless the stage is leased.
func (o *Owner) MoveRelative(ctx context.Context, delta deck.Point) error {
	if err := o.checkFree("move_relative"); err != nil {
		return err
	}
	return o.do("move_relative", nil, "", func() error { return o.stage.MoveRelative(ctx, delta) })
}

// Home homes every axis unless the stage is leased.
func (o *Owner) Home(ctx context.Context) error {
	if err := o.checkFree("home"); err != nil {
		return err
	}
	return o.do("home", nil, "", func() error { return o.stage.Home(ctx) })
}

// HomeAxis homes one axis unless the stage is leased.
func (o *Owner) HomeAxis(ctx context.Context, axis Axis) error {
	if err := o.checkFree("home_axis"); err != nil {
		return err
	}
	return o.do("home_axis", &axis, "", func() error { return o.stage.HomeAxis(ctx, axis) })
}

// Park moves to the park position unless the stage is leased.
func (o *Owner) Park(ctx context.Context) error {
	if err := o.checkFree("park"); err != nil {
		return err
	}
	return o.do("park", nil, "", func() error { return o.stage.Park(ctx) })
}

// StopAxis halts one axis. It bypasses both the lease and the call mutex
// so a stop reaches the driver while a move is in flight.
func (o *Owner) StopAxis(axis Axis) error {
	if !axis.Valid() {
		return &Error{Op: "stop_axis", Err: ErrUnknownAxis}
	}
	o.log().Info("stopping axis", "axis", axis.String(), "holder", string(o.Holder()))
	return opError("stop_axis", &axis, o.stage.StopAxis(axis))
}

// Position reads the current position. Reads are allowed while leased.
func (o *Owner) Position() (deck.Point, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, err := o.stage.Position()
	return p, opError("position", nil, err)
}

// SetSpeed sets one axis speed unless the stage is leased.
func (o *Owner) SetSpeed(axis Axis, speed float64) error {
	if err := o.checkFree("set_speed"); err != nil {
		return err
	}
	return o.do("set_speed", &axis, "", func() error { return o.stage.SetSpeed(axis, speed) })
}

// Lease is an exclusive handle on the stage. It implements Stage.
type Lease struct {
	owner    *Owner
	holder   Holder
	released atomic.Bool
}

// Holder returns who owns this lease.
func (l *Lease) Holder() Holder {
	return l.holder
}

// Release gives the stage back. Safe to call more than once.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.owner.release(l.holder)
	}
}

func (l *Lease) check(op string) error {
	if l.released.Load() {
		return &Error{Op: op, Err: fmt.Errorf("%w: lease released", ErrBusy)}
	}
	return nil
}

// MoveAbsolute implements Stage.
func (l *Lease) MoveAbsolute(ctx context.Context, p deck.Point) error {
	if err := l.check("move_absolute"); err != nil {
		return err
	}
	return l.owner.do("move_absolute", nil, l.holder, func() error { return l.owner.stage.MoveAbsolute(ctx, p) })
}

// MoveRelative implements Stage.
func (l *Lease) MoveRelative(ctx context.Context, delta deck.Point) error {
	if err := l.check("move_relative"); err != nil {
		return err
	}
	return l.owner.do("move_relative", nil, l.holder, func() error { return l.owner.stage.MoveRelative(ctx, delta) })
}

// Home implements Stage.
func (l *Lease) Home(ctx context.Context) error {
	if err := l.check("home"); err != nil {
		return err
	}
	return l.owner.do("home", nil, l.holder, func() error { return l.owner.stage.Home(ctx) })
}

// HomeAxis implements Stage.
func (l *Lease) HomeAxis(ctx context.Context, axis Axis) error {
	if err := l.check("home_axis"); err != nil {
		return err
	}
	return l.owner.do("home_axis", &axis, l.holder, func() error { return l.owner.stage.HomeAxis(ctx, axis) })
}

// Park implements Stage.
func (l *Lease) Park(ctx context.Context) error {
	if err := l.check("park"); err != nil {
		return err
	}
	return l.owner.do("park", nil, l.holder, func() error { return l.owner.stage.Park(ctx) })
}

// StopAxis implements Stage.
func (l *Lease) StopAxis(axis Axis) error {
	return l.owner.StopAxis(axis)
}

// Position implements Stage.
func (l *Lease) Position() (deck.Point, error) {
	return l.owner.Position()
}

// SetSpeed implements Stage.
func (l *Lease) SetSpeed(axis Axis, speed float64) error {
	if err := l.check("set_speed"); err != nil {
		return err
	}
	return l.owner.do("set_speed", &axis, l.holder, func() error { return l.owner.stage.SetSpeed(axis, speed) })
}
