package instrument

import (
	"context"
	"fmt"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/imaging"
	"github.com/nerrad567/deckscan-core/internal/motion"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// ─── Experiment files ──────────────────────────────────────────────

// LoadExperiment reads an experiment document and replaces the scan list.
// The list is unchanged when the file is invalid or an experiment is running.
func (i *Instrument) LoadExperiment(path string) error {
	doc, err := scanlist.LoadDocument(path)
	if err != nil {
		return err
	}
	if err := i.Store.Load(doc); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	i.logger.Info("experiment file loaded", "path", path, "points", i.Store.Len())
	return nil
}

// SaveExperiment writes the current scan list to path and clears the dirty flag.
func (i *Instrument) SaveExperiment(path string) error {
	if err := scanlist.SaveDocument(path, i.Store.Document()); err != nil {
		return err
	}
	i.Store.MarkSaved()
	i.logger.Info("experiment file saved", "path", path)
	return nil
}

// ─── Manual stage control ──────────────────────────────────────────

// motionContext bounds a manual move by the configured move timeout.
func (i *Instrument) motionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.moveTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.moveTimeout)
}

// MoveTo moves the stage to an absolute position. Fails with
// motion.ErrBusy while an experiment or autofocus sweep holds the stage.
func (i *Instrument) MoveTo(ctx context.Context, p deck.Point) error {
	ctx, cancel := i.motionContext(ctx)
	defer cancel()
	return i.Owner.MoveAbsolute(ctx, p)
}

// MoveBy moves the stage by a relative offset.
func (i *Instrument) MoveBy(ctx context.Context, delta deck.Point) error {
	ctx, cancel := i.motionContext(ctx)
	defer cancel()
	return i.Owner.MoveRelative(ctx, delta)
}

// MoveToWell moves the stage over a well, keeping the current Z.
func (i *Instrument) MoveToWell(ctx context.Context, slot int, well string) error {
	p, err := i.Resolver.WellCenter(slot, well)
	if err != nil {
		return err
	}
	pos, err := i.Owner.Position()
	if err != nil {
		return err
	}
	p.Z = pos.Z
	return i.MoveTo(ctx, p)
}

// Home homes every axis.
func (i *Instrument) Home(ctx context.Context) error {
	ctx, cancel := i.motionContext(ctx)
	defer cancel()
	return i.Owner.Home(ctx)
}

// HomeAxis homes one axis.
func (i *Instrument) HomeAxis(ctx context.Context, axis motion.Axis) error {
	ctx, cancel := i.motionContext(ctx)
	defer cancel()
	return i.Owner.HomeAxis(ctx, axis)
}

// Park brings the stage to its safe idle state: Z down first, then X and Y home.
func (i *Instrument) Park(ctx context.Context) error {
	ctx, cancel := i.motionContext(ctx)
	defer cancel()
	return motion.ParkSafely(ctx, i.Owner)
}

// StopAxis halts one axis.
func (i *Instrument) StopAxis(axis motion.Axis) error {
	return i.Owner.StopAxis(axis)
}

// Position returns the current stage position.
func (i *Instrument) Position() (deck.Point, error) {
	return i.Owner.Position()
}

// ─── Autofocus ─────────────────────────────────────────────────────

// StartAutofocus launches a background focus sweep over the configured Z
// range. cb receives the result when the sweep ends.
func (i *Instrument) StartAutofocus(ctx context.Context, cb autofocus.Callback) error {
	af := i.autofocusCfg
	return i.Focus.Start(ctx, af.ZStart, af.ZEnd, af.ZStep, i.Camera, cb)
}

// StartAutofocusRange is StartAutofocus over an explicit Z range.
func (i *Instrument) StartAutofocusRange(ctx context.Context, zStart, zEnd, zStep float64, cb autofocus.Callback) error {
	return i.Focus.Start(ctx, zStart, zEnd, zStep, i.Camera, cb)
}

// StopAutofocus interrupts a running sweep and waits for it to release the stage.
func (i *Instrument) StopAutofocus() {
	i.Focus.Stop()
	i.Focus.Wait()
}

// ─── Shutdown ──────────────────────────────────────────────────────

// Close stops a running experiment and focus sweep, then parks the stage.
// The experiment stop is bounded by ctx.
func (i *Instrument) Close(ctx context.Context) error {
	if i.Orchestrator.State() == experiment.StateRunning {
		if err := i.Orchestrator.Stop(ctx); err != nil {
			i.logger.Warn("stopping experiment on close", "error", err)
		}
	}
	i.StopAutofocus()
	if i.Matrix != nil {
		if err := i.Matrix.SetAll(imaging.RGB{}); err != nil {
			i.logger.Warn("switching LED matrix off", "error", err)
		}
	}
	if err := i.Park(ctx); err != nil {
		return fmt.Errorf("parking stage: %w", err)
	}
	i.logger.Info("instrument closed", "id", i.ID)
	return nil
}
