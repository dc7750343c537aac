package experiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/framestore"
	"github.com/nerrad567/deckscan-core/internal/imaging"
	"github.com/nerrad567/deckscan-core/internal/motion"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// readOnlyReason is shown to interactive edits while a run holds the list.
const readOnlyReason = "experiment running"

// Config holds the collaborators and tunables of an Orchestrator.
type Config struct {
	Store  *scanlist.Store
	Owner  *motion.Owner
	Imager imaging.Imager
	Sink   framestore.Sink

	// Focus refocuses at the first point of every scan when the
	// experiment enables autofocus. Optional.
	Focus *autofocus.Engine

	// Repo persists runs and the frame index. Optional.
	Repo Repository

	// Unshake is the settle time after every move (default DefaultUnshake).
	Unshake time.Duration

	// Clock defaults to the wall clock.
	Clock Clock
}

// Orchestrator runs experiments: repeated scans over the scan list.
//
// It owns one background worker at a time. Start snapshots the scan
// parameters, takes the experiment lease on the stage, makes the scan list
// read-only, and launches the worker. The worker checks a stop flag before
// every point and every z-slice.
//
// Thread Safety: All methods are safe for concurrent use.
type Orchestrator struct {
	store   *scanlist.Store
	owner   *motion.Owner
	imager  imaging.Imager
	sink    framestore.Sink
	focus   *autofocus.Engine
	repo    Repository
	unshake time.Duration
	clock   Clock
	logger  Logger

	mu        sync.Mutex
	state     State
	progress  Progress
	run       *Run
	stopCh    chan struct{}
	stopOnce  *sync.Once
	done      chan struct{}
	handlers  []ProgressFunc
	recorders []Recorder
}

// New creates an orchestrator in state CREATED.
func New(cfg Config) *Orchestrator {
	if cfg.Unshake <= 0 {
		cfg.Unshake = DefaultUnshake
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		store:    cfg.Store,
		owner:    cfg.Owner,
		imager:   cfg.Imager,
		sink:     cfg.Sink,
		focus:    cfg.Focus,
		repo:     cfg.Repo,
		unshake:  cfg.Unshake,
		clock:    cfg.Clock,
		logger:   noopLogger{},
		state:    StateCreated,
		progress: Progress{State: StateCreated},
		done:     done,
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger = logger
}

// OnProgress registers a progress handler.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, fn)
}

// AddRecorder registers a telemetry recorder.
func (o *Orchestrator) AddRecorder(r Recorder) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorders = append(o.recorders, r)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress returns the latest progress snapshot.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// CurrentRun returns a copy of the current (or last) run record.
func (o *Orchestrator) CurrentRun() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return Run{}, false
	}
	return *o.run, true
}

// ─── Lifecycle ─────────────────────────────────────────────────────

// Start validates the loaded experiment and launches a run.
//
// Parameters:
//   - ctx: Used for the start-up work only; the run itself outlives it
//
// Returns:
//   - string: The run ID
//   - error: ErrAlreadyRunning, ErrInvalidParams, or motion.ErrBusy if the stage is leased
func (o *Orchestrator) Start(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		o.report("Experiment already running.")
		return "", ErrAlreadyRunning
	}

	lease, err := o.owner.Acquire(motion.HolderExperiment)
	if err != nil {
		o.mu.Unlock()
		o.report("Stage busy: " + err.Error())
		return "", err
	}
	o.store.SetReadOnly(readOnlyReason)

	points := o.store.Snapshot()
	params := ParamsFrom(o.store.ExpInfo(), o.store.ScanParams())
	if err := params.Validate(points); err != nil {
		o.store.SetReadOnly("")
		lease.Release()
		o.mu.Unlock()
		o.report(err.Error())
		return "", err
	}

	now := o.clock.Now()
	run := &Run{
		ID:           GenerateID(),
		Name:         params.Name,
		State:        StateRunning,
		StartedAt:    now,
		ScansPlanned: params.NumberScans,
		Params:       params,
	}
	o.run = run
	o.state = StateRunning
	o.stopCh = make(chan struct{})
	o.stopOnce = &sync.Once{}
	o.done = make(chan struct{})
	o.progress = Progress{
		RunID:       run.ID,
		Experiment:  params.Name,
		State:       StateRunning,
		ScanStatus:  ScanInitializing,
		TotalScans:  params.NumberScans,
		TotalPoints: len(points),
		StartedAt:   now,
		Message:     "Starting timelapse...",
	}
	stopCh, done := o.stopCh, o.done
	logger := o.logger
	o.mu.Unlock()

	if o.repo != nil {
		if err := o.repo.CreateRun(ctx, run); err != nil {
			logger.Error("failed to create run record", "run_id", run.ID, "error", err)
		}
	}
	logger.Info("experiment started",
		"run_id", run.ID,
		"name", params.Name,
		"scans", params.NumberScans,
		"period", params.Period,
		"points", len(points),
	)
	o.emitState(params.Name, StateRunning)
	o.publish()

	w := &worker{
		o:      o,
		lease:  lease,
		params: params,
		run:    run,
		stopCh: stopCh,
		logger: logger,
	}
	go func() {
		defer close(done)
		w.loop()
	}()
	return run.ID, nil
}

// RequestStop asks the running worker to stop and returns immediately.
// The worker finishes the current frame, parks the stage and moves to
// STOPPED.
func (o *Orchestrator) RequestStop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateRunning {
		return ErrNotRunning
	}
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.progress.Message = "Stopping timelapse..."
	if o.focus != nil {
		o.focus.Stop()
	}
	return nil
}

// Stop requests a stop and waits for the worker to exit.
//
// Returns:
//   - error: ErrNotRunning, or ctx.Err() if ctx ends first (the stop still proceeds)
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.RequestStop(); err != nil {
		return err
	}
	return o.Wait(ctx)
}

// Wait blocks until the current worker (if any) has exited.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns a finished orchestrator to CREATED.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.state = StateCreated
	o.progress = Progress{State: StateCreated}
	name := ""
	if o.run != nil {
		name = o.run.Name
	}
	o.mu.Unlock()

	o.emitState(name, StateCreated)
	o.publish()
	return nil
}

// ─── Publication ───────────────────────────────────────────────────

// update mutates the progress under the lock and publishes it.
func (o *Orchestrator) update(fn func(p *Progress)) {
	o.mu.Lock()
	fn(&o.progress)
	o.mu.Unlock()
	o.publish()
}

// report publishes a status message without changing anything else.
func (o *Orchestrator) report(msg string) {
	o.update(func(p *Progress) { p.Message = msg })
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	p := o.progress
	handlers := append([]ProgressFunc(nil), o.handlers...)
	o.mu.Unlock()
	for _, h := range handlers {
		h(p)
	}
}

func (o *Orchestrator) recordersSnapshot() []Recorder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Recorder(nil), o.recorders...)
}

func (o *Orchestrator) emitState(name string, s State) {
	for _, r := range o.recordersSnapshot() {
		r.StateChanged(name, s)
	}
}

// finish records the terminal state of a run.
func (o *Orchestrator) finish(run *Run, state State, reason string) {
	now := o.clock.Now()

	o.mu.Lock()
	o.state = state
	run.State = state
	run.EndedAt = &now
	run.StopReason = reason
	o.progress.State = state
	o.progress.Remaining = 0
	switch {
	case state == StateCompleted:
		o.progress.Message = "Done with timelapse."
	case reason != "":
		o.progress.Message = "Experiment stopped: " + reason
	default:
		o.progress.Message = "Experiment stopped."
	}
	final := *run
	logger := o.logger
	o.mu.Unlock()

	if o.repo != nil {
		if err := o.repo.UpdateRun(context.Background(), &final); err != nil {
			logger.Error("failed to update run record", "run_id", run.ID, "error", err)
		}
	}
	logger.Info("experiment finished",
		"run_id", run.ID,
		"state", string(state),
		"scans_completed", final.ScansCompleted,
		"frames", final.FramesWritten,
		"point_errors", final.PointErrors,
		"reason", reason,
	)
	o.emitState(final.Name, state)
	o.publish()
}

// ─── Worker ────────────────────────────────────────────────────────

// worker is the state of one run's scan loop. Only the worker goroutine
// touches it; shared fields go through o.mu.
type worker struct {
	o      *Orchestrator
	lease  *motion.Lease
	params Params
	run    *Run
	stopCh chan struct{}
	logger Logger
	eta    estimator
}

func (w *worker) stopped() bool {
	select {
	case <-w.stopCh:
		return true
	default:
	}
	return false
}

// stopContext derives a context that is cancelled on a stop request.
func (w *worker) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// sleep waits d or until a stop request. It reports false when stopped.
func (w *worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return !w.stopped()
	}
	select {
	case <-w.stopCh:
		return false
	case <-w.o.clock.After(d):
		return true
	}
}

func (w *worker) loop() {
	o := w.o
	ctx := context.Background()

	state, reason := w.scans(ctx)

	if err := w.lightsOff(); err != nil {
		w.logger.Warn("switching illumination off failed", "error", err)
	}
	if err := motion.ParkSafely(ctx, w.lease); err != nil {
		w.logger.Error("parking stage failed", "error", err)
		if reason == "" && state == StateStopped {
			reason = err.Error()
		}
	}
	w.lease.Release()
	o.store.SetReadOnly("")
	o.finish(w.run, state, reason)
}

// scans runs every scan and returns the terminal state.
func (w *worker) scans(ctx context.Context) (State, string) {
	o := w.o
	var prevStart time.Time

	for scan := 1; scan <= w.params.NumberScans; scan++ {
		if scan > 1 {
			next := prevStart.Add(w.params.Period)
			o.update(func(p *Progress) {
				p.Scan = scan - 1
				p.ScanStatus = ScanCompleted
				p.NextScanAt = next
				p.Remaining = w.eta.remaining(0, w.params.NumberScans-scan+1, w.params.Period)
			})
			if wait := next.Sub(o.clock.Now()); wait > 0 {
				o.update(func(p *Progress) { p.ScanStatus = ScanWaiting })
				w.logger.Debug("waiting for next scan", "scan", scan, "wait", wait)
				if !w.sleep(wait) {
					return StateStopped, ""
				}
			}
		}
		if w.stopped() {
			return StateStopped, ""
		}

		prevStart = o.clock.Now()
		err := w.scan(ctx, scan, prevStart)
		switch {
		case errors.Is(err, errStopRequested):
			return StateStopped, ""
		case err != nil:
			return StateStopped, err.Error()
		}
	}
	return StateCompleted, ""
}

// scan runs one pass over the list. It returns errStopRequested on stop
// and a fatal motion error when the driver is gone.
func (w *worker) scan(ctx context.Context, scan int, start time.Time) error {
	o := w.o
	points := o.store.Snapshot()
	stamp := ElapsedStamp(start.Sub(w.run.StartedAt))

	remainingPoints := 0
	for _, p := range points {
		if p.Checked {
			remainingPoints++
		}
	}
	o.update(func(p *Progress) {
		p.Scan = scan
		p.ScanStatus = ScanRunning
		p.ScanStartedAt = start
		p.TotalPoints = remainingPoints
		p.NextScanAt = time.Time{}
		p.Message = fmt.Sprintf("Round %d started at %s", scan, start.Format(statusTimeFormat))
	})
	w.logger.Info("scan started", "run_id", w.run.ID, "scan", scan, "points", remainingPoints)

	reference := referenceZ(points)
	if w.params.Autofocus.Enabled && o.focus != nil {
		z, err := w.refocus(ctx, points, reference)
		switch {
		case motion.IsFatal(err), errors.Is(err, errStopRequested):
			return err
		case err != nil:
			w.logger.Warn("autofocus failed, keeping reference focus", "scan", scan, "error", err)
			o.report("Autofocus failed: " + err.Error())
		default:
			reference = z
		}
	}

	frames, aborted := 0, false
	var scanErr error
	for i, pt := range points {
		if w.stopped() {
			aborted, scanErr = true, errStopRequested
			break
		}
		if !pt.Checked {
			continue
		}

		target := deck.Point{X: pt.PositionX, Y: pt.PositionY, Z: reference + pt.RelativeFocusZ}
		o.update(func(p *Progress) {
			p.Slot = pt.Slot
			p.Well = pt.Well
			p.PointIndex = i
			p.Position = target
			p.Message = fmt.Sprintf("Scanning: Slot %d, Well %s, Index %d", pt.Slot, pt.Well, pt.PositionInWellIndex)
		})

		began := o.clock.Now()
		recs, err := w.visit(ctx, scan, pt, target, stamp)
		took := o.clock.Now().Sub(began)
		frames += len(recs)
		remainingPoints--
		w.eta.point(took)

		ev := PointEvent{
			RunID: w.run.ID, Experiment: w.params.Name, Scan: scan,
			Slot: pt.Slot, Well: pt.Well, PointIndex: pt.PositionInWellIndex,
			Frames: recs, Duration: took, Err: err,
		}
		if err != nil && !errors.Is(err, errStopRequested) {
			w.addCounts(0, 1)
		}
		for _, r := range o.recordersSnapshot() {
			r.PointDone(ev)
		}

		if errors.Is(err, errStopRequested) {
			aborted, scanErr = true, err
			break
		}
		if err != nil {
			if motion.IsFatal(err) {
				w.logger.Error("fatal motion error, stopping run", "scan", scan, "slot", pt.Slot, "well", pt.Well, "error", err)
				aborted, scanErr = true, err
				break
			}
			w.logger.Error("scan point failed", "scan", scan, "slot", pt.Slot, "well", pt.Well,
				"index", pt.PositionInWellIndex, "error", err)
			o.report(fmt.Sprintf("Point %d (slot %d, well %s) failed: %v", i, pt.Slot, pt.Well, err))
		}

		left := remainingPoints
		o.update(func(p *Progress) {
			p.Elapsed = o.clock.Now().Sub(w.run.StartedAt)
			p.Remaining = w.eta.remaining(left, w.params.NumberScans-scan, w.params.Period)
		})
	}

	took := o.clock.Now().Sub(start)
	w.eta.scan(took)
	if !aborted {
		o.mu.Lock()
		w.run.ScansCompleted++
		o.mu.Unlock()
		w.persist()
	}
	for _, r := range o.recordersSnapshot() {
		r.ScanDone(ScanEvent{
			RunID: w.run.ID, Experiment: w.params.Name, Scan: scan,
			Points: len(points), Frames: frames, Duration: took, Aborted: aborted,
		})
	}
	w.logger.Info("scan finished", "scan", scan, "frames", frames, "duration", took, "aborted", aborted)
	return scanErr
}

// referenceZ is the focus reference of the list: z of the first point.
func referenceZ(points []scanlist.ScanPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	return points[0].PositionZ
}

// refocus runs an autofocus sweep above the first included point and
// returns the new reference z. It returns errStopRequested when a stop
// arrives before or during the sweep.
func (w *worker) refocus(ctx context.Context, points []scanlist.ScanPoint, reference float64) (float64, error) {
	var first *scanlist.ScanPoint
	for i := range points {
		if points[i].Checked {
			first = &points[i]
			break
		}
	}
	if first == nil {
		return reference, nil
	}

	w.o.report("Autofocusing...")
	above := deck.Point{X: first.PositionX, Y: first.PositionY, Z: reference + first.RelativeFocusZ}
	if err := w.lease.MoveAbsolute(ctx, above); err != nil {
		return reference, err
	}
	if w.stopped() {
		return reference, errStopRequested
	}
	sctx, cancel := w.stopContext(ctx)
	defer cancel()
	af := w.params.Autofocus
	res, err := w.o.focus.Run(sctx, w.lease, af.ZStart, af.ZEnd, af.ZStep, w.o.imager)
	if w.stopped() {
		return reference, errStopRequested
	}
	if err != nil {
		return reference, err
	}
	// The sweep focuses the first point; the reference follows its offset.
	return res.BestZ - first.RelativeFocusZ, nil
}

// visit captures every active channel at one point.
func (w *worker) visit(ctx context.Context, scan int, pt scanlist.ScanPoint, target deck.Point, stamp string) ([]FrameRecord, error) {
	if err := w.lease.MoveAbsolute(ctx, target); err != nil {
		return nil, err
	}
	if !w.sleep(w.o.unshake) {
		return nil, errStopRequested
	}

	var recs []FrameRecord
	for _, ch := range w.params.ActiveChannels() {
		if w.stopped() {
			return recs, errStopRequested
		}
		got, err := w.captureChannel(ctx, scan, pt, target, stamp, ch)
		recs = append(recs, got...)
		if err != nil {
			return recs, err
		}
	}
	return recs, nil
}

// captureChannel switches one channel on, captures a single frame or a
// z-stack, and switches it off again.
func (w *worker) captureChannel(ctx context.Context, scan int, pt scanlist.ScanPoint, target deck.Point, stamp string, ch Channel) (recs []FrameRecord, err error) {
	im := w.o.imager
	if err := imaging.LightOn(im, ch.Name, ch.Intensity); err != nil {
		return nil, err
	}
	defer func() {
		if offErr := imaging.LightOff(im, ch.Name); offErr != nil && err == nil {
			err = offErr
		}
	}()

	name := FrameName{
		Experiment: w.params.Name,
		Slot:       pt.Slot,
		Well:       pt.Well,
		Index:      pt.PositionInWellIndex,
		Mode:       ch.Name,
		Stamp:      stamp,
	}

	if !w.params.ZStack.Enabled {
		name.Z = roundZ(pt.RelativeFocusZ)
		rec, err := w.captureFrame(ctx, scan, pt, ch.Name, name, -1, target.Z)
		if err != nil {
			return nil, err
		}
		return []FrameRecord{rec}, nil
	}

	for zi, z := range ZSlices(target.Z, w.params.ZStack.Height, w.params.ZStack.Slices) {
		if w.stopped() {
			return recs, errStopRequested
		}
		if err := w.lease.MoveAbsolute(ctx, motion.AxisZ.With(target, z)); err != nil {
			return recs, err
		}
		if !w.sleep(w.o.unshake) {
			return recs, errStopRequested
		}
		name.Z = zi
		rec, err := w.captureFrame(ctx, scan, pt, ch.Name, name, zi, z)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// captureFrame grabs, stores and indexes one frame.
func (w *worker) captureFrame(ctx context.Context, scan int, pt scanlist.ScanPoint, channel string, name FrameName, zIndex int, z float64) (FrameRecord, error) {
	frame, err := w.o.imager.Capture(ctx)
	if err != nil {
		return FrameRecord{}, err
	}

	key := framestore.Key(w.run.StartedAt, w.params.Name, name.String(), w.o.sink.Format())
	loc, err := w.o.sink.Put(ctx, key, frame.Image)
	if err != nil {
		return FrameRecord{}, fmt.Errorf("saving frame %s: %w", key, err)
	}

	rec := FrameRecord{
		RunID:      w.run.ID,
		Scan:       scan,
		Slot:       pt.Slot,
		Well:       pt.Well,
		PointIndex: pt.PositionInWellIndex,
		Channel:    channel,
		ZIndex:     zIndex,
		Z:          z,
		Location:   loc,
		CapturedAt: frame.CapturedAt,
	}
	if w.o.repo != nil {
		if err := w.o.repo.AddFrame(ctx, &rec); err != nil {
			w.logger.Error("failed to index frame", "location", loc, "error", err)
		}
	}
	w.addCounts(1, 0)
	w.logger.Debug("frame saved", "location", loc)
	return rec, nil
}

func (w *worker) addCounts(frames, pointErrors int) {
	o := w.o
	o.mu.Lock()
	w.run.FramesWritten += frames
	w.run.PointErrors += pointErrors
	o.progress.FramesWritten = w.run.FramesWritten
	o.progress.PointErrors = w.run.PointErrors
	o.mu.Unlock()
}

func (w *worker) persist() {
	if w.o.repo == nil {
		return
	}
	w.o.mu.Lock()
	snapshot := *w.run
	w.o.mu.Unlock()
	if err := w.o.repo.UpdateRun(context.Background(), &snapshot); err != nil {
		w.logger.Error("failed to update run record", "run_id", snapshot.ID, "error", err)
	}
}

// lightsOff switches every configured channel off.
func (w *worker) lightsOff() error {
	var errs []error
	for _, ch := range w.params.Channels {
		if err := imaging.LightOff(w.o.imager, ch.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}
