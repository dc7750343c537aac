package autofocus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/deckscan-core/internal/imaging"
	"github.com/nerrad567/deckscan-core/internal/motion"
)

// Logger defines the logging interface used by the autofocus package.
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

// Recorder receives the scores of every finished sweep.
// internal/influxdb and the Prometheus metrics in internal/api implement it.
type Recorder interface {
	RecordFocusSweep(z, scores []float64, bestZ float64, focus bool)
}

// Result is the outcome of one sweep.
type Result struct {
	Frames []*imaging.Frame
	Z      []float64
	Scores []float64

	// BestZ is the z with the highest score. Only meaningful when Focus is true.
	BestZ float64

	// Focus is true for an autofocus sweep that scored at least one frame.
	// Preview sweeps never select a focus.
	Focus bool

	// Stopped is true when the sweep ended early on Stop or context cancellation.
	Stopped bool

	// Err is the error that ended the sweep, if any.
	Err error
}

// Callback receives the result of an asynchronous sweep.
type Callback func(Result)

// Illumination is the light used while sweeping. An empty Channel leaves
// the illumination untouched.
type Illumination struct {
	Channel   string
	Intensity float64
}

// Engine runs focus sweeps, one at a time.
//
// Thread Safety: All methods are safe for concurrent use.
type Engine struct {
	owner     *motion.Owner
	score     ScoreFunc
	light     Illumination
	logger    Logger
	recorders []Recorder

	running atomic.Bool

	mu   sync.Mutex
	halt chan struct{} // closed by Stop; nil between sweeps
	done chan struct{}
}

// NewEngine creates an engine that drives the stage through owner.
// A nil score uses LaplacianScore.
func NewEngine(owner *motion.Owner, score ScoreFunc) *Engine {
	if score == nil {
		score = LaplacianScore
	}
	done := make(chan struct{})
	close(done)
	return &Engine{owner: owner, score: score, logger: noopLogger{}, done: done}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// SetRecorder replaces every sweep telemetry hook with r.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorders = []Recorder{r}
}

// AddRecorder adds a sweep telemetry hook.
func (e *Engine) AddRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorders = append(e.recorders, r)
}

// SetIllumination sets the light used by later sweeps.
func (e *Engine) SetIllumination(light Illumination) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.light = light
}

// Running reports whether a sweep is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Stop asks the running sweep to end. It returns immediately; the sweep
// ends before its next z-step and still invokes its callback.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halt == nil {
		return
	}
	select {
	case <-e.halt:
	default:
		close(e.halt)
	}
}

// Wait blocks until the current sweep (if any) has finished.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	<-done
}

// Start launches an autofocus sweep from zStart to zEnd in zStep increments.
//
// The stage keeps its current x/y and moves only in z. The callback is
// invoked exactly once when the sweep ends, with BestZ set to the highest
// scoring z (ties to the smallest z).
//
// Parameters:
//   - ctx: Cancelling ctx stops the sweep like Stop
//   - zStart, zEnd, zStep: Inclusive z grid, stage units
//   - im: Camera used for every frame
//   - cb: Result callback (may be nil)
//
// Returns:
//   - error: ErrInvalidRange, ErrBusy, or motion.ErrBusy if the stage is leased elsewhere
func (e *Engine) Start(ctx context.Context, zStart, zEnd, zStep float64, im imaging.Imager, cb Callback) error {
	zs, err := Sweep(zStart, zEnd, zStep)
	if err != nil {
		return err
	}
	return e.launch(ctx, zs, true, im, cb)
}

// Preview launches a z-scan over the given positions without selecting a
// focus. The callback contract is the same as Start.
func (e *Engine) Preview(ctx context.Context, zs []float64, im imaging.Imager, cb Callback) error {
	if len(zs) == 0 {
		return fmt.Errorf("%w: no z positions", ErrInvalidRange)
	}
	return e.launch(ctx, append([]float64(nil), zs...), false, im, cb)
}

func (e *Engine) launch(ctx context.Context, zs []float64, focus bool, im imaging.Imager, cb Callback) error {
	sw, err := e.begin()
	if err != nil {
		return err
	}
	lease, err := e.owner.Acquire(motion.HolderAutofocus)
	if err != nil {
		e.end()
		return err
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.done = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		res := e.sweep(ctx, lease, zs, focus, im, sw)
		lease.Release()
		e.end()
		if cb != nil {
			cb(res)
		}
	}()
	return nil
}

// Run executes one autofocus sweep synchronously on stage, which the
// caller already owns. Stop and ctx cancellation both end it early.
//
// Returns:
//   - Result: Frames, scores and best z
//   - error: ErrBusy, ErrInvalidRange, ErrNoFrames, or the motion/imaging error that ended the sweep
func (e *Engine) Run(ctx context.Context, stage motion.Stage, zStart, zEnd, zStep float64, im imaging.Imager) (Result, error) {
	zs, err := Sweep(zStart, zEnd, zStep)
	if err != nil {
		return Result{}, err
	}
	sw, err := e.begin()
	if err != nil {
		return Result{}, err
	}
	defer e.end()

	res := e.sweep(ctx, stage, zs, true, im, sw)
	if res.Err != nil {
		return res, res.Err
	}
	if !res.Focus {
		return res, ErrNoFrames
	}
	return res, nil
}

// ─── Sweep loop ────────────────────────────────────────────────────

// sweepState is what one sweep reads from the engine, captured when it
// begins so setters never race the loop.
type sweepState struct {
	halt   <-chan struct{}
	light  Illumination
	logger Logger
}

func (s sweepState) halted() bool {
	select {
	case <-s.halt:
		return true
	default:
	}
	return false
}

// begin claims the engine for one sweep. The halt channel is installed
// under the same lock Stop takes, so a Stop that sees the engine running
// always reaches this sweep.
func (e *Engine) begin() (sweepState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.CompareAndSwap(false, true) {
		return sweepState{}, ErrBusy
	}
	e.halt = make(chan struct{})
	return sweepState{halt: e.halt, light: e.light, logger: e.logger}, nil
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halt = nil
	e.running.Store(false)
}

func (e *Engine) sweep(ctx context.Context, stage motion.Stage, zs []float64, focus bool, im imaging.Imager, sw sweepState) Result {
	started := time.Now()
	res := Result{
		Frames: make([]*imaging.Frame, 0, len(zs)),
		Z:      make([]float64, 0, len(zs)),
		Scores: make([]float64, 0, len(zs)),
	}

	start, err := stage.Position()
	if err != nil {
		res.Err = err
		return res
	}

	if sw.light.Channel != "" {
		if err := imaging.LightOn(im, sw.light.Channel, sw.light.Intensity); err != nil {
			res.Err = err
			return res
		}
		defer func() {
			if err := imaging.LightOff(im, sw.light.Channel); err != nil {
				sw.logger.Warn("autofocus: switching light off failed", "channel", sw.light.Channel, "error", err)
			}
		}()
	}

	for _, z := range zs {
		if sw.halted() || ctx.Err() != nil {
			res.Stopped = true
			break
		}
		if err := stage.MoveAbsolute(ctx, motion.AxisZ.With(start, z)); err != nil {
			res.Err = err
			break
		}
		frame, err := im.Capture(ctx)
		if err != nil {
			res.Err = err
			break
		}
		score := e.score(frame.Image)
		res.Frames = append(res.Frames, frame)
		res.Z = append(res.Z, z)
		res.Scores = append(res.Scores, score)
		sw.logger.Debug("autofocus step", "z", z, "score", score)
	}

	if focus {
		if i := bestIndex(res.Z, res.Scores); i >= 0 {
			res.BestZ = res.Z[i]
			res.Focus = true
		}
		// A completed sweep leaves the stage at the focus.
		if res.Focus && res.Err == nil && !res.Stopped {
			if err := stage.MoveAbsolute(ctx, motion.AxisZ.With(start, res.BestZ)); err != nil {
				res.Err = err
			}
		}
	}

	sw.logger.Info("autofocus sweep finished",
		"steps", len(res.Z),
		"planned", len(zs),
		"best_z", res.BestZ,
		"focus", res.Focus,
		"stopped", res.Stopped,
		"duration", time.Since(started),
	)
	if len(res.Z) > 0 {
		e.mu.Lock()
		recorders := e.recorders
		e.mu.Unlock()
		for _, r := range recorders {
			r.RecordFocusSweep(res.Z, res.Scores, res.BestZ, res.Focus)
		}
	}
	return res
}
