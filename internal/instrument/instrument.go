package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/framestore"
	"github.com/nerrad567/deckscan-core/internal/imaging"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/motion"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// Logger is satisfied by *logging.Logger and by every package-level
// Logger interface of the domain packages.
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

// Options holds collaborators that are not built from configuration.
type Options struct {
	// Repo persists runs and the frame index. Optional.
	Repo experiment.Repository

	// Sink overrides the sink built from the acquisition section.
	Sink framestore.Sink

	// Clock overrides the orchestrator clock (tests).
	Clock experiment.Clock

	// Logger receives the logs of every component. Optional.
	Logger Logger
}

// Instrument owns one microscope: the deck model, the scan list, the stage
// and its owner, the camera, the frame sink, the autofocus engine and the
// orchestrator. It replaces process-wide globals; everything that needs
// the hardware receives the Instrument (or one of its parts) explicitly.
type Instrument struct {
	ID   string
	Name string

	Layout   *deck.Layout
	Resolver *deck.Resolver
	Store    *scanlist.Store

	Stage motion.Stage // the driver; use Owner for every call
	Owner *motion.Owner

	Camera imaging.Imager
	Matrix *imaging.LEDMatrix // nil without an LED matrix

	Sink         framestore.Sink
	Focus        *autofocus.Engine
	Orchestrator *experiment.Orchestrator

	autofocusCfg config.AutofocusConfig
	moveTimeout  time.Duration
	logger       Logger
}

// New builds an instrument from configuration.
//
// Parameters:
//   - ctx: Context for setting up remote sinks (S3 configuration loading)
//   - cfg: Validated service configuration
//   - opts: Collaborators not built from configuration
//
// Returns:
//   - *Instrument: Ready instrument, stage at its home position
//   - error: If the layout cannot be loaded or a driver/sink is unsupported
func New(ctx context.Context, cfg *config.Config, opts Options) (*Instrument, error) {
	layout, err := deck.LoadLayout(cfg.Deck.LayoutFile)
	if err != nil {
		return nil, fmt.Errorf("loading deck layout: %w", err)
	}
	return NewWithLayout(ctx, cfg, layout, opts)
}

// NewWithLayout is New with an already parsed layout.
func NewWithLayout(ctx context.Context, cfg *config.Config, layout *deck.Layout, opts Options) (*Instrument, error) {
	units := deck.Units(cfg.Deck.TranslateUnits)
	if err := units.Validate(); err != nil {
		return nil, err
	}
	resolver := deck.NewResolver(layout, units)

	stage, err := newStage(cfg.Stage)
	if err != nil {
		return nil, err
	}
	owner := motion.NewOwner(stage)
	if err := applySpeeds(owner, cfg.Stage.Speeds); err != nil {
		return nil, err
	}

	camera, matrix, err := newCamera(cfg.Camera)
	if err != nil {
		return nil, err
	}

	sink := opts.Sink
	if sink == nil {
		if sink, err = newSink(ctx, cfg.Acquisition); err != nil {
			return nil, err
		}
	}

	score, err := scoreFunc(cfg.Autofocus.Score)
	if err != nil {
		return nil, err
	}
	focus := autofocus.NewEngine(owner, score)
	if cfg.Autofocus.Channel != "" {
		focus.SetIllumination(autofocus.Illumination{
			Channel:   cfg.Autofocus.Channel,
			Intensity: cfg.Autofocus.Intensity,
		})
	}

	store := scanlist.NewStore(resolver)
	orch := experiment.New(experiment.Config{
		Store:   store,
		Owner:   owner,
		Imager:  camera,
		Sink:    sink,
		Focus:   focus,
		Repo:    opts.Repo,
		Unshake: cfg.Acquisition.Unshake,
		Clock:   opts.Clock,
	})

	inst := &Instrument{
		ID:           cfg.Instrument.ID,
		Name:         cfg.Instrument.Name,
		Layout:       layout,
		Resolver:     resolver,
		Store:        store,
		Stage:        stage,
		Owner:        owner,
		Camera:       camera,
		Matrix:       matrix,
		Sink:         sink,
		Focus:        focus,
		Orchestrator: orch,
		autofocusCfg: cfg.Autofocus,
		moveTimeout:  cfg.Stage.MoveTimeout,
		logger:       noopLogger{},
	}
	if opts.Logger != nil {
		inst.SetLogger(opts.Logger)
	}
	return inst, nil
}

// SetLogger hands the logger to every component.
func (i *Instrument) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	i.logger = logger
	i.Store.SetLogger(logger)
	i.Owner.SetLogger(logger)
	i.Focus.SetLogger(logger)
	i.Orchestrator.SetLogger(logger)
}

// ─── Builders ──────────────────────────────────────────────────────

func newStage(cfg config.StageConfig) (motion.Stage, error) {
	switch cfg.Driver {
	case "simulated", "":
		return motion.NewSimulatedStage(motion.SimulatedConfig{
			Min:       point(cfg.Min),
			Max:       point(cfg.Max),
			Home:      point(cfg.Home),
			Park:      point(cfg.Park),
			MoveDelay: cfg.MoveDelay,
		}), nil
	default:
		return nil, fmt.Errorf("%w: stage %q", ErrUnknownDriver, cfg.Driver)
	}
}

// applySpeeds sets every configured axis speed; zero keeps the driver default.
func applySpeeds(owner *motion.Owner, speeds config.PointConfig) error {
	for axis, v := range map[motion.Axis]float64{
		motion.AxisX: speeds.X,
		motion.AxisY: speeds.Y,
		motion.AxisZ: speeds.Z,
	} {
		if v == 0 {
			continue
		}
		if err := owner.SetSpeed(axis, v); err != nil {
			return fmt.Errorf("setting %s speed: %w", axis, err)
		}
	}
	return nil
}

func newCamera(cfg config.CameraConfig) (imaging.Imager, *imaging.LEDMatrix, error) {
	switch cfg.Driver {
	case "simulated", "":
	default:
		return nil, nil, fmt.Errorf("%w: camera %q", ErrUnknownDriver, cfg.Driver)
	}

	var matrix *imaging.LEDMatrix
	if cfg.LEDMatrix.Channel != "" {
		matrix = imaging.NewLEDMatrix(cfg.LEDMatrix.Columns, cfg.LEDMatrix.Rows, nil)
	}
	cam := imaging.NewSimulatedCamera(imaging.SimulatedConfig{
		Width:         cfg.Width,
		Height:        cfg.Height,
		Channels:      cfg.Channels,
		Matrix:        matrix,
		MatrixChannel: cfg.LEDMatrix.Channel,
	})
	return cam, matrix, nil
}

func newSink(ctx context.Context, cfg config.AcquisitionConfig) (framestore.Sink, error) {
	format, err := framestore.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	s3Sink := func() (framestore.Sink, error) {
		return framestore.NewS3Sink(ctx, framestore.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
			Format:          format,
		})
	}

	switch cfg.Output {
	case "fs", "":
		return framestore.NewFileSink(cfg.OutputDir, format), nil
	case "s3":
		return s3Sink()
	case "both":
		remote, err := s3Sink()
		if err != nil {
			return nil, err
		}
		return framestore.Multi(framestore.NewFileSink(cfg.OutputDir, format), remote), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, cfg.Output)
	}
}

func scoreFunc(name string) (autofocus.ScoreFunc, error) {
	switch name {
	case "laplacian", "":
		return autofocus.LaplacianScore, nil
	case "variance":
		return autofocus.VarianceScore, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScore, name)
	}
}

func point(p config.PointConfig) deck.Point {
	return deck.Point{X: p.X, Y: p.Y, Z: p.Z}
}
