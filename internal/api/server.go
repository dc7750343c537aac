package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/logging"
	"github.com/nerrad567/deckscan-core/internal/instrument"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket channels broadcast by the server.
const (
	ChannelProgress  = "experiment.progress"
	ChannelState     = "experiment.state"
	ChannelPoint     = "experiment.point"
	ChannelAutofocus = "autofocus.result"
)

// ConnectionReporter reports the state of an optional broker connection.
// *mqtt.Client satisfies it.
type ConnectionReporter interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Instrument *instrument.Instrument

	// Runs lists run history. Optional; /experiment/runs returns 503 without it.
	Runs experiment.Repository

	// MQTT is reported by /health when set.
	MQTT ConnectionReporter

	// Metrics overrides the collectors created by New.
	Metrics *Metrics

	// ExperimentDir is the directory experiment files are loaded from and
	// saved to. Defaults to the working directory.
	ExperimentDir string

	Version string
}

// Server is the HTTP API server of one instrument.
//
// It manages the HTTP listener, routes, middleware, the WebSocket hub
// and the Prometheus collectors. The server is created with New() and
// started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	inst    *instrument.Instrument
	runs    experiment.Repository
	mqtt    ConnectionReporter
	metrics *Metrics
	expDir  string
	version string

	server    *http.Server
	hub       *Hub
	startTime time.Time
	cancel    context.CancelFunc // cancels background goroutines on Close()

	afMu     sync.Mutex
	afResult *focusResult // last interactive sweep
}

// New creates a new API server with the given dependencies and hooks it
// into the instrument: progress and state changes are broadcast over the
// WebSocket hub, run and focus telemetry feeds the Prometheus metrics.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, instrument)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Instrument == nil {
		return nil, fmt.Errorf("instrument is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		inst:      deps.Instrument,
		runs:      deps.Runs,
		mqtt:      deps.MQTT,
		metrics:   deps.Metrics,
		expDir:    deps.ExperimentDir,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.expDir == "" {
		s.expDir = "."
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.hub = NewHub(s.wsCfg, s.logger)

	s.metrics.RegisterGauge("websocket_clients", "Connected WebSocket clients.", func() float64 {
		return float64(s.hub.ClientCount())
	})

	orch := s.inst.Orchestrator
	orch.AddRecorder(s.metrics)
	orch.AddRecorder(hubRecorder{hub: s.hub})
	orch.OnProgress(func(p experiment.Progress) {
		s.hub.Broadcast(ChannelProgress, p)
	})
	s.inst.Focus.AddRecorder(s.metrics)

	return s, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// experimentPath resolves a client-supplied file name inside the
// experiment directory. Absolute names and names climbing out of the
// directory are rejected.
func (s *Server) experimentPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file is required")
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("file %q must be a relative path inside the experiment directory", name)
	}
	return filepath.Join(s.expDir, name), nil
}

// ─── Hub recorder ──────────────────────────────────────────────────

// hubRecorder relays state changes and point completions to WebSocket clients.
type hubRecorder struct {
	hub *Hub
}

// pointMessage is the WebSocket payload of a finished scan point.
type pointMessage struct {
	RunID      string   `json:"run_id"`
	Scan       int      `json:"scan"`
	Slot       int      `json:"slot"`
	Well       string   `json:"well"`
	PointIndex int      `json:"point_index"`
	Frames     []string `json:"frames"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

func (h hubRecorder) PointDone(ev experiment.PointEvent) {
	msg := pointMessage{
		RunID:      ev.RunID,
		Scan:       ev.Scan,
		Slot:       ev.Slot,
		Well:       ev.Well,
		PointIndex: ev.PointIndex,
		Frames:     make([]string, 0, len(ev.Frames)),
		DurationMS: ev.Duration.Milliseconds(),
	}
	for _, f := range ev.Frames {
		msg.Frames = append(msg.Frames, f.Location)
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	h.hub.Broadcast(ChannelPoint, msg)
}

func (h hubRecorder) ScanDone(experiment.ScanEvent) {}

func (h hubRecorder) StateChanged(name string, s experiment.State) {
	h.hub.Broadcast(ChannelState, map[string]any{
		"experiment": name,
		"state":      s,
		"finished":   s.Finished(),
	})
}

// ─── Compile-time checks ───────────────────────────────────────────

var (
	_ experiment.Recorder = (*Metrics)(nil)
	_ autofocus.Recorder  = (*Metrics)(nil)
	_ experiment.Recorder = hubRecorder{}
)
