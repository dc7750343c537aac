package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/deckscan-core/internal/experiment"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "deckscan"

// experimentStates are the values of the experiment_state gauge.
var experimentStates = []experiment.State{
	experiment.StateCreated,
	experiment.StateRunning,
	experiment.StateStopped,
	experiment.StateCompleted,
}

// Metrics holds the Prometheus collectors of one service instance. It
// implements experiment.Recorder and autofocus.Recorder so the
// orchestrator and the focus engine feed it directly.
//
// Thread Safety: All methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	frames        *prometheus.CounterVec
	points        *prometheus.CounterVec
	pointDuration prometheus.Histogram
	scans         *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	state         *prometheus.GaugeVec
	focusSweeps   *prometheus.CounterVec
	focusBestZ    prometheus.Gauge
	moves         *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_captured_total",
			Help:      "Frames written to the frame sink.",
		}, []string{"channel"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scan_points_total",
			Help:      "Scan points visited, by outcome.",
		}, []string{"result"}),
		pointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scan_point_duration_seconds",
			Help:      "Time spent at one scan point (move, settle, focus, capture).",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scans_total",
			Help:      "Scans finished, by outcome.",
		}, []string{"result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of one pass over the scan list.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "experiment_state",
			Help:      "1 for the current experiment state, 0 otherwise.",
		}, []string{"state"}),
		focusSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "autofocus_sweeps_total",
			Help:      "Finished z sweeps, by kind (focus or preview).",
		}, []string{"kind"}),
		focusBestZ: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "autofocus_best_z",
			Help:      "Best z of the last focus sweep, stage units.",
		}),
		moves: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "stage_motion_duration_seconds",
			Help:      "Duration of manual stage operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.frames, m.points, m.pointDuration,
		m.scans, m.scanDuration, m.state,
		m.focusSweeps, m.focusBestZ, m.moves,
		m.requests, m.requestTime,
	)
	m.setState(experiment.StateCreated)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGauge exposes a value computed at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// ─── experiment.Recorder ───────────────────────────────────────────

// PointDone counts the frames and outcome of one scan point.
func (m *Metrics) PointDone(ev experiment.PointEvent) {
	for _, f := range ev.Frames {
		m.frames.WithLabelValues(f.Channel).Inc()
	}
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	m.points.WithLabelValues(result).Inc()
	m.pointDuration.Observe(ev.Duration.Seconds())
}

// ScanDone records one finished or aborted scan.
func (m *Metrics) ScanDone(ev experiment.ScanEvent) {
	result := "completed"
	if ev.Aborted {
		result = "aborted"
	}
	m.scans.WithLabelValues(result).Inc()
	if !ev.Aborted {
		m.scanDuration.Observe(ev.Duration.Seconds())
	}
}

// StateChanged moves the experiment_state gauge.
func (m *Metrics) StateChanged(_ string, s experiment.State) {
	m.setState(s)
}

func (m *Metrics) setState(current experiment.State) {
	for _, s := range experimentStates {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

// ─── autofocus.Recorder ────────────────────────────────────────────

// RecordFocusSweep counts a finished sweep and keeps the last best z.
func (m *Metrics) RecordFocusSweep(_, _ []float64, bestZ float64, focus bool) {
	if !focus {
		m.focusSweeps.WithLabelValues("preview").Inc()
		return
	}
	m.focusSweeps.WithLabelValues("focus").Inc()
	m.focusBestZ.Set(bestZ)
}

// ─── Motion and HTTP ───────────────────────────────────────────────

// observeMove records the duration of a manual stage operation.
func (m *Metrics) observeMove(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.moves.WithLabelValues(op, result).Observe(d.Seconds())
}

// observeRequest records one HTTP request.
func (m *Metrics) observeRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(route).Observe(d.Seconds())
}
