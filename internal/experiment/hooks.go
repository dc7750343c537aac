package experiment

import (
	"time"
)

// Logger defines the logging interface used by the experiment package.
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

// ProgressFunc receives progress updates. It is called on the worker
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// PointEvent describes one visited scan point.
type PointEvent struct {
	RunID      string
	Experiment string
	Scan       int
	Slot       int
	Well       string
	PointIndex int
	Frames     []FrameRecord
	Duration   time.Duration
	Err        error
}

// ScanEvent describes one finished (or aborted) scan.
type ScanEvent struct {
	RunID      string
	Experiment string
	Scan       int
	Points     int
	Frames     int
	Duration   time.Duration
	Aborted    bool
}

// Recorder receives run telemetry. internal/influxdb and the Prometheus
// metrics in internal/api implement it.
type Recorder interface {
	PointDone(ev PointEvent)
	ScanDone(ev ScanEvent)
	StateChanged(experiment string, s State)
}

// Clock abstracts time for the scan loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
