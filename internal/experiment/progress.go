package experiment

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// statusTimeFormat is the date layout of the status text.
const statusTimeFormat = "02/01/2006 15:04:05"

// Progress is a snapshot of a run, published at every point and at every
// scan boundary.
type Progress struct {
	RunID      string     `json:"run_id,omitempty"`
	Experiment string     `json:"experiment,omitempty"`
	State      State      `json:"state"`
	ScanStatus ScanStatus `json:"scan_status"`

	Scan       int `json:"scan"` // 1-based; 0 before the first scan
	TotalScans int `json:"total_scans"`

	Slot        int        `json:"slot"`
	Well        string     `json:"well"`
	PointIndex  int        `json:"point_index"`
	TotalPoints int        `json:"total_points"`
	Position    deck.Point `json:"position"`

	StartedAt     time.Time     `json:"started_at"`
	ScanStartedAt time.Time     `json:"scan_started_at"`
	NextScanAt    time.Time     `json:"next_scan_at"`
	Elapsed       time.Duration `json:"elapsed"`
	Remaining     time.Duration `json:"remaining"`

	FramesWritten int `json:"frames_written"`
	PointErrors   int `json:"point_errors"`

	// Message is the latest human-readable status line (errors included).
	Message string `json:"message,omitempty"`
}

// Text renders the multi-line status shown to the operator.
func (p Progress) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "STATUS: %s\n", p.State)
	if p.StartedAt.IsZero() {
		b.WriteString("  Started at:\t---\n")
	} else {
		fmt.Fprintf(&b, "  Started at:\t%s\n", p.StartedAt.Format(statusTimeFormat))
	}
	fmt.Fprintf(&b, "  Estimated left:\t%s\n", p.Remaining.Round(time.Second))

	if p.Scan == 0 {
		fmt.Fprintf(&b, "SCAN - %s\n", ScanInitializing)
	} else {
		fmt.Fprintf(&b, "SCAN %d/%d - %s\n", p.Scan, p.TotalScans, p.ScanStatus)
		if p.ScanStatus == ScanInitializing || p.ScanStatus == ScanWaiting {
			b.WriteString("  Start:\t\t---\n  Slot:\t\t---\n  Well:\t\t---\n  Position:\t---\n")
		} else {
			fmt.Fprintf(&b, "  Start:\t\t%s\n", p.ScanStartedAt.Format(statusTimeFormat))
			fmt.Fprintf(&b, "  Slot:\t\t%d\n", p.Slot)
			fmt.Fprintf(&b, "  Well:\t\t%s\n", p.Well)
			fmt.Fprintf(&b, "  Position:\t(%.2f, %.2f, %.3f)\n", p.Position.X, p.Position.Y, p.Position.Z)
		}
		if (p.ScanStatus == ScanCompleted || p.ScanStatus == ScanWaiting) && !p.NextScanAt.IsZero() {
			fmt.Fprintf(&b, "  Next:\t\t%s\n", p.NextScanAt.Format(statusTimeFormat))
		} else {
			b.WriteString("  Next:\t\t---\n")
		}
	}

	if p.Message != "" {
		b.WriteString(p.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

// ─── Remaining-time estimate ───────────────────────────────────────

// estimator predicts the time left in a run from measured durations.
type estimator struct {
	pointTotal time.Duration
	pointCount int
	scanMax    time.Duration
}

func (e *estimator) point(d time.Duration) {
	e.pointTotal += d
	e.pointCount++
}

func (e *estimator) scan(d time.Duration) {
	if d > e.scanMax {
		e.scanMax = d
	}
}

// remaining estimates the time left: the average point duration times the
// points left in this scan, plus max(period, longest scan) for every scan
// still to come.
func (e *estimator) remaining(pointsLeft, scansLeft int, period time.Duration) time.Duration {
	var d time.Duration
	if e.pointCount > 0 && pointsLeft > 0 {
		d += e.pointTotal / time.Duration(e.pointCount) * time.Duration(pointsLeft)
	}
	if scansLeft > 0 {
		per := period
		if e.scanMax > per {
			per = e.scanMax
		}
		d += per * time.Duration(scansLeft)
	}
	return d
}
