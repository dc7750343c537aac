package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/deckscan-core/internal/experiment"
)

// Measurement and tag names written by the recorder.
const (
	measurementPoint     = "scan_point"
	measurementScan      = "scan"
	measurementState     = "experiment_state"
	measurementFocus     = "autofocus"
	measurementFocusStep = "autofocus_sample"

	tagInstrument = "instrument"
	tagExperiment = "experiment"
	tagSlot       = "slot"
	tagWell       = "well"
	tagSample     = "sample"
)

// PointDone records one visited scan point.
//
// Fields: scan, point_index, frames, duration_ms, failed.
func (c *Client) PointDone(ev experiment.PointEvent) {
	c.write(pointDonePoint(ev, time.Now()))
}

// ScanDone records one finished or aborted scan.
func (c *Client) ScanDone(ev experiment.ScanEvent) {
	c.write(scanDonePoint(ev, time.Now()))
}

// StateChanged records a lifecycle transition of the experiment.
func (c *Client) StateChanged(name string, s experiment.State) {
	c.write(statePoint(name, s, time.Now()))
}

// RecordFocusSweep records an autofocus sweep: one summary point plus one
// point per sampled z.
func (c *Client) RecordFocusSweep(z, scores []float64, bestZ float64, focus bool) {
	for _, p := range focusPoints(z, scores, bestZ, focus, time.Now()) {
		c.write(p)
	}
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
}

// ─── Point builders ────────────────────────────────────────────────

func pointDonePoint(ev experiment.PointEvent, at time.Time) *write.Point {
	return write.NewPoint(
		measurementPoint,
		map[string]string{
			tagExperiment: ev.Experiment,
			tagSlot:       strconv.Itoa(ev.Slot),
			tagWell:       ev.Well,
		},
		map[string]interface{}{
			"run_id":      ev.RunID,
			"scan":        ev.Scan,
			"point_index": ev.PointIndex,
			"frames":      len(ev.Frames),
			"duration_ms": float64(ev.Duration) / float64(time.Millisecond),
			"failed":      ev.Err != nil,
		},
		at,
	)
}

func scanDonePoint(ev experiment.ScanEvent, at time.Time) *write.Point {
	return write.NewPoint(
		measurementScan,
		map[string]string{tagExperiment: ev.Experiment},
		map[string]interface{}{
			"run_id":     ev.RunID,
			"scan":       ev.Scan,
			"points":     ev.Points,
			"frames":     ev.Frames,
			"duration_s": ev.Duration.Seconds(),
			"aborted":    ev.Aborted,
		},
		at,
	)
}

func statePoint(name string, s experiment.State, at time.Time) *write.Point {
	return write.NewPoint(
		measurementState,
		map[string]string{tagExperiment: name},
		map[string]interface{}{
			"state":    string(s),
			"finished": s.Finished(),
		},
		at,
	)
}

func focusPoints(z, scores []float64, bestZ float64, focus bool, at time.Time) []*write.Point {
	n := min(len(z), len(scores))
	out := make([]*write.Point, 0, n+1)

	summary := map[string]interface{}{
		"best_z":  bestZ,
		"focus":   focus,
		"samples": n,
	}
	if n > 0 {
		lo, hi := scores[0], scores[0]
		for _, s := range scores[:n] {
			lo, hi = min(lo, s), max(hi, s)
		}
		summary["score_min"] = lo
		summary["score_max"] = hi
	}
	out = append(out, write.NewPoint(measurementFocus, nil, summary, at))

	for i := 0; i < n; i++ {
		out = append(out, write.NewPoint(
			measurementFocusStep,
			map[string]string{tagSample: strconv.Itoa(i)},
			map[string]interface{}{"z": z[i], "score": scores[i]},
			at,
		))
	}
	return out
}
