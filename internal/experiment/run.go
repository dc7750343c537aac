package experiment

import (
	"time"

	"github.com/google/uuid"
)

// Run is the persisted record of one experiment run.
type Run struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	State          State      `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ScansPlanned   int        `json:"scans_planned"`
	ScansCompleted int        `json:"scans_completed"`
	FramesWritten  int        `json:"frames_written"`
	PointErrors    int        `json:"point_errors"`
	StopReason     string     `json:"stop_reason,omitempty"`
	Params         Params     `json:"params"`
}

// FrameRecord indexes one saved frame.
type FrameRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Scan       int       `json:"scan"`
	Slot       int       `json:"slot"`
	Well       string    `json:"well"`
	PointIndex int       `json:"point_index"`
	Channel    string    `json:"channel"`
	ZIndex     int       `json:"z_index"` // slice index, -1 for a single frame
	Z          float64   `json:"z"`
	Location   string    `json:"location"`
	CapturedAt time.Time `json:"captured_at"`
}

// GenerateID creates a new UUID for a run.
func GenerateID() string {
	return uuid.New().String()
}
