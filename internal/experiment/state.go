package experiment

// State is the orchestrator state.
//
//	CREATED ──Start──▶ RUNNING ──Stop / fatal──▶ STOPPED
//	   ▲                  │
//	   │                  └──scans exhausted──▶ COMPLETED
//	   └──────────── Reset ◀── STOPPED, COMPLETED
type State string

// Orchestrator states.
const (
	StateCreated   State = "CREATED"
	StateRunning   State = "RUNNING"
	StateStopped   State = "STOPPED"
	StateCompleted State = "COMPLETED"
)

// Finished reports whether s is a terminal state of a run.
func (s State) Finished() bool {
	return s == StateStopped || s == StateCompleted
}

// ScanStatus is the phase of the current scan.
type ScanStatus string

// Scan phases.
const (
	ScanInitializing ScanStatus = "initializing"
	ScanRunning      ScanStatus = "running"
	ScanWaiting      ScanStatus = "waiting"
	ScanCompleted    ScanStatus = "completed"
)
