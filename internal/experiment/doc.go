// Package experiment runs time-lapse experiments over the scan list.
//
// An Orchestrator owns one run at a time. A run performs NumberScans
// scans; each scan visits every included point of the scan list in order
// and captures one frame (or one z-stack) per active illumination channel.
//
// # Lifecycle
//
//	           Start
//	CREATED ─────────▶ RUNNING ──── Stop / fatal motion error ────▶ STOPPED
//	   ▲                  │                                            │
//	   │                  └────────── scans exhausted ──▶ COMPLETED     │
//	   │                                                   │           │
//	   └──────────────────────── Reset ◀───────────────────┴───────────┘
//
// Start is also accepted from STOPPED and COMPLETED; it begins a new run.
// A Start while RUNNING fails with ErrAlreadyRunning and leaves the
// current run untouched.
//
// # Per-point protocol
//
//	move to (x, y, reference + relative_focus_z)
//	wait Unshake
//	for each channel with intensity > 0:
//	    light on ─▶ capture (single frame or z-stack) ─▶ light off
//
// Frames are stored through a framestore.Sink under
//
//	YYYY-MM-DD/{experiment}/{experiment}_{slot}_{well}_{index}_z{z}_{mode}_{DDdd}{HHhh}{MMmm}.{ext}
//
// where the date is the run start and the elapsed stamp is the time from
// run start to the start of the scan.
//
// # Cadence
//
// Scan k+1 starts at the actual start of scan k plus the period, or
// immediately when scan k overran it. The wait is interrupted by a stop
// request.
//
// # Stopping
//
// RequestStop sets a flag and returns. The worker checks it before every
// point, every channel and every z-slice, so frames already written stay
// on disk and nothing is captured after the check fires. On every exit
// path the worker switches the lights off, parks the stage (Z to 0, stop
// all axes, home X and Y), releases its stage lease and makes the scan
// list writable again.
//
// Per-point failures are logged, counted in the run record and skipped. A
// fatal motion error (driver disconnected) ends the run as STOPPED with
// the error as the stop reason.
//
// # Observers
//
// Progress snapshots go to every handler registered with OnProgress (MQTT
// and WebSocket publishers). Recorders receive point, scan and state
// events for telemetry. A Repository, when set, persists run records and
// the frame index.
package experiment
