// Package autofocus implements the z-sweep autofocus and preview engine.
//
// A sweep moves the stage through a list of z positions, captures one
// frame at each, and scores every frame with a sharpness metric. The
// focus is the z with the highest score.
//
// # Lifecycle
//
//	        Start / Preview
//	Idle ───────────────────▶ Running
//	  ▲                          │
//	  └──────────────────────────┘
//	   sweep exhausted, Stop(), ctx done
//
// One sweep runs per Engine at a time. A second Start while Running fails
// with ErrBusy. Stop may be called from any goroutine; it closes the
// halt channel of the current sweep, which the loop checks before every
// z-step, so the sweep ends within one step. Stop while idle is a no-op
// and never leaks into the next sweep. A step blocked inside the stage
// driver is not interrupted.
//
// The callback passed to Start or Preview is invoked exactly once per
// sweep, after the lease on the stage has been released.
//
// # Scoring
//
// Scores come from a ScoreFunc. VarianceScore (global intensity variance)
// and LaplacianScore (variance of the 4-neighbour Laplacian) are provided;
// both use gonum/stat.
//
// # Synchronous use
//
// Run executes one sweep on a caller-supplied stage handle and returns the
// result directly. The experiment orchestrator uses it with its own lease
// to refocus at the start of a scan.
package autofocus
