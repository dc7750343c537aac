// Package motion defines the stage façade used by DeckScan Core.
//
// Stage drivers are external collaborators. This package fixes their call
// contract and adds the pieces the rest of the core relies on:
//
//   - Stage: blocking move/home/park/stop interface
//   - Axis: X/Y/Z enum with an explicit per-axis dispatch table
//   - Error: typed motion failure carrying the operation and axis
//   - Owner: serialises every physical call and grants exclusive leases
//   - SimulatedStage: in-memory stage for tests and hardware-free runs
//
// # Call Contract
//
// Every Stage method blocks until the physical operation has finished or
// failed. Moves honour ctx only between driver calls; a driver call that
// never returns blocks its caller, including cooperative cancellation of an
// experiment run. This is a known limitation of the driver boundary.
//
// # Ownership
//
// Interactive callers use the Owner directly. A long-running task (the
// experiment worker, an autofocus sweep) takes a Lease; while a lease is
// held, interactive motion fails fast with ErrBusy instead of racing the
// worker on the same axes. StopAxis is never blocked by a lease.
//
// # Error Handling
//
//	if motion.IsFatal(err) {
//	    // driver gone: abort the run
//	}
package motion
