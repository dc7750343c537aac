// Package instrument assembles one deck scanning microscope from
// configuration.
//
// # Components
//
// An Instrument holds the deck layout and resolver, the scan list, the
// stage behind its motion owner, the camera (plus an optional LED matrix),
// the frame sink, the autofocus engine and the experiment orchestrator.
// Drivers are selected by name; only the simulated stage and camera are
// built in.
//
// # Usage
//
//	inst, err := instrument.New(ctx, cfg, instrument.Options{Repo: repo, Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer inst.Close(ctx)
//
//	if err := inst.LoadExperiment("growth.json"); err != nil {
//	    return err
//	}
//	runID, err := inst.Orchestrator.Start(ctx)
//
// # Manual control
//
// MoveTo, Home, Park and the autofocus helpers go through the motion owner,
// so they fail with motion.ErrBusy while an experiment holds the stage.
// Every manual move is bounded by stage.move_timeout.
package instrument
