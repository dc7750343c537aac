package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
	"github.com/nerrad567/deckscan-core/internal/infrastructure/logging"
	"github.com/nerrad567/deckscan-core/internal/instrument"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <experiment file>",
		Short: "Run one experiment headless until it completes or is interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd.Context(), configPath(cmd), args[0], cmd.OutOrStdout())
		},
	}
}

// runExperiment loads an experiment file and runs it to the end. A
// cancelled ctx (SIGINT) stops the run after the current point.
//
// Parameters:
//   - ctx: Context whose cancellation requests a stop
//   - path: Configuration file path
//   - expFile: Experiment document (JSON or YAML)
//   - out: Destination of the per-scan summary lines
//
// Returns:
//   - error: If the experiment cannot be loaded or started, or the stop times out
func runExperiment(ctx context.Context, path, expFile string, w io.Writer) error {
	out := &syncWriter{w: w}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // flushed on exit

	db, runs, err := openRunHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only after the run

	inst, err := instrument.New(ctx, cfg, instrument.Options{Repo: runs, Logger: log})
	if err != nil {
		return fmt.Errorf("initialising instrument: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := inst.Close(closeCtx); closeErr != nil {
			log.Error("error closing instrument", "error", closeErr)
		}
	}()

	if err := inst.LoadExperiment(expFile); err != nil {
		return err
	}
	inst.Orchestrator.AddRecorder(&consoleRecorder{out: out})

	runID, err := inst.Orchestrator.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting experiment: %w", err)
	}
	fmt.Fprintf(out, "run %s started: %d points\n", runID, inst.Store.Len())

	done := make(chan struct{})
	go func() {
		inst.Orchestrator.Wait(context.Background()) //nolint:errcheck // background ctx never expires
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Fprintln(out, "interrupt received, stopping after the current point")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Orchestrator.Stop(stopCtx); err != nil {
			return fmt.Errorf("stopping experiment: %w", err)
		}
	}

	run, _ := inst.Orchestrator.CurrentRun()
	fmt.Fprintf(out, "run %s %s: %d/%d scans, %d frames, %d point errors\n",
		run.ID, run.State, run.ScansCompleted, run.ScansPlanned, run.FramesWritten, run.PointErrors)
	if run.StopReason != "" {
		fmt.Fprintf(out, "stop reason: %s\n", run.StopReason)
	}
	return nil
}

// syncWriter serialises writes from the command and the run worker.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// consoleRecorder prints one line per scan and per failed point.
type consoleRecorder struct {
	out io.Writer
}

func (c *consoleRecorder) PointDone(ev experiment.PointEvent) {
	if ev.Err == nil {
		return
	}
	fmt.Fprintf(c.out, "scan %d point %d (slot %d %s) failed: %v\n", ev.Scan, ev.PointIndex, ev.Slot, ev.Well, ev.Err)
}

func (c *consoleRecorder) ScanDone(ev experiment.ScanEvent) {
	status := "done"
	if ev.Aborted {
		status = "aborted"
	}
	fmt.Fprintf(c.out, "scan %d %s: %d points, %d frames in %s\n", ev.Scan, status, ev.Points, ev.Frames, ev.Duration.Round(time.Millisecond))
}

func (c *consoleRecorder) StateChanged(name string, s experiment.State) {
	fmt.Fprintf(c.out, "%s: %s\n", name, s)
}
