// Package influxdb writes deckscan run telemetry to InfluxDB 2.x.
//
// It wraps the official influxdb-client-go v2 library. The Client
// implements both experiment.Recorder and autofocus.Recorder, so wiring it
// is a matter of attaching it to the orchestrator and the focus engine:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Instrument.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	orch.AddRecorder(client)
//	focus.SetRecorder(client)
//
// # Measurements
//
//	scan_point         one row per visited point (tags: experiment, slot, well)
//	scan               one row per finished or aborted scan
//	experiment_state   lifecycle transitions (CREATED, RUNNING, ...)
//	autofocus          sweep summary (best_z, focus, score range)
//	autofocus_sample   one row per sampled z of a sweep (tag: sample)
//
// Every point carries the "instrument" default tag.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval.
//
// # Error Handling
//
// Asynchronous write failures are delivered to the SetOnError callback.
// Connection and health check errors are returned directly. Writes made
// while disconnected are dropped.
package influxdb
