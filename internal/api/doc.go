// Package api implements the HTTP REST API and WebSocket server of one
// deck scanning microscope.
//
// This package provides:
//   - REST endpoints for the deck, the scan point list, the experiment
//     document, run control and history, manual stage control and autofocus
//   - WebSocket hub broadcasting progress, state, point and autofocus events
//   - Prometheus metrics on /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Lifecycle
//
//	server, err := api.New(api.Deps{Logger: log, Instrument: inst, Runs: repo})
//	server.Start(ctx)
//	defer server.Close()
//
// # Errors
//
// Domain sentinel errors are mapped onto HTTP statuses in one table:
// validation problems are 400, unknown indices and runs 404, edits while
// an experiment runs or the stage is leased 409, driver faults 502.
//
// # WebSocket
//
// Clients connect to /api/v1/ws and subscribe to channels, either with
// ?channels=experiment.progress,experiment.state or with a subscribe
// message. Subscribing to experiment.progress sends the current snapshot
// straight away.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
