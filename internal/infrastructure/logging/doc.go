// Package logging provides structured logging for deckscan.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Fan-out to stdout and a log file (samber/slog-multi)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "both"     # stdout, stderr, file, both
//	  file:
//	    path: "./data/logs/deckscan.log"
//
// # Usage
//
//	logger, err := logging.New(cfg.Logging, "1.0.0")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	logger.Info("experiment started", "run_id", id)
//
// Domain packages do not import this package. Each declares a small
// Logger interface (Debug, Info, Warn, Error) that *Logger satisfies.
package logging
