// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, dispatcher and workers use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and ResearchLogger built on Go's structured logging
//   - ZapAdapter and a lumberjack-rotated zap logger for long running processes
//   - WorkerCallLogger and DropLogger, optional record shapes the dispatcher
//     and engine use when the configured logger provides them
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(store, catalog, func(o *engine.Options) { o.Logger = logger })
//
// The interface is kept minimal so any structured logger can be plugged in.
package logging
