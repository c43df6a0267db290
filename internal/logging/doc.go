// Package logging assembles structured slog loggers and formatting helpers used
// across the worker.
//
// It owns the console/JSON handlers, level parsing and output plumbing, and
// context-aware helpers that tag log lines with the run ID, phase, and item
// index. Output never goes to stdout, which belongs to the controller
// protocol. A no-op logger is provided for tests.
package logging
