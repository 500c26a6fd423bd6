// Package logging assembles structured slog loggers and formatting helpers used
// across taunote.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline stages tag log lines
// with run IDs and stage names. Console lines lead with a
// "component · run <id> (stage)" subject. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
