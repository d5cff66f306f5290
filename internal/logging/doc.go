// Package logging assembles the structured slog loggers used across
// shepherd.
//
// It owns the console and JSON handlers, level parsing, and typed
// attribute helpers so every component emits log lines with the same
// shape. A no-op logger is provided for tests and wiring code that
// cannot fail.
package logging
