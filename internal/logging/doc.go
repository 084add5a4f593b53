// Package logging assembles the slog loggers used by the AniGiffy server and
// CLI.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with session and request identifiers.
// NewNop is available for tests and wiring code that cannot fail.
package logging
