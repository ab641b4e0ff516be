// Package logging wraps log/slog with the handlers, attribute helpers, and
// context plumbing used across the daemon and CLI.
package logging
