// Package logger builds the structured slog logger shared by the proxy.
// Development environments get human-readable text output; production gets
// JSON lines suitable for the journal.
package logger
