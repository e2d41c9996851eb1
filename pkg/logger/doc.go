// Package logger constructs the process-wide slog logger.
package logger
