// Package logging configures structured logging for the marquee daemon.
//
// Loggers are standard *slog.Logger values. The package provides a console
// handler for interactive use, a JSON handler for machine consumption, a
// rotating file sink for the daemon log, and helpers that keep attribute
// keys consistent across components.
package logging
