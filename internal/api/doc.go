// Package api defines the daemon HTTP API contract: the JSON view models
// served by marqueed and a typed client used by the marquee CLI.
//
// Keeping the models here means the daemon handlers and the CLI agree on
// one wire shape without the CLI linking the full engine.
package api
