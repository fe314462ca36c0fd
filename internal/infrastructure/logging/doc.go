// Package logging provides structured logging for the Vera bridge.
//
// It wraps Go's log/slog package so every component logs the same way:
//
//   - JSON output for unattended installs, text output for a terminal
//   - Default fields (service, version) on every entry
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components derive a child logger and log with key/value pairs:
//
//	log := logger.With("component", "poller")
//	log.Error("status poll failed", "error", err)
//
// Never log the MQTT password.
package logging
