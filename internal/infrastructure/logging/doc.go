// Package logging provides structured logging for dashsync.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for services, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - A "discard" output for the terminal dashboard
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("poll complete", "devices", 12)
//	logger.Component("gateway").Warn("toggle failed", "device_id", id, "error", err)
//
// Never log bearer tokens. Log the token expiry instead.
package logging
