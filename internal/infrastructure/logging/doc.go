// Package logging provides structured logging for Meshboard Core.
//
// It is a thin wrapper around log/slog: New builds a JSON or text
// handler from config with the service name and version attached, and
// every component derives its own logger with
// With("component", ...) so log lines can be filtered per subsystem.
//
// Configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("radio connected", "node", self.NodeName)
//
// Message text may be logged at debug level; never log JWT secrets,
// tickets, or password hashes at any level.
package logging
