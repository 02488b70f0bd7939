// Package logging provides structured logging for the Envío service.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version attached to
// each entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("listening", "port", 8000)
//	logger.Error("audit write failed", "error", err)
package logging
