// Package logging provides structured logging for Perimeter Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
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
//	logger.Info("starting service", "port", 8000)
//	vendorLog := logger.Component("vendor")
//
// # Security
//
// Never log bearer tokens, broker passwords, or the JWT secret.
package logging
