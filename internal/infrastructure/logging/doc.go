// Package logging provides structured logging for Liminal Core.
//
// It wraps log/slog so that every entry carries the service name and
// build version, and so that subsystems can derive component loggers.
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
//	logger := logging.New(cfg.Logging, version)
//	loop := logger.Component("controller")
//	loop.Warn("tick overran interval", "elapsed", elapsed)
//
// Never log broker passwords or the InfluxDB token.
package logging
