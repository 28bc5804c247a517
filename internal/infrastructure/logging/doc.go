// Package logging provides structured logging for SchoolHub Core.
//
// It wraps log/slog with JSON or text output and service/version
// attributes on every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("api server listening", "address", addr)
//
// Attributes named like credentials (password, token, refresh_token,
// secret, ticket, authorization) are replaced with [REDACTED] by the
// handler. Log usernames and user ids instead.
package logging
