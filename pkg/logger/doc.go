// Package logger provides a structured logging interface for ntpdate.
//
// It wraps the zerolog library to provide a small API with support for:
// - Leveled logging (Debug, Info, Warn, Error)
// - Structured logging with fields
// - Console output with optional colors
// - File output with size based rotation (lumberjack)
//
// Basic Usage:
//
//	log, err := logger.New(&config.LoggingConfig{
//	    Level: "info",
//	    File:  "/var/log/ntpdate.log",
//	})
//
//	log.WithField("host", "pool.ntp.org").Info("querying server")
//	log.WithError(err).Error("sync failed")
//
// Loggers are passed explicitly to the components that need them; there is no
// package level instance. Use Nop when a component should stay silent and
// NewTestLogger to capture messages in tests.
package logger
