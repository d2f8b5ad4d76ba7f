// Package logging is the structured logging layer for Printwatch Core.
//
// It wraps log/slog so every log line carries the service name and
// build version, with format (json/text), level, and destination driven
// by the logging section of config.yaml.
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("printer activated", "device_id", "voron-350")
//
//	sessionLog := log.WithDevice("voron-350")
//	sessionLog.Warn("subscribe timed out")
//
// Component loggers are derived with With, device-scoped loggers with
// WithDevice, so a printer's whole lifecycle is traceable through one
// attribute.
//
// Never log API keys, tokens, or passwords.
package logging
