// Package config loads and validates the Printwatch Core application
// configuration.
//
// Load applies three layers in order: built-in defaults, the YAML file,
// then PRINTWATCH_* environment variables, and validates the result.
// Secrets (MQTT password, InfluxDB token) should arrive through the
// environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The printer fleet itself is not part of this file: cfg.Printers.File
// points at the separate registry document owned by the registry
// package, which can be re-read at runtime without restarting.
package config
