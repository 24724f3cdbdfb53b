// Package logging wires a structured zap logger for every manager. Each
// manager gets its own *zap.SugaredLogger named after it and derived from
// one base logger, so log lines carry the component's name as the logger
// name without each manager needing to know about the others.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the gateway's base logger. Output goes to stderr in a
// console encoding during development-shaped runs; the operational
// one-line-per-event sensor-alert stream goes through the separate
// internal/logwriter channel instead — this logger is for process
// diagnostics, not the sensor-alert log.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Component returns a sugared logger tagged with the given component name,
// e.g. "connmgr", "datamgr", "storagemgr", "orchestrator".
func Component(base *zap.Logger, name string) *zap.SugaredLogger {
	return base.Named(name).Sugar()
}
