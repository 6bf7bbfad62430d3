// Package resourceserverlog builds the zap logger shared by the
// server loop, the worker pool, and the request manager.
package resourceserverlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger. In development mode it uses
// zap.NewDevelopment's console encoder at debug level; otherwise it logs
// structured JSON at info level, suitable for a long-running daemon.
func New(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	return cfg.Build()
}
