// Package logger provides structured logging for the portal session engine.
//
// This package wraps Uber's zap logger. Log is a no-op logger until
// InitLogger is called, so library code can log unconditionally:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
//	logger.Log.Warn("session store write failed",
//	    zap.String("op", "save"),
//	    zap.Error(err),
//	)
//
// Access tokens and passwords must never be passed to the logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It starts as a no-op logger rather than nil
// so packages and tests that never call InitLogger can log without a check.
var Log = zap.NewNop()

// InitLogger replaces Log with a production JSON logger at level. An
// unknown level falls back to info.
func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
}
