package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestLogUsableBeforeInit(t *testing.T) {
	if Log == nil {
		t.Fatal("Log must not be nil before InitLogger")
	}
	Log.Info("no-op", zap.String("k", "v"))
}

func TestInitLoggerLevel(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	tests := []struct {
		level string
		debug bool
		info  bool
	}{
		{"debug", true, true},
		{"warn", false, false},
		{"verbose", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitLogger(tt.level)
			if got := Log.Core().Enabled(zap.DebugLevel); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := Log.Core().Enabled(zap.InfoLevel); got != tt.info {
				t.Errorf("info enabled = %v, want %v", got, tt.info)
			}
		})
	}
}
