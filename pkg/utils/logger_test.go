package utils

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		debug     bool
		wantDebug bool
	}{
		{debug: true, wantDebug: true},
		{debug: false, wantDebug: false},
	}
	for _, tt := range tests {
		logger, err := NewLogger(tt.debug)
		if err != nil {
			t.Fatalf("NewLogger(%t) error: %v", tt.debug, err)
		}
		if got := logger.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
			t.Errorf("NewLogger(%t) debug enabled=%t, want %t", tt.debug, got, tt.wantDebug)
		}
		if !logger.Core().Enabled(zap.InfoLevel) {
			t.Errorf("NewLogger(%t) info disabled", tt.debug)
		}
		_ = logger.Sync()
	}
}
