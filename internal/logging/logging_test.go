package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		in      string
		verbose bool
		want    zapcore.Level
	}{
		{"", false, zapcore.InfoLevel},
		{"debug", false, zapcore.DebugLevel},
		{"WARN", false, zapcore.WarnLevel},
		{"error", false, zapcore.ErrorLevel},
		{"error", true, zapcore.DebugLevel},
		{"nonsense", false, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := level(tt.in, tt.verbose); got != tt.want {
			t.Errorf("level(%q, %v) = %v, want %v", tt.in, tt.verbose, got, tt.want)
		}
	}
}
