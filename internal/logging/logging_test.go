package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level     string
		enabled   zapcore.Level
		disabled  zapcore.Level
		wantError bool
	}{
		{level: "debug", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{level: "", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{level: "WARN", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{level: "error", enabled: zapcore.ErrorLevel, disabled: zapcore.WarnLevel},
		{level: "loud", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Options{Level: tt.level, OutputPaths: []string{filepath.Join(t.TempDir(), "log")}})
			if tt.wantError {
				if err == nil {
					t.Fatal("New() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("level %s not enabled", tt.enabled)
			}
			if logger.Core().Enabled(tt.disabled) {
				t.Errorf("level %s unexpectedly enabled", tt.disabled)
			}
		})
	}
}

func TestNew_Off(t *testing.T) {
	logger, err := New(Options{Level: "off"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("off logger should not enable any level")
	}
}

func TestNew_JSONOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	logger, err := New(Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("evidence package written", zap.String("dir", "evidence_20260314_092653"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "evidence package written" || entry["dir"] != "evidence_20260314_092653" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("entry missing ts")
	}
}

func TestNew_BadFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("New() with format xml should fail")
	}
}

func TestValidLevel(t *testing.T) {
	for level, want := range map[string]bool{
		"debug": true,
		"off":   true,
		"":      true,
		"Info":  true,
		"trace": false,
	} {
		if got := ValidLevel(level); got != want {
			t.Errorf("ValidLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
