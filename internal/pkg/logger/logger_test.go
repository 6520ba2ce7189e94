package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"
)

func resetLogger() {
	global = nil
	once = sync.Once{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"json info", "info", "json", zapcore.InfoLevel, false},
		{"console debug", "debug", "console", zapcore.DebugLevel, false},
		{"json warn", "warn", "json", zapcore.WarnLevel, false},
		{"console error", "error", "console", zapcore.ErrorLevel, false},
		{"invalid level", "loud", "json", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogger()
			err := Init(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
			if !tt.wantErr && GetLevel() != tt.wantLevel {
				t.Errorf("GetLevel() = %v, want %v", GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	resetLogger()
	if err := Init("info", "json"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if GetLevel() != zapcore.DebugLevel {
		t.Errorf("GetLevel() = %v, want DebugLevel", GetLevel())
	}
	if LevelHandler().Level() != zapcore.DebugLevel {
		t.Errorf("LevelHandler().Level() = %v, want DebugLevel", LevelHandler().Level())
	}

	if err := SetLevel("nonsense"); err == nil {
		t.Error("SetLevel(nonsense) expected error")
	}
}

func TestNamed(t *testing.T) {
	resetLogger()
	if err := Init("error", "console"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if Named("catalog") == nil {
		t.Fatal("Named() returned nil")
	}
}

func TestL_PanicsBeforeInit(t *testing.T) {
	resetLogger()
	defer func() {
		if recover() == nil {
			t.Fatal("L() should panic before Init")
		}
	}()
	_ = L()
}

func TestSync(t *testing.T) {
	resetLogger()
	if err := Sync(); err != nil {
		t.Errorf("Sync() on nil logger error = %v", err)
	}
	if err := Init("info", "json"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_ = Sync()
}

func TestHelpers_ReportCallerAndLevel(t *testing.T) {
	resetLogger()
	path := filepath.Join(t.TempDir(), "vmdash.log")
	if err := Init("info", "json", path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Debug("hidden")
	Warn("catalog reload failed")
	Named("hub").Info("client joined")
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), data)
	}
	for _, line := range lines {
		if !strings.Contains(line, "logger/logger_test.go") {
			t.Errorf("caller should be the test file: %s", line)
		}
	}
	if !strings.Contains(lines[1], `"component":"hub"`) {
		t.Errorf("Named() entry lacks component: %s", lines[1])
	}
}
