package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hasangilak/taskengine/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "console info", cfg: config.LogConfig{Level: "info", Format: "console"}, wantLevel: zapcore.InfoLevel},
		{name: "json debug", cfg: config.LogConfig{Level: "debug", Format: "json"}, wantLevel: zapcore.DebugLevel},
		{name: "empty format defaults to console", cfg: config.LogConfig{Level: "warn"}, wantLevel: zapcore.WarnLevel},
		{name: "bad level", cfg: config.LogConfig{Level: "loud", Format: "json"}, wantErr: true},
		{name: "bad format", cfg: config.LogConfig{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := logger.Level(); got != tt.wantLevel {
				t.Errorf("level = %s, want %s", got, tt.wantLevel)
			}
		})
	}
}

func TestInstall(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Install(zap.New(core).Sugar())
	defer restore()

	zap.S().Named("engine").Infow("started", "workers", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry through the global logger, got %d", len(entries))
	}
	if entries[0].LoggerName != "engine" || entries[0].ContextMap()["workers"] != int64(2) {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger, err := NewFile(config.LogConfig{Level: "info", Format: "json"}, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Infow("task finished", "task_id", "job-1")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"task_id":"job-1"`) {
		t.Errorf("expected structured entry in log file, got %q", data)
	}
}
