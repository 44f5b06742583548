package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hasangilak/taskengine/internal/config"
)

// New builds a sugared logger for the given level and format ("console" or "json").
// Output goes to stderr.
func New(cfg config.LogConfig) (*zap.SugaredLogger, error) {
	return build(cfg, nil)
}

// NewFile is New with output appended to path instead of stderr, for when the
// terminal belongs to the dashboard.
func NewFile(cfg config.LogConfig, path string) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return build(cfg, []string{path})
}

func build(cfg config.LogConfig, outputs []string) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = level > zapcore.DebugLevel
	if outputs != nil {
		zc.OutputPaths = outputs
		zc.ErrorOutputPaths = outputs
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Install makes logger the process-wide zap logger and returns a restore func.
func Install(logger *zap.SugaredLogger) func() {
	return zap.ReplaceGlobals(logger.Desugar())
}
