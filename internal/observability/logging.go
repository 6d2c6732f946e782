// Package observability owns the process-wide CLI logger.
//
// Logs go to stderr so stdout stays clean for data: reports, tables,
// and streamed reads all write to stdout and must never interleave
// with log lines.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLILogger is the shared logger for command output. It is usable
// before Init runs; Init replaces it with the configured logger.
var CLILogger = zap.New(consoleCore(os.Stderr, zapcore.InfoLevel))

// Config controls logger construction.
type Config struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string

	// Profile selects the output shape: "cli" (console encoder) or
	// "structured" (JSON).
	Profile string

	// FilePath enables a rotating JSON file sink alongside the
	// console output. Empty disables it.
	FilePath string

	// FileMaxSizeMB rotates the file sink after this many megabytes.
	FileMaxSizeMB int

	// FileMaxBackups bounds retained rotated files.
	FileMaxBackups int
}

// Init rebuilds CLILogger from cfg.
func Init(cfg Config) error {
	logger, err := NewLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a logger writing console output to w. Split out
// from Init so tests can capture output.
func NewLogger(w zapcore.WriteSyncer, cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("unknown log level %q", cfg.Level)
		}
		level = parsed
	}

	var core zapcore.Core
	switch strings.ToLower(strings.TrimSpace(cfg.Profile)) {
	case "", "cli":
		core = consoleCore(w, level)
	case "structured":
		core = jsonCore(w, level)
	default:
		return nil, fmt.Errorf("unknown logging profile %q (expected cli or structured)", cfg.Profile)
	}

	if cfg.FilePath != "" {
		maxSize := cfg.FileMaxSizeMB
		if maxSize <= 0 {
			maxSize = 20
		}
		maxBackups := cfg.FileMaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
		core = zapcore.NewTee(core, jsonCore(sink, level))
	}

	return zap.New(core), nil
}

// Sync flushes buffered log entries. Errors are ignored: stderr on
// most platforms reports sync as unsupported.
func Sync() {
	_ = CLILogger.Sync()
}

// consoleCore renders human-oriented lines without timestamps.
func consoleCore(w zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), w, level)
}

// jsonCore renders machine-oriented JSON records.
func jsonCore(w zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, level)
}
