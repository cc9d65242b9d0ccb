// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger builds the daemon's zap logger: a console core on stderr
// plus an optional rotating JSON file core, sharing one runtime-adjustable
// level.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output selects where log lines go
type Output string

// Outputs
const (
	OutputNone    Output = "none"
	OutputConsole Output = "console"
	OutputFile    Output = "file"
	OutputBoth    Output = "both"
)

// Options configure New
type Options struct {
	Level   string
	Output  Output
	File    string
	MaxSize int // MB
	Backups int
	MaxAge  int // days

	console io.Writer
}

// DefaultOptions logs info and above to the console.
func DefaultOptions() Options {
	return Options{
		Level:   "info",
		Output:  OutputConsole,
		File:    "/var/log/penumbra/penumbra.log",
		MaxSize: 10,
		Backups: 7,
		MaxAge:  7,
	}
}

// Logger wraps the zap logger with its level and file sink
type Logger struct {
	*zap.Logger

	level zap.AtomicLevel
	file  *lumberjack.Logger
}

// New creates a logger from opts.
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if err := SetLevelText(level, opts.Level); err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	l := &Logger{level: level}
	var cores []zapcore.Core

	if opts.Output == OutputConsole || opts.Output == OutputBoth {
		w := opts.console
		if w == nil {
			w = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.AddSync(w),
			level,
		))
	}

	if opts.Output == OutputFile || opts.Output == OutputBoth {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.Backups,
			MaxAge:     opts.MaxAge,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(l.file),
			level,
		))
	}

	if len(cores) == 0 {
		l.Logger = zap.NewNop()
		return l, nil
	}
	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return l, nil
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(text string) error {
	return SetLevelText(l.level, text)
}

// Level returns the current level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevelText parses text ("debug", "info", ...) into level. An empty
// string leaves the level unchanged.
func SetLevelText(level zap.AtomicLevel, text string) error {
	if text == "" {
		return nil
	}
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return fmt.Errorf("log level %q: %w", text, err)
	}
	return nil
}

// ParseOutput maps the historical logOutput values ("0" disable, "1"
// console, "3" file) and the names above to an Output.
func ParseOutput(s string) Output {
	switch s {
	case "0", string(OutputNone):
		return OutputNone
	case "3", string(OutputFile):
		return OutputFile
	case string(OutputBoth):
		return OutputBoth
	default:
		return OutputConsole
	}
}
