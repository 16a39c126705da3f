// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logger writes structured diagnostics to a file so the terminal
// UI stays clean. Invalid operations and dropped stale writes end up here,
// never on stdout.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu       sync.Mutex
	once     sync.Once
	slogger  *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	initDone bool
)

// DefaultLogPath returns the log file location under the user's home.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skein.log")
	}
	return filepath.Join(home, ".skein", "skein.log")
}

// Init opens the log file at path. Safe to call more than once; later
// calls are no-ops.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	levelVar.Set(slog.LevelInfo)
	slogger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	return nil
}

// SetDebug toggles debug-level output.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

func ensureInit() {
	if !initDone {
		once.Do(func() {
			_ = Init(DefaultLogPath())
		})
	}
}

func logWithLevel(level slog.Level, format string, args ...interface{}) {
	ensureInit()

	mu.Lock()
	defer mu.Unlock()
	if slogger == nil {
		return
	}
	if !slogger.Enabled(context.Background(), level) {
		return
	}
	slogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Debug writes a debug message to the log file.
func Debug(format string, args ...interface{}) {
	logWithLevel(slog.LevelDebug, format, args...)
}

// Info writes an info message to the log file.
func Info(format string, args ...interface{}) {
	logWithLevel(slog.LevelInfo, format, args...)
}

// Warn writes a warning message to the log file.
func Warn(format string, args ...interface{}) {
	logWithLevel(slog.LevelWarn, format, args...)
}

// Error writes an error message to the log file.
func Error(format string, args ...interface{}) {
	logWithLevel(slog.LevelError, format, args...)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	slogger = nil
}
