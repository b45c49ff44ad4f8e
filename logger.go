// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package autoexposure

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/autoexposure/gpucore"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for autoexposure and the adapters of
// every open AutoExposure. By default nothing is logged.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: pipeline cache, buffer and bind group diagnostics
//   - [slog.LevelInfo]: lifecycle events (pipelines built, views added)
//   - [slog.LevelWarn]: views disabled by pipeline build failures
//
// Example:
//
//	autoexposure.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for a := range liveAdapters {
		propagateLogger(a, l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by adapters that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

var (
	liveMu       sync.Mutex
	liveAdapters = map[gpucore.GPUAdapter]int{}
)

// trackAdapter registers an adapter in use by an AutoExposure and hands it the current logger.
func trackAdapter(a gpucore.GPUAdapter) {
	liveMu.Lock()
	liveAdapters[a]++
	liveMu.Unlock()
	propagateLogger(a, Logger())
}

func untrackAdapter(a gpucore.GPUAdapter) {
	liveMu.Lock()
	defer liveMu.Unlock()
	if liveAdapters[a]--; liveAdapters[a] <= 0 {
		delete(liveAdapters, a)
	}
}

func propagateLogger(a gpucore.GPUAdapter, l *slog.Logger) {
	if ls, ok := a.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
