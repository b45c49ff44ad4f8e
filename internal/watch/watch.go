// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package watch reloads files when they change on disk.
//
// Directories are watched rather than files so that editors which save
// by writing a temporary file and renaming it over the original keep
// triggering events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watch: watcher closed")

// Handler is called with the changed path after the debounce delay.
type Handler func(path string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before its handler runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger for reload results and watcher errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// Watcher dispatches file change events to per-file handlers.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	closed   bool
	handlers map[string]Handler
	dirs     map[string]int
	timers   map[string]*time.Timer

	fire chan string
	done chan struct{}
}

// New creates a Watcher. Call Run to start dispatching.
func New(opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		fs:       fs,
		debounce: 100 * time.Millisecond,
		log:      slog.New(slog.DiscardHandler),
		handlers: make(map[string]Handler),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		fire:     make(chan string, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch registers h for path, replacing any previous handler.
func (w *Watcher) Watch(path string, h Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.handlers[abs]; !ok {
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				return fmt.Errorf("watch: add %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
	}
	w.handlers[abs] = h
	return nil
}

// Unwatch removes the handler for path.
func (w *Watcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[abs]; !ok {
		return nil
	}
	delete(w.handlers, abs)
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}
	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if w.closed {
		return nil
	}
	return w.fs.Remove(dir)
}

// Run dispatches events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case e, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.event(e)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch: fsnotify error", "err", err)
		case path := <-w.fire:
			w.dispatch(path)
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// event schedules the handler of a relevant write, create or rename.
func (w *Watcher) event(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) && !e.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(e.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[abs]; !ok || w.closed {
		return
	}
	if t, ok := w.timers[abs]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[abs] = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- abs:
		case <-w.done:
		}
	})
}

func (w *Watcher) dispatch(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	h, ok := w.handlers[path]
	w.mu.Unlock()
	if !ok {
		return
	}
	if err := h(path); err != nil {
		w.log.Warn("watch: reload failed", "path", path, "err", err)
		return
	}
	w.log.Info("watch: reloaded", "path", path)
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	close(w.done)
	return w.fs.Close()
}
