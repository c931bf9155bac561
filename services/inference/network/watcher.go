// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package network

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var networkReloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bayes_network_reloads_total",
	Help: "Network definition reloads by outcome",
}, []string{"status"})

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait after the last event before
	// reloading. Editors often write a file in several steps.
	// Default: 200ms.
	DebounceWindow time.Duration

	// Logger receives reload outcomes. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultWatcherOptions returns the default watcher options.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{DebounceWindow: 200 * time.Millisecond}
}

// Watcher reloads a network definition file when it changes.
//
// Description:
//
//	The file's directory is watched rather than the file itself, so
//	editors that replace the file by rename are handled. After a burst of
//	events settles, the file is loaded; a successful load is passed to the
//	callback and a failed one is logged and counted, leaving the caller's
//	current network in place.
//
// Thread Safety: Start and Stop are safe for concurrent use. The callback
// runs on the watcher goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onLoad   func(*Network)
	debounce time.Duration
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
//
// Inputs:
//   - path: The definition file.
//   - onLoad: Called with each successfully reloaded network. Must not be nil.
//   - opts: Options. Nil uses DefaultWatcherOptions.
func NewWatcher(path string, onLoad func(*Network), opts *WatcherOptions) (*Watcher, error) {
	if onLoad == nil {
		return nil, fmt.Errorf("watcher for %s: nil callback", path)
	}
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watcher for %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher for %s: %w", path, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.DebounceWindow
	if debounce <= 0 {
		debounce = DefaultWatcherOptions().DebounceWindow
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		onLoad:   onLoad,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "network_watcher"), slog.String("path", abs)),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns immediately; events are handled until
// ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.loop(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	n, err := Load(w.path)
	if err != nil {
		networkReloads.WithLabelValues("error").Inc()
		w.logger.Warn("network reload failed, keeping current network", slog.String("error", err.Error()))
		return
	}
	networkReloads.WithLabelValues("ok").Inc()
	w.logger.Info("network reloaded",
		slog.String("name", n.Name()),
		slog.String("fingerprint", n.Fingerprint()),
	)
	w.onLoad(n)
}
