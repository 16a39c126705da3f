// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skeinlabs/skein-tui/internal/logger"
)

// =============================================================================
// FILE WATCHER
// =============================================================================

// debounceWindow coalesces the write bursts editors produce on save.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads the global configuration when the config file changes
// on disk and reports the fresh config to a callback. Theme switches
// take effect without a restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	done     chan struct{}
}

// Watch starts watching the default config file. onChange runs on the
// watcher goroutine after each successful reload.
func Watch(onChange func(*Config)) (*Watcher, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return WatchPath(path, onChange)
}

// WatchPath starts watching a specific config file.
func WatchPath(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, and a watch on
	// the file itself dies with the old inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		// A half-written or invalid file keeps the previous config.
		logger.Warn("config: reload failed, keeping previous: %v", err)
		return
	}
	SetGlobal(cfg)
	logger.Info("config: reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
