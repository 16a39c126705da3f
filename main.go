// skein TUI - a terminal chat client with projects, streaming and
// offline history.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skeinlabs/skein-tui/internal/api"
	"github.com/skeinlabs/skein-tui/internal/config"
	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/storage"
	"github.com/skeinlabs/skein-tui/internal/store"
	"github.com/skeinlabs/skein-tui/internal/ui"
	"github.com/skeinlabs/skein-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var debug bool
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v":
			fmt.Printf("skein %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "--debug":
			debug = true
		case "--help", "-h":
			usage()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", arg)
			usage()
			os.Exit(2)
		}
	}

	if err := logger.Init(logger.DefaultLogPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.SetDebug(debug)
	logger.Info("skein %s starting", Version)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	config.SetGlobal(cfg)
	styles.ApplyTheme(cfg.UI.Theme)

	retention := time.Duration(cfg.Tuning.RetentionDays) * 24 * time.Hour

	// A broken cache degrades to memory-only; history reloads from the
	// backend.
	cache, err := storage.Open(storage.DefaultCachePath(), retention)
	if err != nil {
		logger.Warn("main: local cache unavailable: %v", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	st := store.New()
	st.SetRetention(retention)

	client := api.NewClient(api.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
	})

	app := ui.NewApp(cfg, st, client, cache)

	watcher, err := config.Watch(app.OnConfigReload)
	if err != nil {
		logger.Warn("main: config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	p := tea.NewProgram(
		app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running skein: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`skein - terminal chat client

Usage:
  skein [flags]

Flags:
  --debug      enable debug logging
  -v, --version    print version and exit
  -h, --help       show this help`)
}
