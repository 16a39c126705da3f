// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui composes the skein TUI: sidebar and transcript panes over
// one shared store, with pipeline events bridged into the update loop.
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skeinlabs/skein-tui/internal/api"
	"github.com/skeinlabs/skein-tui/internal/config"
	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/notify"
	"github.com/skeinlabs/skein-tui/internal/pipeline"
	"github.com/skeinlabs/skein-tui/internal/scroll"
	"github.com/skeinlabs/skein-tui/internal/storage"
	"github.com/skeinlabs/skein-tui/internal/store"
	"github.com/skeinlabs/skein-tui/internal/ui/chat"
	"github.com/skeinlabs/skein-tui/internal/ui/sidebar"
	"github.com/skeinlabs/skein-tui/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// historyMsg carries the backend conversation history.
type historyMsg struct {
	conversations []*model.Conversation
	fromCache     bool
	err           error
}

// modelsMsg carries the backend model catalog.
type modelsMsg struct {
	models []model.ModelDescriptor
	err    error
}

// switchedMsg fires when the store's active entity changed, from any
// source: sidebar, deletes, optimistic-create rollback.
type switchedMsg struct {
	entityID string
	count    int
}

// configReloadedMsg fires when the config file changed on disk.
type configReloadedMsg struct {
	cfg *config.Config
}

// =============================================================================
// APP
// =============================================================================

// App is the root bubbletea model.
type App struct {
	store  *store.Store
	client *api.Client
	pipe   *pipeline.Pipeline
	cache  *storage.Cache
	cfg    *config.Config

	sidebar sidebar.Model
	chat    chat.Model

	// events bridges goroutines (pipeline, store hooks, config watcher)
	// into the update loop.
	events chan tea.Msg

	width  int
	height int
	ready  bool
}

// NewApp wires the application together.
func NewApp(cfg *config.Config, st *store.Store, client *api.Client, cache *storage.Cache) *App {
	events := make(chan tea.Msg, 64)
	post := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
			logger.Warn("ui: dropped event %T, queue full", msg)
		}
	}

	pipe := pipeline.New(st, client, func(ev pipeline.Event) {
		post(chat.PipelineEventMsg{Event: ev})
	})
	pipe.SetModel(cfg.DefaultModel)

	st.SetSwitchHook(func(entityID string, count int) {
		post(switchedMsg{entityID: entityID, count: count})
	})

	session := scroll.NewSessionContext()
	ctrl := scroll.NewController(cfg.Tuning.ScrollToleranceRows, session)

	app := &App{
		store:   st,
		client:  client,
		pipe:    pipe,
		cache:   cache,
		cfg:     cfg,
		sidebar: sidebar.New(st, time.Duration(cfg.Tuning.SearchDebounceMs)*time.Millisecond),
		chat:    chat.New(st, pipe, ctrl, cfg.UI.ShowCost, cfg.UI.ShowTokens),
		events:  events,
	}
	app.chat.Focus()
	return app
}

// Post delivers a message into the update loop from outside. Used by the
// config watcher.
func (a *App) Post(msg tea.Msg) {
	select {
	case a.events <- msg:
	default:
	}
}

// OnConfigReload is the config watcher callback.
func (a *App) OnConfigReload(cfg *config.Config) {
	a.Post(configReloadedMsg{cfg: cfg})
}

// =============================================================================
// INIT
// =============================================================================

// Init starts history and catalog loading plus the event bridge.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.chat.Init(),
		a.loadCacheCmd(),
		a.loadHistoryCmd(),
		a.loadModelsCmd(),
		a.listenCmd(),
	)
}

// listenCmd forwards one bridged event per invocation; each handler
// re-arms it.
func (a *App) listenCmd() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

func (a *App) loadCacheCmd() tea.Cmd {
	return func() tea.Msg {
		if a.cache == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		convs, err := a.cache.LoadConversations(ctx, "")
		if err != nil {
			logger.Warn("ui: cache load failed: %v", err)
			return nil
		}
		return historyMsg{conversations: convs, fromCache: true}
	}
}

func (a *App) loadHistoryCmd() tea.Cmd {
	limit := a.cfg.Backend.HistoryLimit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		convs, err := a.client.GetChatHistory(ctx, limit)
		return historyMsg{conversations: convs, err: err}
	}
}

func (a *App) loadModelsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		models, err := a.client.GetModels(ctx)
		return modelsMsg{models: models, err: err}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update routes messages to the panes.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		a.ready = true
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "tab":
			a.toggleFocus()
			return a, nil
		}
		return a.routeKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		a.chat, cmd = a.chat.Update(msg)
		return a, cmd

	case historyMsg:
		return a.handleHistory(msg)

	case modelsMsg:
		return a.handleModels(msg)

	case switchedMsg:
		a.chat.OnSwitch(msg.entityID, msg.count)
		a.sidebar.Rebuild()
		return a, a.listenCmd()

	case configReloadedMsg:
		a.applyConfig(msg.cfg)
		return a, a.listenCmd()

	case chat.PipelineEventMsg:
		return a.handlePipelineEvent(msg)

	case sidebar.SwitchedMsg, sidebar.DeletedMsg, sidebar.SearchTickMsg:
		return a.routeSidebar(msg)
	}

	// Everything else (spinner ticks, stream ticks) belongs to the chat
	// pane.
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	return a, cmd
}

func (a *App) routeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.sidebar.Focused() {
		var cmd tea.Cmd
		a.sidebar, cmd = a.sidebar.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)
	return a, cmd
}

func (a *App) routeSidebar(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sidebar.SwitchedMsg:
		// The store hook already re-targeted the chat pane; nothing
		// extra beyond a rebuild.
		a.sidebar.Rebuild()
		return a, nil

	case sidebar.DeletedMsg:
		a.persistSnapshots()
		return a, nil

	case sidebar.SearchTickMsg:
		var cmd tea.Cmd
		a.sidebar, cmd = a.sidebar.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) toggleFocus() {
	if a.sidebar.Focused() {
		a.sidebar.Blur()
		a.chat.Focus()
	} else {
		a.chat.Blur()
		a.sidebar.Focus()
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (a *App) handleHistory(msg historyMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		logger.Warn("ui: history load failed: %v", msg.err)
		a.sidebar.Rebuild()
		return a, nil
	}
	if len(msg.conversations) > 0 {
		// Backend history replaces the cache snapshot; the cache only
		// bridges the gap before the network answers.
		a.store.LoadHistory(msg.conversations)
	}
	a.sidebar.Rebuild()
	if !msg.fromCache {
		a.persistSnapshots()
	}
	return a, nil
}

func (a *App) handleModels(msg modelsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		logger.Warn("ui: model catalog load failed: %v", msg.err)
		return a, nil
	}
	catalog := model.NewCatalog(msg.models)
	a.pipe.SetCatalog(catalog)
	if a.cfg.DefaultModel == "" && catalog.Len() > 0 {
		a.pipe.SetModel(catalog.All()[0].ID)
	}
	return a, nil
}

func (a *App) handlePipelineEvent(msg chat.PipelineEventMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.chat, cmd = a.chat.Update(msg)

	switch ev := msg.Event.(type) {
	case pipeline.CompletedEvent:
		a.sidebar.Rebuild()
		a.saveEntity(ev.EntityID)
		if a.cfg.UI.Notifications {
			if conv := a.store.ConversationByID(ev.EntityID); conv != nil {
				notify.ResponseReady(conv.DisplayTitle(), conv.Preview())
			}
		}
	case pipeline.FailedEvent:
		a.sidebar.Rebuild()
		if a.cfg.UI.Notifications {
			if conv := a.store.ConversationByID(ev.EntityID); conv != nil {
				notify.ResponseFailed(conv.DisplayTitle())
			}
		}
	case pipeline.CancelledEvent:
		a.saveEntity(ev.EntityID)
	}

	return a, tea.Batch(cmd, a.listenCmd())
}

func (a *App) applyConfig(cfg *config.Config) {
	a.cfg = cfg
	styles.ApplyTheme(cfg.UI.Theme)
	if cfg.DefaultModel != "" {
		a.pipe.SetModel(cfg.DefaultModel)
	}
	a.layout()
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (a *App) saveEntity(entityID string) {
	if a.cache == nil {
		return
	}
	conv := a.store.ConversationByID(entityID)
	if conv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.cache.SaveConversation(ctx, conv, ""); err != nil {
		logger.Warn("ui: snapshot save failed: %v", err)
	}
}

// persistSnapshots writes the full store state to the local cache.
func (a *App) persistSnapshots() {
	if a.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, conv := range a.store.Conversations() {
		if err := a.cache.SaveConversation(ctx, conv, ""); err != nil {
			logger.Warn("ui: snapshot save failed: %v", err)
			return
		}
	}
	for _, conv := range a.store.DeletedConversations() {
		if err := a.cache.SaveConversation(ctx, conv, ""); err != nil {
			logger.Warn("ui: snapshot save failed: %v", err)
			return
		}
		if err := a.cache.RecordDeletion(ctx, conv.ID, "conversation", conv.DisplayTitle(), false); err != nil {
			logger.Warn("ui: ledger write failed: %v", err)
		}
	}
	for _, proj := range a.store.Projects() {
		if err := a.cache.SaveProject(ctx, proj); err != nil {
			logger.Warn("ui: project save failed: %v", err)
			return
		}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the two panes side by side.
func (a *App) View() string {
	if !a.ready {
		return "loading..."
	}

	sidebarStyle := styles.SidebarBorder
	chatStyle := styles.ChatBorderFocused
	if a.sidebar.Focused() {
		sidebarStyle = styles.SidebarBorderFocused
		chatStyle = styles.ChatBorder
	}

	sidebarView := sidebarStyle.
		Width(a.cfg.UI.SidebarWidth).
		Height(a.height - 2).
		Render(a.sidebar.View())

	chatWidth := a.width - a.cfg.UI.SidebarWidth - 4
	chatView := chatStyle.
		Width(chatWidth).
		Height(a.height - 2).
		Render(a.chat.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, sidebarView, chatView)
}

func (a *App) layout() {
	sidebarWidth := a.cfg.UI.SidebarWidth
	if sidebarWidth > a.width/2 {
		sidebarWidth = a.width / 2
	}
	a.sidebar.SetSize(sidebarWidth, a.height-2)
	a.chat.SetSize(a.width-sidebarWidth-4, a.height-2)
}
