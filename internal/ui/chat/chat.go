// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the transcript pane: streaming rendering,
// composer, reply mode, regenerate and cancellation.
package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/pipeline"
	"github.com/skeinlabs/skein-tui/internal/scroll"
	"github.com/skeinlabs/skein-tui/internal/store"
	"github.com/skeinlabs/skein-tui/internal/ui/styles"
	"github.com/skeinlabs/skein-tui/internal/util"
)

// =============================================================================
// MESSAGES
// =============================================================================

// PipelineEventMsg wraps a pipeline event for the update loop.
type PipelineEventMsg struct {
	Event pipeline.Event
}

// StreamTickMsg re-renders the transcript at a capped rate while a
// response streams, instead of once per token.
type StreamTickMsg struct {
	Time time.Time
}

// streamTickInterval caps streaming re-renders at ~30fps.
const streamTickInterval = 33 * time.Millisecond

func streamTickCmd() tea.Cmd {
	return tea.Tick(streamTickInterval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the transcript pane.
type Model struct {
	store *store.Store
	pipe  *pipeline.Pipeline
	ctrl  *scroll.Controller

	viewport viewport.Model
	input    textarea.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	// Reply mode state. replyTo is attached to the next send.
	replyTo *model.ReplyRef

	errText   string
	streaming bool

	width   int
	height  int
	focused bool

	showCost   bool
	showTokens bool
}

// New creates the transcript pane.
func New(st *store.Store, pipe *pipeline.Pipeline, ctrl *scroll.Controller, showCost, showTokens bool) Model {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.ShowLineNumbers = false
	input.SetHeight(3)
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.AssistantLabel

	return Model{
		store:      st,
		pipe:       pipe,
		ctrl:       ctrl,
		viewport:   viewport.New(0, 0),
		input:      input,
		spin:       sp,
		showCost:   showCost,
		showTokens: showTokens,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// SetSize sets the pane dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height

	inputHeight := m.input.Height() + 2
	vpHeight := height - inputHeight - 2
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.input.SetWidth(width - 2)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err == nil {
		m.renderer = renderer
	}

	m.ctrl.SetViewportHeight(vpHeight)
	m.refresh()
}

// Focus gives the composer keyboard focus.
func (m *Model) Focus() {
	m.focused = true
	m.input.Focus()
}

// Blur removes keyboard focus.
func (m *Model) Blur() {
	m.focused = false
	m.input.Blur()
}

// Focused reports keyboard focus.
func (m Model) Focused() bool { return m.focused }

// Streaming reports whether a response is in flight.
func (m Model) Streaming() bool { return m.streaming }

// OnSwitch re-targets the pane at another entity: jump to bottom, clear
// transient state.
func (m *Model) OnSwitch(entityID string, messageCount int) {
	m.ctrl.SwitchEntity(entityID, messageCount)
	m.replyTo = nil
	m.errText = ""
	m.refresh()
	m.viewport.GotoBottom()
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles transcript input and pipeline events.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case PipelineEventMsg:
		return m.handlePipelineEvent(msg.Event)

	case StreamTickMsg:
		if m.streaming {
			m.refresh()
			return m, streamTickCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.send()

	case "esc":
		if m.streaming {
			m.pipe.Cancel()
			return m, nil
		}
		if m.replyTo != nil {
			m.clearReply()
			return m, nil
		}
		m.errText = ""
		return m, nil

	case "ctrl+r":
		return m.regenerateLast()

	case "ctrl+y":
		m.startReplyToLast()
		return m, nil

	case "ctrl+e":
		m.exportActive()
		return m, nil

	case "pgup":
		return m.scrollBy(-m.viewport.Height), nil

	case "pgdown":
		return m.scrollBy(m.viewport.Height), nil

	case "ctrl+end":
		m.ctrl.ScrollToBottom()
		m.viewport.SetYOffset(m.ctrl.Offset())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		return m.scrollBy(-3), nil
	case tea.MouseButtonWheelDown:
		return m.scrollBy(3), nil
	case tea.MouseButtonLeft:
		if msg.Action == tea.MouseActionPress {
			// A click with live text selection must not re-enable
			// auto-scroll; terminals keep selection on their side, so any
			// click while scrolled up is treated as selection-intent.
			m.ctrl.HandleClick(m.ctrl.UserHasScrolled())
			m.viewport.SetYOffset(m.ctrl.Offset())
		}
	}
	return m, nil
}

// scrollBy routes a scroll through the controller's throttle and
// tolerance-band logic.
func (m Model) scrollBy(delta int) Model {
	if m.ctrl.HandleScroll(m.viewport.YOffset + delta) {
		m.viewport.SetYOffset(m.ctrl.Offset())
	}
	return m
}

// =============================================================================
// SEND / REGENERATE / REPLY
// =============================================================================

func (m Model) send() (Model, tea.Cmd) {
	content := m.input.Value()
	replyTo := m.replyTo

	_, err := m.pipe.Send(context.Background(), content, nil, replyTo)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyMessage) {
			return m, nil
		}
		if errors.Is(err, pipeline.ErrExchangeInFlight) {
			m.errText = "Wait for the current response to finish"
			return m, nil
		}
		m.errText = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.clearReply()
	m.errText = ""
	m.streaming = true
	m.ctrl.ScrollToBottom()
	m.refresh()
	return m, streamTickCmd()
}

func (m Model) regenerateLast() (Model, tea.Cmd) {
	entity := m.store.ActiveEntity()
	if entity == nil {
		return m, nil
	}

	// Regenerate the newest settled assistant message.
	var target string
	for i := len(entity.Messages) - 1; i >= 0; i-- {
		msg := entity.Messages[i]
		if msg.Role == model.RoleAssistant && msg.IsTerminal() {
			target = msg.ID
			break
		}
	}
	if target == "" {
		return m, nil
	}

	if _, err := m.pipe.Regenerate(context.Background(), target); err != nil {
		if !errors.Is(err, pipeline.ErrExchangeInFlight) {
			m.errText = err.Error()
		}
		return m, nil
	}
	m.errText = ""
	m.streaming = true
	m.refresh()
	return m, streamTickCmd()
}

// startReplyToLast quotes the newest assistant message and freezes the
// viewport so it stays on screen while composing.
func (m *Model) startReplyToLast() {
	entity := m.store.ActiveEntity()
	if entity == nil {
		return
	}
	for i := len(entity.Messages) - 1; i >= 0; i-- {
		msg := entity.Messages[i]
		if msg.Role == model.RoleAssistant && msg.Status == model.StatusCompleted {
			m.replyTo = model.NewReplyRef(msg)
			m.ctrl.EnterReplyMode()
			return
		}
	}
}

// exportActive writes the active conversation to ~/.skein/exports/ as
// Markdown and JSON.
func (m *Model) exportActive() {
	entity := m.store.ActiveEntity()
	if entity == nil || entity.MessageCount() == 0 {
		return
	}

	dir := exportDir()
	mdPath := filepath.Join(dir, entity.ID+".md")
	if err := util.AtomicWriteFile(mdPath, []byte(entity.ExportMarkdown()), 0600); err != nil {
		m.errText = "Export failed: " + err.Error()
		return
	}
	if data, err := entity.ExportJSON(); err == nil {
		if err := util.AtomicWriteFile(filepath.Join(dir, entity.ID+".json"), data, 0600); err != nil {
			m.errText = "Export failed: " + err.Error()
			return
		}
	}
	m.errText = "Exported to " + mdPath
}

func exportDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skein-exports")
	}
	return filepath.Join(home, ".skein", "exports")
}

func (m *Model) clearReply() {
	if m.replyTo == nil {
		return
	}
	m.replyTo = nil
	m.ctrl.ExitReplyMode()
	m.viewport.SetYOffset(m.ctrl.Offset())
}

// =============================================================================
// PIPELINE EVENTS
// =============================================================================

func (m Model) handlePipelineEvent(ev pipeline.Event) (Model, tea.Cmd) {
	active := m.store.ActiveEntity()

	switch ev := ev.(type) {
	case pipeline.StartedEvent:
		m.streaming = true
		return m, streamTickCmd()

	case pipeline.ChunkEvent:
		// Chunks for non-active entities still land in the store; the
		// view only redraws for the one on screen.
		if active != nil && active.ID == ev.EntityID {
			m.refresh()
		}
		return m, nil

	case pipeline.CompletedEvent:
		m.streaming = false
		if active != nil && active.ID == ev.EntityID {
			m.ctrl.ObserveMessageCount(active.MessageCount())
			m.refresh()
		}
		return m, nil

	case pipeline.CancelledEvent:
		m.streaming = false
		m.refresh()
		return m, nil

	case pipeline.FailedEvent:
		m.streaming = false
		m.errText = "Response failed"
		if active != nil && active.ID == ev.EntityID {
			m.refresh()
		}
		return m, nil
	}
	return m, nil
}
