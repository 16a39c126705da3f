// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sidebar renders the conversation and project list: switching,
// creation, rename, search, multi-select and bulk delete.
package sidebar

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/search"
	"github.com/skeinlabs/skein-tui/internal/selection"
	"github.com/skeinlabs/skein-tui/internal/store"
	"github.com/skeinlabs/skein-tui/internal/ui/styles"
	"github.com/skeinlabs/skein-tui/internal/util"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SearchTickMsg fires when a debounced search may run. Stale generations
// are dropped.
type SearchTickMsg struct {
	Gen int
}

// SwitchedMsg tells the app the active entity changed through the
// sidebar.
type SwitchedMsg struct {
	EntityID string
}

// DeletedMsg tells the app a bulk delete ran.
type DeletedMsg struct {
	Count     int
	Permanent bool
}

// =============================================================================
// MODEL
// =============================================================================

// Mode is the sidebar's input mode.
type Mode int

const (
	ModeList Mode = iota
	ModeSearch
	ModeRename
	ModeNewProject
	ModeConfirmDelete
)

// Item is one rendered sidebar row.
type Item struct {
	// EntityID addresses the row: conversation ID, chat ID, or project
	// ID for headers.
	EntityID string
	// ProjectID is set for chats nested under a project.
	ProjectID string
	Title     string
	Updated   time.Time
	IsProject bool
}

// Model is the sidebar pane.
type Model struct {
	store  *store.Store
	engine *selection.Engine
	deb    *search.Debouncer
	input  textinput.Model

	items  []Item
	cursor int
	mode   Mode

	// Pending confirm-delete state.
	confirmTarget    string
	confirmPermanent bool
	confirmCount     int

	// Live search results; nil when not searching.
	results []search.Result

	width   int
	height  int
	focused bool
}

// New creates the sidebar.
func New(st *store.Store, debounce time.Duration) Model {
	input := textinput.New()
	input.Prompt = "/ "
	input.CharLimit = 120

	return Model{
		store:  st,
		engine: selection.NewEngine(),
		deb:    search.NewDebouncer(debounce),
		input:  input,
	}
}

// SetSize sets the pane dimensions (content area, borders excluded).
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 4
}

// Focus gives the sidebar keyboard focus.
func (m *Model) Focus() { m.focused = true }

// Blur removes keyboard focus.
func (m *Model) Blur() { m.focused = false }

// Focused reports keyboard focus.
func (m Model) Focused() bool { return m.focused }

// Selection exposes the engine for tests and the app model.
func (m *Model) Selection() *selection.Engine { return m.engine }

// =============================================================================
// ITEM LIST
// =============================================================================

// Rebuild regenerates the rendered rows from the store and re-snapshots
// the selection engine's order. Call after any store mutation.
func (m *Model) Rebuild() {
	m.items = m.items[:0]

	if m.results != nil {
		for _, res := range m.results {
			m.items = append(m.items, Item{
				EntityID:  res.EntityID,
				ProjectID: res.ProjectID,
				Title:     res.Title,
			})
		}
	} else {
		for _, conv := range m.store.Conversations() {
			m.items = append(m.items, Item{
				EntityID: conv.ID,
				Title:    conv.DisplayTitle(),
				Updated:  conv.UpdatedAt,
			})
		}
		for _, proj := range m.store.Projects() {
			m.items = append(m.items, Item{
				EntityID:  proj.ID,
				Title:     proj.Name,
				Updated:   proj.UpdatedAt,
				IsProject: true,
			})
			for _, chat := range proj.Chats {
				m.items = append(m.items, Item{
					EntityID:  chat.ID,
					ProjectID: proj.ID,
					Title:     chat.DisplayTitle(),
					Updated:   chat.UpdatedAt,
				})
			}
		}
	}

	// Selection ranges run over selectable rows; project headers are not
	// selectable.
	order := make([]string, 0, len(m.items))
	for _, it := range m.items {
		if !it.IsProject {
			order = append(order, it.EntityID)
		}
	}
	m.engine.SetOrder(order)

	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) itemAt(i int) (Item, bool) {
	if i < 0 || i >= len(m.items) {
		return Item{}, false
	}
	return m.items[i], true
}

func (m *Model) resolve(entityID string) model.Selector {
	return m.store.SelectorFor(entityID)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles sidebar input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case SearchTickMsg:
		return m.handleSearchTick(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeSearch:
		return m.handleSearchKey(msg)
	case ModeRename, ModeNewProject:
		return m.handleEditKey(msg)
	case ModeConfirmDelete:
		return m.handleConfirmKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter":
		return m.activateCursor()

	case " ":
		// Toggle membership, like a modifier-click.
		if it, ok := m.itemAt(m.cursor); ok && !it.IsProject {
			m.engine.ModifierClick(it.EntityID)
		}

	case "v":
		// Range from the anchor, like a shift-click.
		if it, ok := m.itemAt(m.cursor); ok && !it.IsProject {
			m.engine.ShiftClick(it.EntityID)
		}

	case "esc":
		// Selection mode always exits; lingering search results clear in
		// the same press.
		m.engine.Clear()
		if m.results != nil {
			m.results = nil
			m.Rebuild()
		}

	case "n":
		conv := m.store.CreateConversation("")
		m.results = nil
		m.Rebuild()
		m.cursor = 0
		return m, func() tea.Msg { return SwitchedMsg{EntityID: conv.ID} }

	case "p":
		m.mode = ModeNewProject
		m.input.Prompt = "project: "
		m.input.SetValue("")
		m.input.Focus()

	case "a":
		// New chat under the project at the cursor.
		if it, ok := m.itemAt(m.cursor); ok && it.IsProject {
			chat, err := m.store.AddChatToProject(it.EntityID, "")
			if err == nil {
				m.Rebuild()
				return m, func() tea.Msg { return SwitchedMsg{EntityID: chat.ID} }
			}
		}

	case "r":
		if it, ok := m.itemAt(m.cursor); ok {
			m.mode = ModeRename
			m.input.Prompt = "rename: "
			m.input.SetValue(it.Title)
			m.input.Focus()
		}

	case "d":
		return m.beginConfirmDelete(false)

	case "D":
		return m.beginConfirmDelete(true)

	case "/":
		m.mode = ModeSearch
		m.input.Prompt = "/ "
		m.input.SetValue("")
		m.input.Focus()
	}
	return m, nil
}

func (m Model) activateCursor() (Model, tea.Cmd) {
	it, ok := m.itemAt(m.cursor)
	if !ok || it.IsProject {
		return m, nil
	}
	// Activating a selected row only shrinks the selection; the active
	// entity changes when the click falls outside selection mode.
	if !m.engine.PlainClick(it.EntityID) {
		return m, nil
	}
	if err := m.store.SwitchActive(m.resolve(it.EntityID)); err != nil {
		return m, nil
	}
	id := it.EntityID
	return m, func() tea.Msg { return SwitchedMsg{EntityID: id} }
}

// =============================================================================
// SEARCH
// =============================================================================

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ModeList
		m.input.Blur()
		m.results = nil
		m.Rebuild()
		return m, nil
	case "enter":
		m.mode = ModeList
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	// Each keystroke re-arms the debounce; only the newest generation's
	// tick runs a search.
	gen := m.deb.Bump()
	delay := m.deb.Delay()
	tick := tea.Tick(delay, func(time.Time) tea.Msg {
		return SearchTickMsg{Gen: gen}
	})
	return m, tea.Batch(cmd, tick)
}

func (m Model) handleSearchTick(msg SearchTickMsg) (Model, tea.Cmd) {
	if !m.deb.Current(msg.Gen) {
		return m, nil
	}
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		m.results = nil
	} else {
		m.results = search.Query(m.store.Conversations(), m.store.Projects(), query)
		if m.results == nil {
			m.results = []search.Result{}
		}
	}
	m.Rebuild()
	m.cursor = 0
	return m, nil
}

// =============================================================================
// RENAME / NEW PROJECT
// =============================================================================

func (m Model) handleEditKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ModeList
		m.input.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = ModeList
		m.input.Blur()
		if value == "" {
			return m, nil
		}

		if mode == ModeNewProject {
			m.store.CreateProject(value)
		} else if it, ok := m.itemAt(m.cursor); ok {
			if it.IsProject {
				m.store.RenameProject(it.EntityID, value)
			} else {
				m.store.Rename(m.resolve(it.EntityID), value)
			}
		}
		m.Rebuild()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// DELETE
// =============================================================================

func (m Model) beginConfirmDelete(permanent bool) (Model, tea.Cmd) {
	it, ok := m.itemAt(m.cursor)
	if !ok {
		return m, nil
	}

	if it.IsProject {
		m.confirmTarget = it.EntityID
		m.confirmCount = 1
	} else {
		// A delete on an unselected row targets just that row; on a
		// selected row it targets the whole selection.
		targets := m.engine.ContextTargets(it.EntityID)
		m.confirmTarget = it.EntityID
		m.confirmCount = len(targets)
	}
	m.confirmPermanent = permanent
	m.mode = ModeConfirmDelete
	return m, nil
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.mode = ModeList
		return m.executeDelete()
	case "n", "esc":
		m.mode = ModeList
		return m, nil
	}
	return m, nil
}

func (m Model) executeDelete() (Model, tea.Cmd) {
	it, ok := m.itemAt(m.cursor)
	if !ok {
		return m, nil
	}

	var count int
	if it.IsProject {
		del := m.store.DeleteProject
		if m.confirmPermanent {
			del = m.store.DeleteProjectPermanent
		}
		if err := del(it.EntityID); err == nil {
			count = 1
		}
	} else {
		count = m.engine.DeleteTargets(m.confirmTarget, m.confirmPermanent, m.resolve, m.store)
	}

	permanent := m.confirmPermanent
	m.results = nil
	m.Rebuild()
	return m, func() tea.Msg {
		return DeletedMsg{Count: count, Permanent: permanent}
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the sidebar content.
func (m Model) View() string {
	var b strings.Builder
	now := time.Now()
	active := m.store.Active()

	if m.mode == ModeSearch || m.mode == ModeRename || m.mode == ModeNewProject {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	} else if m.mode == ModeConfirmDelete {
		verb := "Delete"
		if m.confirmPermanent {
			verb = "Permanently delete"
		}
		b.WriteString(styles.ConfirmBox.Render(
			fmt.Sprintf("%s %d item(s)? y/n", verb, m.confirmCount)))
		b.WriteString("\n")
	} else {
		b.WriteString(styles.SidebarHeading.Render("Conversations"))
		b.WriteString("\n")
	}

	visible := m.height - 2
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	for i := start; i < len(m.items) && i < start+visible; i++ {
		b.WriteString(m.renderItem(m.items[i], i == m.cursor, active, now))
		b.WriteString("\n")
	}
	if len(m.items) == 0 {
		b.WriteString(styles.SidebarMeta.Render("  no conversations"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) renderItem(it Item, atCursor bool, active model.Selector, now time.Time) string {
	width := m.width - 2
	if width < 8 {
		width = 8
	}

	title := it.Title
	if it.ProjectID != "" {
		title = "  " + title
	}
	if it.IsProject {
		title = "▸ " + title
	}

	meta := util.FormatRelativeTime(it.Updated, now)
	line := fitLine(title, meta, width)

	style := styles.SidebarItem
	switch {
	case !it.IsProject && m.engine.IsSelected(it.EntityID):
		style = styles.SidebarItemSelected
	case !it.IsProject && active.EntityID() == it.EntityID:
		style = styles.SidebarItemActive
	case it.IsProject:
		style = styles.SidebarHeading
	}

	if atCursor {
		return styles.SidebarItemCursor.Render("▌") + style.Render(line)
	}
	return " " + style.Render(line)
}

func fitLine(title, meta string, width int) string {
	avail := width - lipgloss.Width(meta) - 1
	if avail < 4 {
		avail = 4
	}
	title = truncate(title, avail)
	gap := width - lipgloss.Width(title) - lipgloss.Width(meta)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + styles.SidebarMeta.Render(meta)
}

func truncate(s string, maxWidth int) string {
	return util.TruncateWidth(s, maxWidth)
}
