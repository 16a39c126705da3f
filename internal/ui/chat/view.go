// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/ui/styles"
	"github.com/skeinlabs/skein-tui/internal/util"
)

// =============================================================================
// RENDERING
// =============================================================================

// refresh re-renders the transcript into the viewport and re-anchors the
// scroll position.
func (m *Model) refresh() {
	entity := m.store.ActiveEntity()
	content := m.renderTranscript(entity)
	m.viewport.SetContent(content)
	m.ctrl.SetContentHeight(lipgloss.Height(content))
	m.viewport.SetYOffset(m.ctrl.Offset())
}

func (m *Model) renderTranscript(entity *model.Conversation) string {
	if entity == nil || len(entity.Messages) == 0 {
		return styles.Help.Render("\n  Start a conversation: type below and press enter.\n")
	}

	var b strings.Builder
	for _, msg := range entity.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg *model.Message) string {
	var b strings.Builder

	switch msg.Role {
	case model.RoleUser:
		b.WriteString(styles.UserLabel.Render("You"))
	default:
		b.WriteString(styles.AssistantLabel.Render("Assistant"))
	}
	b.WriteString("\n")

	if msg.ReplyTo != nil {
		b.WriteString(styles.ReplyBanner.Render("↳ " + msg.ReplyTo.Snippet))
		b.WriteString("\n")
	}

	content := msg.DisplayContent()
	switch {
	case msg.Status == model.StatusFailed:
		b.WriteString(styles.FailedMessage.Render(content))

	case msg.Status == model.StatusStreaming && content == "":
		b.WriteString(m.spin.View() + styles.MessageMeta.Render(" thinking..."))

	case msg.Role == model.RoleAssistant && msg.Status == model.StatusCompleted && m.renderer != nil:
		rendered, err := m.renderer.Render(content)
		if err != nil {
			b.WriteString(content)
		} else {
			b.WriteString(strings.TrimRight(rendered, "\n"))
		}

	default:
		// Streaming text renders raw; markdown waits for completion so
		// half-open code fences don't flicker.
		b.WriteString(content)
	}
	b.WriteString("\n")

	if meta := m.renderMeta(msg); meta != "" {
		b.WriteString(styles.MessageMeta.Render(meta))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMeta(msg *model.Message) string {
	if msg.Role != model.RoleAssistant || msg.Status != model.StatusCompleted {
		return ""
	}
	var parts []string
	if m.showTokens && msg.Tokens > 0 {
		parts = append(parts, util.FormatTokens(msg.Tokens)+" tokens")
	}
	if m.showCost && msg.Cost > 0 {
		parts = append(parts, util.FormatCost(msg.Cost))
	}
	return strings.Join(parts, " · ")
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the transcript pane.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.ctrl.NewMessageAffordance() {
		b.WriteString(styles.Affordance.Render("↓ new messages"))
		b.WriteString("\n")
	}

	if m.replyTo != nil {
		b.WriteString(styles.ReplyBanner.Render("Replying to: " + m.replyTo.Snippet))
		b.WriteString("\n")
	}

	inputStyle := styles.InputBox
	if m.focused {
		inputStyle = styles.InputBoxFocused
	}
	b.WriteString(inputStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) statusLine() string {
	if m.errText != "" {
		return styles.StatusError.Render(m.errText)
	}
	if m.streaming {
		return m.spin.View() + styles.MessageMeta.Render(" streaming · esc to stop")
	}
	return styles.Help.Render("enter send · ctrl+r regenerate · ctrl+y reply · tab sidebar")
}
