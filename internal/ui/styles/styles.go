// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the skein TUI.
// All colors use Lip Gloss AdaptiveColor for automatic light/dark
// detection; an explicit theme in the config forces the background.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

// Purple - primary accent, assistant messages, active selection
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - brand color, focus ring, user highlights
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - success states
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors, failed messages, destructive actions
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - warnings, pending states
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// Surface colors
var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// Text colors
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// Selection highlight for multi-selected sidebar rows
var SelectionBg = lipgloss.AdaptiveColor{Light: "#BFDBFE", Dark: "#1E3A5F"}

// =============================================================================
// THEME
// =============================================================================

// ApplyTheme forces the light or dark background per the configured
// theme; "auto" leaves terminal detection alone.
func ApplyTheme(theme string) {
	switch theme {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	default:
		lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	}
}

// =============================================================================
// SIDEBAR STYLES
// =============================================================================

var (
	// SidebarBorder frames the sidebar pane.
	SidebarBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Overlay)

	// SidebarBorderFocused marks sidebar focus.
	SidebarBorderFocused = SidebarBorder.
				BorderForeground(Cyan)

	// SidebarItem is an unselected sidebar row.
	SidebarItem = lipgloss.NewStyle().
			Foreground(TextPrimary).
			PaddingLeft(1)

	// SidebarItemActive marks the active conversation.
	SidebarItemActive = lipgloss.NewStyle().
				Foreground(Purple).
				Bold(true).
				PaddingLeft(1)

	// SidebarItemSelected marks a multi-selected row.
	SidebarItemSelected = lipgloss.NewStyle().
				Foreground(TextPrimary).
				Background(SelectionBg).
				PaddingLeft(1)

	// SidebarItemCursor marks the keyboard cursor row.
	SidebarItemCursor = lipgloss.NewStyle().
				Foreground(Cyan).
				Bold(true)

	// SidebarHeading labels the sidebar groups.
	SidebarHeading = lipgloss.NewStyle().
			Foreground(TextMuted).
			Bold(true).
			PaddingLeft(1)

	// SidebarMeta renders timestamps and counts.
	SidebarMeta = lipgloss.NewStyle().
			Foreground(TextMuted)
)

// =============================================================================
// CHAT STYLES
// =============================================================================

var (
	// ChatBorder frames the transcript pane.
	ChatBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Overlay)

	// ChatBorderFocused marks transcript focus.
	ChatBorderFocused = ChatBorder.
				BorderForeground(Cyan)

	// UserLabel heads user messages.
	UserLabel = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	// AssistantLabel heads assistant messages.
	AssistantLabel = lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true)

	// MessageMeta renders the tokens/cost footer under a message.
	MessageMeta = lipgloss.NewStyle().
			Foreground(TextMuted)

	// FailedMessage renders a failed assistant message.
	FailedMessage = lipgloss.NewStyle().
			Foreground(Rose)

	// ReplyBanner shows the quoted snippet while composing a reply.
	ReplyBanner = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(Purple).
			PaddingLeft(1)

	// Affordance is the jump-to-latest pill shown when new messages land
	// off-screen.
	Affordance = lipgloss.NewStyle().
			Foreground(Surface).
			Background(Purple).
			Bold(true).
			Padding(0, 1)

	// StatusBar runs along the bottom of the window.
	StatusBar = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Background(SurfaceDim)

	// StatusError highlights failures in the status bar.
	StatusError = lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true)

	// InputBox frames the composer.
	InputBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Overlay)

	// InputBoxFocused marks composer focus.
	InputBoxFocused = InputBox.
				BorderForeground(Purple)
)

// =============================================================================
// OVERLAY STYLES
// =============================================================================

var (
	// ConfirmBox frames destructive-action confirmations.
	ConfirmBox = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Rose).
			Padding(1, 2)

	// Help renders key hints.
	Help = lipgloss.NewStyle().
		Foreground(TextMuted)
)
