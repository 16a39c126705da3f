// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Rune-aware truncation preserves multi-byte characters.
// Truncating by byte index would corrupt UTF-8 strings mid-character.

// TruncateRunes truncates a string to a maximum number of runes,
// appending "..." when it cuts.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateWidth truncates a string to a maximum display width in
// terminal columns, with an ellipsis. CJK and other double-width
// characters count as 2.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// StringWidth returns the display width of a string in terminal
// columns.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// PadRight pads a string with spaces to the given display width.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// =============================================================================
// DISPLAY FORMATTING
// =============================================================================

// FormatCost renders a USD amount for the transcript footer. Sub-cent
// amounts keep four decimals so cheap exchanges don't display as $0.00.
func FormatCost(usd float64) string {
	if usd <= 0 {
		return "$0.00"
	}
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

// FormatTokens renders a token count compactly (1.2k over 1234).
func FormatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

// FormatRelativeTime renders a timestamp the way the sidebar shows it:
// recent times as durations, older ones as dates.
func FormatRelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
