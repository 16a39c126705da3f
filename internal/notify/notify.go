// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify fires desktop notifications when a response finishes
// while the terminal is in the background. Failures are logged and
// swallowed; a missing notification daemon never breaks a chat.
package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/util"
)

const maxBodyRunes = 120

// ResponseReady notifies that an assistant response completed in the
// named conversation.
func ResponseReady(title, preview string) {
	if title == "" {
		title = "Response ready"
	}
	body := util.TruncateRunes(preview, maxBodyRunes)
	if err := beeep.Notify("skein: "+title, body, ""); err != nil {
		logger.Debug("notify: %v", err)
	}
}

// ResponseFailed notifies that an exchange ended in an error.
func ResponseFailed(title string) {
	if title == "" {
		title = "conversation"
	}
	if err := beeep.Notify("skein: response failed", "In "+title, ""); err != nil {
		logger.Debug("notify: %v", err)
	}
}
