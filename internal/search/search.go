// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search filters the sidebar as the user types. Queries are
// debounced so a fast typist triggers one search, not one per keystroke.
package search

import (
	"strings"
	"sync"
	"time"

	"github.com/skeinlabs/skein-tui/internal/model"
)

// DefaultDebounce is how long typing must pause before a search runs.
const DefaultDebounce = 300 * time.Millisecond

// =============================================================================
// DEBOUNCER
// =============================================================================

// Debouncer coalesces rapid query edits into one search. Each edit bumps
// the generation; a scheduled search only runs if its generation is
// still current when the delay elapses.
type Debouncer struct {
	mu    sync.Mutex
	gen   int
	delay time.Duration
}

// NewDebouncer creates a debouncer. A non-positive delay falls back to
// the default.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Bump invalidates any scheduled search and returns the new generation
// to schedule against.
func (d *Debouncer) Bump() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	return d.gen
}

// Current reports whether a generation is still the latest. A search
// scheduled under a stale generation must not run.
func (d *Debouncer) Current(gen int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.gen
}

// Delay returns how long a scheduled search should wait.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// =============================================================================
// MATCHING
// =============================================================================

// Result is one sidebar item matched by a query.
type Result struct {
	// EntityID of the matched conversation or chat.
	EntityID string
	// ProjectID when the match is a project chat, else empty.
	ProjectID string
	// Title of the matched entity.
	Title string
	// Snippet is the matched message fragment, empty for title matches.
	Snippet string
}

const snippetRadius = 40

// Match reports whether a conversation matches the query, checking the
// title first and message content second. The query must already be
// trimmed; matching is case-insensitive.
func Match(conv *model.Conversation, query string) (Result, bool) {
	q := strings.ToLower(query)
	if q == "" {
		return Result{}, false
	}

	if strings.Contains(strings.ToLower(conv.DisplayTitle()), q) {
		return Result{EntityID: conv.ID, Title: conv.DisplayTitle()}, true
	}

	for _, msg := range conv.Messages {
		content := msg.DisplayContent()
		idx := strings.Index(strings.ToLower(content), q)
		if idx < 0 {
			continue
		}
		return Result{
			EntityID: conv.ID,
			Title:    conv.DisplayTitle(),
			Snippet:  snippet(content, idx, len(q)),
		}, true
	}
	return Result{}, false
}

// Query runs a search over visible conversations and projects, keeping
// the caller's ordering. Project chats carry their project ID so the
// sidebar can expand the right group.
func Query(conversations []*model.Conversation, projects []*model.Project, query string) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var out []Result
	for _, conv := range conversations {
		if res, ok := Match(conv, query); ok {
			out = append(out, res)
		}
	}
	for _, proj := range projects {
		for _, chat := range proj.Chats {
			if res, ok := Match(&chat.Conversation, query); ok {
				res.ProjectID = proj.ID
				out = append(out, res)
			}
		}
	}
	return out
}

// snippet cuts a readable window around a match, rune-safe.
func snippet(content string, byteIdx, matchLen int) string {
	runes := []rune(content)
	// Map the byte index to a rune index.
	runeIdx := len([]rune(content[:byteIdx]))
	start := runeIdx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := runeIdx + matchLen + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}

	s := string(runes[start:end])
	s = strings.ReplaceAll(s, "\n", " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(runes) {
		s += "..."
	}
	return s
}
