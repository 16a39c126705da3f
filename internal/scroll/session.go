// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scroll keeps the transcript viewport anchored: bottom-stick
// with a tolerance band, the user-scroll flag, the new-message
// affordance, reply-mode freezing and session-scoped last-seen counts.
package scroll

import "sync"

// =============================================================================
// SESSION CONTEXT
// =============================================================================

// SessionContext records, per entity, how many messages the viewport has
// already seen this session. It distinguishes a history reload (count
// unchanged) from a genuinely new arrival (count grew). The context
// lives for one app session and is shared across entity switches.
type SessionContext struct {
	mu       sync.Mutex
	lastSeen map[string]int
}

// NewSessionContext creates an empty session context.
func NewSessionContext() *SessionContext {
	return &SessionContext{
		lastSeen: make(map[string]int),
	}
}

// LastSeen returns the recorded count for an entity and whether the
// entity has been seen at all this session.
func (s *SessionContext) LastSeen(entityID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.lastSeen[entityID]
	return n, ok
}

// Observe records the current count for an entity and returns how many
// messages are new since the last observation. The first observation of
// an entity reports zero new messages; a reload is not an arrival.
func (s *SessionContext) Observe(entityID string, count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, seen := s.lastSeen[entityID]
	s.lastSeen[entityID] = count
	if !seen || count <= prev {
		return 0
	}
	return count - prev
}

// Track registers a brand-new entity at zero so its first assistant
// message counts as a genuine arrival.
func (s *SessionContext) Track(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lastSeen[entityID]; !ok {
		s.lastSeen[entityID] = 0
	}
}

// Forget drops an entity, usually after permanent deletion.
func (s *SessionContext) Forget(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, entityID)
}
