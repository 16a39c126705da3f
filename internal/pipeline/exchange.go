// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline drives message exchanges: sending, streaming the
// assistant response into the store, completion bookkeeping, failure
// handling, regeneration and cooperative cancellation.
package pipeline

import (
	"context"
	"sync"
)

// =============================================================================
// EXCHANGE STATE
// =============================================================================

// State is the lifecycle phase of an exchange. Transitions only move
// forward; the three final states are terminal.
type State int

const (
	// StateIdle means no exchange is in flight.
	StateIdle State = iota
	// StateSending means the request has been issued but no chunk has
	// arrived yet.
	StateSending
	// StateStreaming means at least one chunk has arrived.
	StateStreaming
	// StateCompleted means the response finished normally.
	StateCompleted
	// StateFailed means the exchange ended in an error.
	StateFailed
	// StateCancelled means the user stopped the exchange.
	StateCancelled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransitionTo reports whether moving to next is legal. Terminal
// states accept nothing; earlier states never re-enter.
func (s State) CanTransitionTo(next State) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StateIdle:
		return next == StateSending
	case StateSending:
		return next == StateStreaming || next.Terminal()
	case StateStreaming:
		return next.Terminal()
	default:
		return false
	}
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Exchange tracks one send/regenerate round trip. All fields except the
// identifiers are guarded by mu.
type Exchange struct {
	// EntityID is the conversation or project chat being written to.
	EntityID string
	// UserMessageID is the user message that opened the exchange. Empty
	// for regenerations.
	UserMessageID string
	// AssistantMessageID is the streaming assistant message.
	AssistantMessageID string
	// Regenerate marks an in-place regeneration of an existing message.
	Regenerate bool

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// State returns the current lifecycle phase.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// advance moves the exchange forward, returning false on an illegal
// transition. Illegal moves happen when completion races cancellation;
// the first terminal state wins.
func (e *Exchange) advance(next State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.CanTransitionTo(next) {
		return false
	}
	e.state = next
	return true
}

// Cancel requests cooperative cancellation of the exchange. A no-op
// once the exchange is terminal.
func (e *Exchange) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	terminal := e.state.Terminal()
	e.mu.Unlock()

	if terminal || cancel == nil {
		return
	}
	cancel()
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is delivered to the pipeline's notifier as the exchange moves.
// The UI turns these into render updates.
type Event interface{ isEvent() }

// ChunkEvent fires after a chunk has been appended to the assistant
// message in the store.
type ChunkEvent struct {
	EntityID  string
	MessageID string
}

// CompletedEvent fires after the assistant message reached completed
// and the conversation was persisted.
type CompletedEvent struct {
	EntityID  string
	MessageID string
	Tokens    int
	Cost      float64
}

// FailedEvent fires when an exchange ends in an error. Err is the
// underlying cause; the assistant message already holds the
// human-readable text.
type FailedEvent struct {
	EntityID  string
	MessageID string
	Err       error
}

// CancelledEvent fires when the user stopped the exchange. Partial
// content is kept.
type CancelledEvent struct {
	EntityID  string
	MessageID string
}

// StartedEvent fires when an exchange opens, before any chunk.
type StartedEvent struct {
	EntityID  string
	MessageID string
}

func (ChunkEvent) isEvent()     {}
func (CompletedEvent) isEvent() {}
func (FailedEvent) isEvent()    {}
func (CancelledEvent) isEvent() {}
func (StartedEvent) isEvent()   {}
