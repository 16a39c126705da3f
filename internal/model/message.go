// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, projects
// and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status represents the delivery state of a message. Transitions are
// forward-only: pending -> streaming -> completed or failed. A terminal
// status never changes again.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusCompleted
	StatusFailed
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// rank orders statuses for monotonicity checks. Completed and failed are
// both terminal and share the same rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusStreaming:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// Equal statuses are allowed (idempotent re-application); moving backward
// or away from a terminal status is not.
func (s Status) CanAdvanceTo(next Status) bool {
	if s == next {
		return true
	}
	if s.rank() == 2 {
		return false
	}
	return next.rank() > s.rank()
}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "streaming":
		return StatusStreaming
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// MarshalJSON encodes the status as its wire string.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the status from its wire string.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// =============================================================================
// REPLY REFERENCE
// =============================================================================

// ReplyRef is a weak reference to the message being replied to. It carries
// a short snapshot of the quoted content so the quote still renders after
// the target message is deleted. Consumers must tolerate a missing target.
type ReplyRef struct {
	MessageID string `json:"message_id"`
	Snippet   string `json:"snippet"`
}

// maxSnippetLen bounds the quoted snapshot stored on a reply reference.
const maxSnippetLen = 120

// NewReplyRef builds a reply reference to the given message, snapshotting
// a truncated copy of its current content.
func NewReplyRef(target *Message) *ReplyRef {
	if target == nil {
		return nil
	}
	snippet := target.DisplayContent()
	runes := []rune(snippet)
	if len(runes) > maxSnippetLen {
		snippet = string(runes[:maxSnippetLen-3]) + "..."
	}
	return &ReplyRef{
		MessageID: target.ID,
		Snippet:   snippet,
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation or project chat.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content. Mutable only while Status is streaming; once the status is
	// terminal the content is frozen (failed messages hold the error text).
	Content string `json:"content"`

	// Delivery state
	Status Status `json:"status"`

	// Streaming accumulator (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	streamContent strings.Builder

	// Usage accounting
	Tokens int     `json:"tokens,omitempty"`
	Cost   float64 `json:"cost,omitempty"` // USD

	// Optional reply reference (weak, see ReplyRef)
	ReplyTo *ReplyRef `json:"reply_to,omitempty"`

	// Attached file names, if any. A message with attachments may have
	// empty content.
	Attachments []string `json:"attachments,omitempty"`

	// Animate is a presentation hint: true means the renderer may play the
	// typing animation for this message. History loads clear it so replayed
	// messages never re-animate. Not a correctness invariant.
	Animate bool `json:"-"`
}

// NewUserMessage creates a completed user message. User messages never
// stream; they are final the moment they are composed.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleUser,
		Content:   content,
		Status:    StatusCompleted,
		Timestamp: time.Now(),
	}
}

// NewAssistantPlaceholder creates an empty assistant message in streaming
// state, ready to receive chunks.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleAssistant,
		Status:    StatusStreaming,
		Timestamp: time.Now(),
		Animate:   true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AdvanceStatus moves the message to next if the transition is legal.
// Returns false (and leaves the message untouched) on a backward move.
func (m *Message) AdvanceStatus(next Status) bool {
	if !m.Status.CanAdvanceTo(next) {
		return false
	}
	m.Status = next
	return true
}

// AppendChunk appends streamed text to the message. Chunks arriving after
// the message left the streaming state are ignored.
func (m *Message) AppendChunk(chunk string) {
	if m.Status != StatusStreaming {
		return
	}
	m.streamContent.WriteString(chunk)
}

// CompleteStream freezes the accumulated content and marks the message
// completed.
func (m *Message) CompleteStream() {
	if m.Status != StatusStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.Status = StatusCompleted
}

// FailStream discards the partial content, replaces it with a
// human-readable description of the failure and marks the message failed.
func (m *Message) FailStream(reason string) {
	if m.Status != StatusStreaming && m.Status != StatusPending {
		return
	}
	m.streamContent.Reset()
	m.Content = reason
	m.Status = StatusFailed
}

// ResetForRegenerate returns the message to streaming state in place,
// clearing its content but preserving its identity and position. The
// message is logically a fresh exchange reusing the same slot, so the
// forward-only rule starts over.
func (m *Message) ResetForRegenerate() {
	m.Content = ""
	m.streamContent.Reset()
	m.Status = StatusStreaming
	m.Tokens = 0
	m.Cost = 0
	m.Animate = true
}

// DisplayContent returns the content to render: the live accumulator while
// streaming, the frozen content otherwise.
func (m *Message) DisplayContent() string {
	if m.Status == StatusStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// IsTerminal reports whether the message reached a final status.
func (m *Message) IsTerminal() bool {
	return m.Status == StatusCompleted || m.Status == StatusFailed
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message. The streaming accumulator is
// flattened into the copy's content.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:        m.ID,
		Role:      m.Role,
		Timestamp: m.Timestamp,
		Content:   m.DisplayContent(),
		Status:    m.Status,
		Tokens:    m.Tokens,
		Cost:      m.Cost,
		Animate:   m.Animate,
	}
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		clone.ReplyTo = &ref
	}
	if len(m.Attachments) > 0 {
		clone.Attachments = append([]string(nil), m.Attachments...)
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
