// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered message sequence with identity and
// soft-delete metadata. Project chats embed the same shape.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Model is the ID of the AI model descriptor answering in this
	// conversation. The descriptor itself is owned by the model catalog.
	Model string `json:"model"`

	// Messages
	Messages []*Message `json:"messages"`

	// Soft-delete state. A soft-deleted conversation is hidden from the
	// default listings but remains retrievable by ID until the retention
	// window expires.
	IsDeleted bool      `json:"is_deleted,omitempty"`
	DeletedAt time.Time `json:"deleted_at,omitempty"`
}

// NewConversation creates a conversation with a generated ID and the given
// model.
func NewConversation(modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        GenerateConversationID(),
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message and bumps UpdatedAt.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageByID returns a message by its ID, or nil if absent.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageIndex returns the position of a message by ID, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i, msg := range c.Messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// RemoveMessage removes a message by ID. Reply references held by other
// messages are left in place; they degrade to stale references whose
// snapshot still renders.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// ContextBefore returns clones of all messages strictly before the message
// with the given ID, in order. Used as the prompt context when
// regenerating that message. Returns nil if the ID is unknown.
func (c *Conversation) ContextBefore(messageID string) []*Message {
	idx := c.MessageIndex(messageID)
	if idx < 0 {
		return nil
	}
	out := make([]*Message, 0, idx)
	for _, msg := range c.Messages[:idx] {
		out = append(out, msg.Clone())
	}
	return out
}

// =============================================================================
// SOFT DELETE
// =============================================================================

// SoftDelete marks the conversation hidden-but-recoverable.
func (c *Conversation) SoftDelete(now time.Time) {
	c.IsDeleted = true
	c.DeletedAt = now
	c.UpdatedAt = now
}

// Restore clears the soft-delete mark.
func (c *Conversation) Restore() {
	c.IsDeleted = false
	c.DeletedAt = time.Time{}
	c.UpdatedAt = time.Now()
}

// RetentionExpired reports whether the soft-delete window has lapsed.
func (c *Conversation) RetentionExpired(now time.Time, retention time.Duration) bool {
	return c.IsDeleted && now.Sub(c.DeletedAt) > retention
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if unset.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			c.Title = firstLinePreview(msg.Content, 50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// DisplayTitle returns the title or a default.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// Preview returns a short preview of the first user message.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Preview(80)
		}
	}
	return "Empty conversation"
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders the conversation as a Markdown document.
func (c *Conversation) ExportMarkdown() string {
	var sb strings.Builder
	sb.WriteString("# " + c.DisplayTitle() + "\n\n")
	sb.WriteString("Created: " + c.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range c.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		if msg.ReplyTo != nil {
			sb.WriteString("> " + msg.ReplyTo.Snippet + "\n\n")
		}
		sb.WriteString(msg.DisplayContent())
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// ExportJSON renders the conversation as pretty-printed JSON.
func (c *Conversation) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// =============================================================================
// CLONE
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Model:     c.Model,
		IsDeleted: c.IsDeleted,
		DeletedAt: c.DeletedAt,
		Messages:  make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GenerateConversationID creates a unique conversation ID. Server-confirmed
// conversations replace this with the server-assigned ID during optimistic
// reconciliation.
func GenerateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}

// firstLinePreview truncates content to its first line, capped at maxLen
// runes.
func firstLinePreview(content string, maxLen int) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	runes := []rune(content)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return content
}
