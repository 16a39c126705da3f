// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the skein chat service.
package api

import (
	"time"

	"github.com/skeinlabs/skein-tui/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// WireMessage is the message shape exchanged with the chat service.
type WireMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Cost      float64   `json:"cost,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// CreateChatRequest is the body for POST /v1/chats.
type CreateChatRequest struct {
	Title           string        `json:"title"`
	InitialMessages []WireMessage `json:"initial_messages,omitempty"`
	Model           string        `json:"model"`
}

// UpdateChatRequest is the body for PATCH /v1/chats/{id}. Nil fields are
// left untouched server-side.
type UpdateChatRequest struct {
	Messages []WireMessage `json:"messages,omitempty"`
	Title    *string       `json:"title,omitempty"`
}

// StreamRequest is the body for POST /v1/messages/stream.
type StreamRequest struct {
	Messages []WireMessage `json:"messages"`
	Model    string        `json:"model"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// WireConversation is the conversation shape returned by the chat service.
type WireConversation struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []WireMessage `json:"messages"`
}

// HistoryResponse is the response from GET /v1/chats.
type HistoryResponse struct {
	Conversations []WireConversation `json:"conversations"`
}

// ModelsResponse is the response from GET /v1/models.
type ModelsResponse struct {
	Models []model.ModelDescriptor `json:"models"`
}

// serviceError is the error body the chat service returns on failures.
type serviceError struct {
	Error string `json:"error"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single incremental piece of an assistant response.
type StreamChunk struct {
	// Text carried by this chunk.
	Content string

	// Done marks the final chunk of the exchange.
	Done bool

	// Token counts, populated on the final chunk only.
	PromptTokens     int
	CompletionTokens int

	// Error if the stream failed mid-flight.
	Error error
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

// ToModel converts a wire conversation into the client's model type.
func (w *WireConversation) ToModel() *model.Conversation {
	conv := &model.Conversation{
		ID:        w.ID,
		Title:     w.Title,
		Model:     w.Model,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
		Messages:  make([]*model.Message, 0, len(w.Messages)),
	}
	for _, wm := range w.Messages {
		status := model.ParseStatus(wm.Status)
		// A message can only be mid-stream on the node that is streaming
		// it; anything fetched from history is settled.
		if status == model.StatusStreaming || status == model.StatusPending {
			status = model.StatusCompleted
		}
		conv.Messages = append(conv.Messages, &model.Message{
			ID:        wm.ID,
			Role:      model.Role(wm.Role),
			Content:   wm.Content,
			Timestamp: wm.Timestamp,
			Tokens:    wm.Tokens,
			Cost:      wm.Cost,
			Status:    status,
		})
	}
	return conv
}

// ToWireMessages converts model messages into their wire shape. Streaming
// accumulators are flattened.
func ToWireMessages(messages []*model.Message) []WireMessage {
	out := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, WireMessage{
			ID:        m.ID,
			Role:      m.Role.String(),
			Content:   m.DisplayContent(),
			Timestamp: m.Timestamp,
			Tokens:    m.Tokens,
			Cost:      m.Cost,
			Status:    m.Status.String(),
		})
	}
	return out
}
