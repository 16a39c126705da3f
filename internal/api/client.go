// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skeinlabs/skein-tui/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client failures.
type ErrorType int

const (
	// ErrTypeConnection indicates the chat service is unreachable.
	ErrTypeConnection ErrorType = iota
	// ErrTypeTimeout indicates a request exceeded its deadline.
	ErrTypeTimeout
	// ErrTypeNotFound indicates the chat or message does not exist server-side.
	ErrTypeNotFound
	// ErrTypeInvalidRequest indicates the service rejected the request body.
	ErrTypeInvalidRequest
	// ErrTypeServerError indicates a 5xx from the chat service.
	ErrTypeServerError
	// ErrTypeStreamError indicates a failure mid-stream.
	ErrTypeStreamError
)

// ClientError wraps failures from the chat service with a category.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for common failure cases.
var (
	// ErrUnreachable indicates the chat service cannot be reached.
	ErrUnreachable = &ClientError{
		Type:    ErrTypeConnection,
		Message: "chat service is not reachable",
	}

	// ErrTimeout indicates a request timed out.
	ErrTimeout = &ClientError{
		Type:    ErrTypeTimeout,
		Message: "request timed out",
	}

	// ErrChatNotFound indicates the requested chat does not exist.
	ErrChatNotFound = &ClientError{
		Type:    ErrTypeNotFound,
		Message: "chat not found",
	}
)

// IsUnreachable reports whether err means the service is down.
func IsUnreachable(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeConnection
	}
	return false
}

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeNotFound
	}
	return false
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeTimeout
	}
	return false
}

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig holds connection settings for the chat service.
type ClientConfig struct {
	// BaseURL of the chat service (default: http://localhost:8791).
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:8791",
		Timeout: 30 * time.Second,
	}
}

// Client communicates with the skein chat service over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a client. Zero-value config fields fall back to
// defaults.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// =============================================================================
// CHAT CRUD
// =============================================================================

// GetChatHistory fetches the most recent conversations, newest first.
// A limit of 0 means the server default.
func (c *Client) GetChatHistory(ctx context.Context, limit int) ([]*model.Conversation, error) {
	url := fmt.Sprintf("%s/v1/chats", c.config.BaseURL)
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}

	var history HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &history); err != nil {
		return nil, err
	}

	out := make([]*model.Conversation, 0, len(history.Conversations))
	for i := range history.Conversations {
		out = append(out, history.Conversations[i].ToModel())
	}
	return out, nil
}

// CreateChat creates a chat server-side and returns it with its
// server-assigned ID.
func (c *Client) CreateChat(ctx context.Context, title string, initialMessages []*model.Message, modelID string) (*model.Conversation, error) {
	req := CreateChatRequest{
		Title:           title,
		InitialMessages: ToWireMessages(initialMessages),
		Model:           modelID,
	}

	var wire WireConversation
	url := fmt.Sprintf("%s/v1/chats", c.config.BaseURL)
	if err := c.doJSON(ctx, http.MethodPost, url, req, &wire); err != nil {
		return nil, err
	}
	return wire.ToModel(), nil
}

// UpdateChat patches a chat's messages and/or title.
func (c *Client) UpdateChat(ctx context.Context, chatID string, patch UpdateChatRequest) error {
	url := fmt.Sprintf("%s/v1/chats/%s", c.config.BaseURL, chatID)
	return c.doJSON(ctx, http.MethodPatch, url, patch, nil)
}

// DeleteChat removes a chat server-side.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	url := fmt.Sprintf("%s/v1/chats/%s", c.config.BaseURL, chatID)
	return c.doJSON(ctx, http.MethodDelete, url, nil, nil)
}

// GetModels fetches the model catalog.
func (c *Client) GetModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	var resp ModelsResponse
	url := fmt.Sprintf("%s/v1/models", c.config.BaseURL)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// SendMessageStream sends a message history and streams the assistant
// response chunk by chunk through callback. It blocks until the stream
// completes, fails, or ctx is cancelled.
func (c *Client) SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, callback StreamCallback) error {
	req := StreamRequest{
		Messages: ToWireMessages(messages),
		Model:    modelID,
	}
	url := fmt.Sprintf("%s/v1/messages/stream", c.config.BaseURL)
	return c.stream(ctx, url, req, callback)
}

// RegenerateMessage asks the service to regenerate an assistant message
// from the context that preceded it, streaming the replacement.
func (c *Client) RegenerateMessage(ctx context.Context, messages []*model.Message, messageID, modelID string, callback StreamCallback) error {
	req := StreamRequest{
		Messages: ToWireMessages(messages),
		Model:    modelID,
	}
	url := fmt.Sprintf("%s/v1/messages/%s/regenerate", c.config.BaseURL, messageID)
	return c.stream(ctx, url, req, callback)
}

func (c *Client) stream(ctx context.Context, url string, req StreamRequest, callback StreamCallback) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{
			Type:    ErrTypeInvalidRequest,
			Message: "failed to encode stream request",
			Cause:   err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ClientError{
			Type:    ErrTypeInvalidRequest,
			Message: "failed to create stream request",
			Cause:   err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	// Streams run without a client timeout; cancellation comes from ctx.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromStatus(resp)
	}

	reader := NewStreamReader(resp.Body)
	return reader.Process(ctx, callback)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// doJSON performs a request with an optional JSON body, decoding the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, in, out interface{}) error {
	var bodyReader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return &ClientError{
				Type:    ErrTypeInvalidRequest,
				Message: "failed to encode request",
				Cause:   err,
			}
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return &ClientError{
			Type:    ErrTypeInvalidRequest,
			Message: "failed to create request",
			Cause:   err,
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromStatus(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{
			Type:    ErrTypeServerError,
			Message: "failed to decode response",
			Cause:   err,
		}
	}
	return nil
}

// errorFromStatus maps a non-2xx response to a ClientError, folding in
// the service's error body when present.
func (c *Client) errorFromStatus(resp *http.Response) error {
	detail := ""
	var svcErr serviceError
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(body, &svcErr) == nil && svcErr.Error != "" {
			detail = svcErr.Error
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if detail != "" {
			return &ClientError{Type: ErrTypeNotFound, Message: detail}
		}
		return ErrChatNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := fmt.Sprintf("request rejected (HTTP %d)", resp.StatusCode)
		if detail != "" {
			msg = detail
		}
		return &ClientError{Type: ErrTypeInvalidRequest, Message: msg}
	default:
		msg := fmt.Sprintf("chat service error (HTTP %d)", resp.StatusCode)
		if detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
		return &ClientError{Type: ErrTypeServerError, Message: msg}
	}
}
