// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamCallback receives each chunk of a streaming response. Returning
// an error aborts the stream.
type StreamCallback func(chunk StreamChunk) error

// wireChunk is one NDJSON line of a streaming response.
type wireChunk struct {
	Delta            string `json:"delta"`
	Done             bool   `json:"done"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Error            string `json:"error,omitempty"`
}

// StreamReader parses newline-delimited JSON chunks from a streaming
// response body.
type StreamReader struct {
	reader *bufio.Reader
}

// NewStreamReader creates a stream reader over an NDJSON body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
	}
}

// Process reads chunks until the final one, a stream error, or ctx
// cancellation, invoking callback for each.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if strings.TrimSpace(line) == "" {
					// Stream ended without a done marker.
					return nil
				}
				// Fall through to parse the final unterminated line.
			} else {
				return &ClientError{
					Type:    ErrTypeStreamError,
					Message: "stream read failed",
					Cause:   err,
				}
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if err == io.EOF {
				return nil
			}
			continue
		}

		var wire wireChunk
		if jsonErr := json.Unmarshal([]byte(line), &wire); jsonErr != nil {
			return &ClientError{
				Type:    ErrTypeStreamError,
				Message: "failed to parse stream chunk",
				Cause:   jsonErr,
			}
		}

		if wire.Error != "" {
			streamErr := &ClientError{
				Type:    ErrTypeStreamError,
				Message: wire.Error,
			}
			cbErr := callback(StreamChunk{Error: streamErr})
			if cbErr != nil {
				return cbErr
			}
			return streamErr
		}

		chunk := StreamChunk{
			Content:          wire.Delta,
			Done:             wire.Done,
			PromptTokens:     wire.PromptTokens,
			CompletionTokens: wire.CompletionTokens,
		}
		if cbErr := callback(chunk); cbErr != nil {
			return fmt.Errorf("stream callback failed: %w", cbErr)
		}

		if wire.Done {
			return nil
		}
		if err == io.EOF {
			return nil
		}
	}
}
