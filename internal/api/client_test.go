// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skeinlabs/skein-tui/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL})
}

func TestClient_GetChatHistory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chats" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("limit = %s, want 25", got)
		}
		json.NewEncoder(w).Encode(HistoryResponse{
			Conversations: []WireConversation{
				{
					ID:    "conv_1",
					Title: "first",
					Model: "gpt-test",
					Messages: []WireMessage{
						{ID: "msg_1", Role: "user", Content: "hi", Status: "completed"},
						// A crashed stream left this mid-flight server-side.
						{ID: "msg_2", Role: "assistant", Content: "partial", Status: "streaming"},
					},
				},
			},
		})
	})

	convs, err := c.GetChatHistory(context.Background(), 25)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "conv_1" {
		t.Fatalf("conversations = %+v", convs)
	}

	// History is always settled: no message arrives mid-stream.
	for _, msg := range convs[0].Messages {
		if !msg.IsTerminal() {
			t.Errorf("message %s arrived non-terminal: %v", msg.ID, msg.Status)
		}
	}
}

func TestClient_CreateChat(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chats" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req CreateChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Title != "My chat" || req.Model != "gpt-test" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(WireConversation{ID: "conv_assigned", Title: req.Title})
	})

	conv, err := c.CreateChat(context.Background(), "My chat", nil, "gpt-test")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if conv.ID != "conv_assigned" {
		t.Errorf("ID = %s, want server-assigned", conv.ID)
	}
}

func TestClient_UpdateChatTitlePatch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/v1/chats/conv_1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatal(err)
		}
		// Only the title is patched; absent fields stay untouched.
		if _, ok := raw["messages"]; ok {
			t.Error("messages included in a title-only patch")
		}
		if _, ok := raw["title"]; !ok {
			t.Error("title missing from patch")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	title := "Renamed"
	err := c.UpdateChat(context.Background(), "conv_1", UpdateChatRequest{Title: &title})
	if err != nil {
		t.Fatalf("UpdateChat: %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, "", IsNotFound},
		{"not found with detail", http.StatusNotFound, `{"error":"chat purged"}`, IsNotFound},
		{"bad request", http.StatusBadRequest, `{"error":"empty message"}`, func(err error) bool {
			var ce *ClientError
			return asClientError(err, &ce) && ce.Type == ErrTypeInvalidRequest && ce.Message == "empty message"
		}},
		{"server error", http.StatusInternalServerError, "", func(err error) bool {
			var ce *ClientError
			return asClientError(err, &ce) && ce.Type == ErrTypeServerError
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			err := c.DeleteChat(context.Background(), "conv_x")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Errorf("error %v failed its check", err)
			}
		})
	}
}

func asClientError(err error, target **ClientError) bool {
	ce, ok := err.(*ClientError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestClient_Unreachable(t *testing.T) {
	// Point at a closed port.
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.GetModels(context.Background())
	if !IsUnreachable(err) {
		t.Errorf("err = %v, want unreachable", err)
	}
}

func TestToWireMessages_FlattensStreaming(t *testing.T) {
	msg := model.NewAssistantPlaceholder()
	msg.AppendChunk("in flight")

	wire := ToWireMessages([]*model.Message{msg})
	if len(wire) != 1 {
		t.Fatalf("wire messages = %d", len(wire))
	}
	if wire[0].Content != "in flight" {
		t.Errorf("content = %q, want flattened accumulator", wire[0].Content)
	}
	if wire[0].Status != "streaming" {
		t.Errorf("status = %q", wire[0].Status)
	}
}
