// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to streaming", StatusPending, StatusStreaming, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"streaming to completed", StatusStreaming, StatusCompleted, true},
		{"streaming to failed", StatusStreaming, StatusFailed, true},
		{"streaming back to pending", StatusStreaming, StatusPending, false},
		{"completed back to streaming", StatusCompleted, StatusStreaming, false},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"failed to completed", StatusFailed, StatusCompleted, false},
		{"idempotent completed", StatusCompleted, StatusCompleted, true},
		{"idempotent streaming", StatusStreaming, StatusStreaming, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
				t.Errorf("%v -> %v: got %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestMessage_StreamingLifecycle(t *testing.T) {
	msg := NewAssistantPlaceholder()
	if msg.Status != StatusStreaming {
		t.Fatalf("placeholder status = %v, want streaming", msg.Status)
	}

	msg.AppendChunk("Hello, ")
	msg.AppendChunk("world")
	if got := msg.DisplayContent(); got != "Hello, world" {
		t.Errorf("DisplayContent during stream = %q", got)
	}

	msg.CompleteStream()
	if msg.Status != StatusCompleted {
		t.Errorf("status after complete = %v, want completed", msg.Status)
	}
	if msg.Content != "Hello, world" {
		t.Errorf("frozen content = %q", msg.Content)
	}

	// Chunks after completion are dropped; the content is frozen.
	msg.AppendChunk("more")
	msg.CompleteStream()
	if msg.Content != "Hello, world" {
		t.Errorf("content changed after terminal state: %q", msg.Content)
	}
}

func TestMessage_FailStreamDiscardsPartial(t *testing.T) {
	msg := NewAssistantPlaceholder()
	msg.AppendChunk("partial out")
	msg.FailStream("The request timed out. Try again.")

	if msg.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", msg.Status)
	}
	if msg.Content != "The request timed out. Try again." {
		t.Errorf("failed content = %q", msg.Content)
	}

	// A failed message is terminal; a second failure is a no-op.
	msg.FailStream("other reason")
	if msg.Content != "The request timed out. Try again." {
		t.Errorf("terminal content overwritten: %q", msg.Content)
	}
}

func TestMessage_ResetForRegenerate(t *testing.T) {
	msg := NewAssistantPlaceholder()
	msg.AppendChunk("first answer")
	msg.CompleteStream()
	msg.Tokens = 42
	msg.Cost = 0.003

	id := msg.ID
	msg.ResetForRegenerate()

	if msg.ID != id {
		t.Errorf("identity changed on regenerate: %s -> %s", id, msg.ID)
	}
	if msg.Status != StatusStreaming {
		t.Errorf("status = %v, want streaming", msg.Status)
	}
	if msg.DisplayContent() != "" {
		t.Errorf("content not cleared: %q", msg.DisplayContent())
	}
	if msg.Tokens != 0 || msg.Cost != 0 {
		t.Errorf("usage not cleared: tokens=%d cost=%f", msg.Tokens, msg.Cost)
	}

	// The forward-only rule starts over for the new exchange.
	msg.AppendChunk("second answer")
	msg.CompleteStream()
	if msg.Content != "second answer" {
		t.Errorf("regenerated content = %q", msg.Content)
	}
}

func TestNewReplyRef(t *testing.T) {
	target := NewUserMessage("short question")
	ref := NewReplyRef(target)
	if ref.MessageID != target.ID {
		t.Errorf("MessageID = %s, want %s", ref.MessageID, target.ID)
	}
	if ref.Snippet != "short question" {
		t.Errorf("Snippet = %q", ref.Snippet)
	}

	long := NewUserMessage(strings.Repeat("é", 300))
	ref = NewReplyRef(long)
	if got := len([]rune(ref.Snippet)); got != maxSnippetLen {
		t.Errorf("snippet length = %d runes, want %d", got, maxSnippetLen)
	}
	if !strings.HasSuffix(ref.Snippet, "...") {
		t.Errorf("truncated snippet missing ellipsis: %q", ref.Snippet)
	}

	if NewReplyRef(nil) != nil {
		t.Error("NewReplyRef(nil) should be nil")
	}
}

func TestMessage_Clone(t *testing.T) {
	msg := NewUserMessage("original")
	msg.Attachments = []string{"notes.txt"}
	msg.ReplyTo = &ReplyRef{MessageID: "msg_abc", Snippet: "quoted"}

	clone := msg.Clone()
	clone.Attachments[0] = "changed.txt"
	clone.ReplyTo.Snippet = "changed"

	if msg.Attachments[0] != "notes.txt" {
		t.Error("clone shares attachments slice with original")
	}
	if msg.ReplyTo.Snippet != "quoted" {
		t.Error("clone shares reply reference with original")
	}
}

func TestMessage_CloneFlattensStream(t *testing.T) {
	msg := NewAssistantPlaceholder()
	msg.AppendChunk("in flight")

	clone := msg.Clone()
	if clone.Content != "in flight" {
		t.Errorf("clone content = %q, want accumulated stream", clone.Content)
	}
}

func TestMessage_ChunkReplayYieldsIdenticalContent(t *testing.T) {
	chunks := []string{"Hi", " the", "re", "!", " 漢字", "", " done"}

	first := NewAssistantPlaceholder()
	second := NewAssistantPlaceholder()
	for _, ch := range chunks {
		first.AppendChunk(ch)
		second.AppendChunk(ch)
	}
	first.CompleteStream()
	second.CompleteStream()

	if first.Content != second.Content {
		t.Errorf("same chunk sequence diverged: %q vs %q", first.Content, second.Content)
	}
	if first.Content != "Hi there! 漢字 done" {
		t.Errorf("content = %q", first.Content)
	}
}
