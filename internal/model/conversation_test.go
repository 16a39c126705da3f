// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestConversation_AutoTitle(t *testing.T) {
	conv := NewConversation("gpt-test")
	if conv.DisplayTitle() != "New Conversation" {
		t.Errorf("empty title = %q", conv.DisplayTitle())
	}

	conv.AddMessage(NewUserMessage("How do I parse TOML in Go?\nSecond line ignored."))
	if conv.Title != "How do I parse TOML in Go?" {
		t.Errorf("auto title = %q", conv.Title)
	}

	// Auto-title only fills an empty title; later messages don't change it.
	conv.AddMessage(NewUserMessage("unrelated followup"))
	if conv.Title != "How do I parse TOML in Go?" {
		t.Errorf("title overwritten: %q", conv.Title)
	}
}

func TestConversation_AutoTitleTruncation(t *testing.T) {
	conv := NewConversation("gpt-test")
	conv.AddMessage(NewUserMessage(strings.Repeat("x", 200)))
	if got := len([]rune(conv.Title)); got != 50 {
		t.Errorf("title length = %d runes, want 50", got)
	}
	if !strings.HasSuffix(conv.Title, "...") {
		t.Errorf("truncated title missing ellipsis: %q", conv.Title)
	}
}

func TestConversation_ContextBefore(t *testing.T) {
	conv := NewConversation("gpt-test")
	first := NewUserMessage("first")
	reply := NewAssistantPlaceholder()
	reply.AppendChunk("answer")
	reply.CompleteStream()
	second := NewUserMessage("second")
	conv.AddMessage(first)
	conv.AddMessage(reply)
	conv.AddMessage(second)

	ctx := conv.ContextBefore(second.ID)
	if len(ctx) != 2 {
		t.Fatalf("context length = %d, want 2", len(ctx))
	}
	if ctx[0].ID != first.ID || ctx[1].ID != reply.ID {
		t.Errorf("context order wrong: %s, %s", ctx[0].ID, ctx[1].ID)
	}

	// Clones, not aliases.
	ctx[0].Content = "mutated"
	if first.Content != "first" {
		t.Error("ContextBefore returned aliased messages")
	}

	if conv.ContextBefore("msg_unknown") != nil {
		t.Error("unknown ID should return nil context")
	}
	if got := conv.ContextBefore(first.ID); len(got) != 0 {
		t.Errorf("context before first message = %d messages, want 0", len(got))
	}
}

func TestConversation_SoftDeleteRestore(t *testing.T) {
	conv := NewConversation("gpt-test")
	now := time.Now()

	conv.SoftDelete(now)
	if !conv.IsDeleted {
		t.Fatal("IsDeleted not set")
	}
	if !conv.DeletedAt.Equal(now) {
		t.Errorf("DeletedAt = %v, want %v", conv.DeletedAt, now)
	}

	if conv.RetentionExpired(now.Add(29*24*time.Hour), 30*24*time.Hour) {
		t.Error("expired inside the retention window")
	}
	if !conv.RetentionExpired(now.Add(31*24*time.Hour), 30*24*time.Hour) {
		t.Error("not expired past the retention window")
	}

	conv.Restore()
	if conv.IsDeleted {
		t.Error("IsDeleted still set after restore")
	}
	if !conv.DeletedAt.IsZero() {
		t.Error("DeletedAt not cleared after restore")
	}
	if conv.RetentionExpired(now.Add(100*24*time.Hour), 30*24*time.Hour) {
		t.Error("restored conversation should never expire")
	}
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("gpt-test")
	conv.AddMessage(NewUserMessage("hello"))

	clone := conv.Clone()
	clone.Messages[0].Content = "mutated"
	clone.SetTitle("other")

	if conv.Messages[0].Content != "hello" {
		t.Error("clone shares messages with original")
	}
	if conv.Title == "other" {
		t.Error("clone shares title with original")
	}
}

func TestConversation_Export(t *testing.T) {
	conv := NewConversation("gpt-test")
	conv.SetTitle("Export me")
	conv.AddMessage(NewUserMessage("question"))
	reply := NewAssistantPlaceholder()
	reply.AppendChunk("answer")
	reply.CompleteStream()
	conv.AddMessage(reply)

	md := conv.ExportMarkdown()
	if !strings.HasPrefix(md, "# Export me\n") {
		t.Errorf("markdown missing title heading: %q", md[:40])
	}
	for _, want := range []string{"**You**", "**Assistant**", "question", "answer"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	data, err := conv.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !strings.Contains(string(data), conv.ID) {
		t.Error("JSON export missing conversation id")
	}
}
