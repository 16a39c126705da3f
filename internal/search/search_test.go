// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"strings"
	"testing"
	"time"

	"github.com/skeinlabs/skein-tui/internal/model"
)

func convWith(title string, contents ...string) *model.Conversation {
	conv := model.NewConversation("gpt-test")
	conv.SetTitle(title)
	for _, c := range contents {
		conv.AddMessage(model.NewUserMessage(c))
	}
	return conv
}

func TestMatch_TitleBeforeContent(t *testing.T) {
	conv := convWith("Parsing TOML", "how do I parse toml files in go")

	res, ok := Match(conv, "toml")
	if !ok {
		t.Fatal("no match")
	}
	// Title matches win and carry no snippet.
	if res.Snippet != "" {
		t.Errorf("title match has snippet %q", res.Snippet)
	}
	if res.Title != "Parsing TOML" {
		t.Errorf("Title = %q", res.Title)
	}
}

func TestMatch_ContentSnippet(t *testing.T) {
	long := strings.Repeat("padding ", 20) + "the needle sits here" + strings.Repeat(" more", 20)
	conv := convWith("Unrelated title", long)

	res, ok := Match(conv, "NEEDLE")
	if !ok {
		t.Fatal("case-insensitive content match failed")
	}
	if !strings.Contains(res.Snippet, "needle") {
		t.Errorf("snippet %q does not contain the match", res.Snippet)
	}
	if !strings.HasPrefix(res.Snippet, "...") || !strings.HasSuffix(res.Snippet, "...") {
		t.Errorf("mid-content snippet missing ellipses: %q", res.Snippet)
	}
}

func TestMatch_NoMatch(t *testing.T) {
	conv := convWith("title", "content")
	if _, ok := Match(conv, "zzz"); ok {
		t.Error("matched a query that appears nowhere")
	}
	if _, ok := Match(conv, ""); ok {
		t.Error("empty query matched")
	}
}

func TestQuery(t *testing.T) {
	convs := []*model.Conversation{
		convWith("alpha notes", "nothing here"),
		convWith("beta", "alpha appears in a message"),
		convWith("gamma", "unrelated"),
	}

	proj := model.NewProject("Research")
	chat := model.NewProjectChat(proj.ID, "gpt-test")
	chat.SetTitle("alpha in a project")
	proj.AddChat(chat)

	results := Query(convs, []*model.Project{proj}, "  alpha ")
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	// Caller ordering: conversations first, then project chats.
	if results[0].EntityID != convs[0].ID || results[1].EntityID != convs[1].ID {
		t.Errorf("conversation order wrong: %+v", results[:2])
	}
	if results[2].ProjectID != proj.ID {
		t.Errorf("project chat result missing project ID: %+v", results[2])
	}

	if got := Query(convs, nil, "   "); got != nil {
		t.Errorf("blank query returned %v", got)
	}
}

func TestSnippet_RuneSafe(t *testing.T) {
	content := strings.Repeat("é", 100) + "needle" + strings.Repeat("漢", 100)
	conv := convWith("x", content)

	res, ok := Match(conv, "needle")
	if !ok {
		t.Fatal("no match")
	}
	// Multi-byte neighborhoods must not be cut mid-rune.
	for _, r := range res.Snippet {
		if r == '�' {
			t.Fatalf("snippet contains replacement char: %q", res.Snippet)
		}
	}
}

func TestDebouncer_Generations(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	g1 := d.Bump()
	g2 := d.Bump()
	if d.Current(g1) {
		t.Error("stale generation still current")
	}
	if !d.Current(g2) {
		t.Error("latest generation not current")
	}
	if d.Delay() != 50*time.Millisecond {
		t.Errorf("Delay = %v", d.Delay())
	}

	// Non-positive delays fall back to the default.
	if NewDebouncer(0).Delay() != DefaultDebounce {
		t.Error("zero delay did not fall back to default")
	}
}
