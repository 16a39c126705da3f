// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// SELECTOR TYPE
// =============================================================================

// SelectorKind discriminates the two places a message sequence can live.
type SelectorKind int

const (
	// SelectNone is the zero selector: nothing is addressed.
	SelectNone SelectorKind = iota
	SelectConversation
	SelectProjectChat
)

// Selector addresses exactly one entity: a top-level conversation or a
// chat under a project. The fields are private and only the two
// constructors below can populate them, so "both variants at once" is
// unrepresentable.
type Selector struct {
	kind           SelectorKind
	conversationID string
	projectID      string
	chatID         string
}

// ConversationSelector addresses a top-level conversation.
func ConversationSelector(id string) Selector {
	return Selector{kind: SelectConversation, conversationID: id}
}

// ProjectChatSelector addresses a chat under a project.
func ProjectChatSelector(projectID, chatID string) Selector {
	return Selector{kind: SelectProjectChat, projectID: projectID, chatID: chatID}
}

// Kind returns the selector's variant.
func (s Selector) Kind() SelectorKind {
	return s.kind
}

// IsZero reports whether the selector addresses nothing.
func (s Selector) IsZero() bool {
	return s.kind == SelectNone
}

// ConversationID returns the addressed conversation ID for the
// conversation variant, or "".
func (s Selector) ConversationID() string {
	if s.kind != SelectConversation {
		return ""
	}
	return s.conversationID
}

// ProjectChatIDs returns the (projectID, chatID) pair for the project-chat
// variant, or empty strings.
func (s Selector) ProjectChatIDs() (string, string) {
	if s.kind != SelectProjectChat {
		return "", ""
	}
	return s.projectID, s.chatID
}

// EntityID returns the ID of the addressed message-holding entity
// regardless of variant: the conversation ID or the chat ID.
func (s Selector) EntityID() string {
	switch s.kind {
	case SelectConversation:
		return s.conversationID
	case SelectProjectChat:
		return s.chatID
	default:
		return ""
	}
}

// String renders the selector for log lines.
func (s Selector) String() string {
	switch s.kind {
	case SelectConversation:
		return "conversation:" + s.conversationID
	case SelectProjectChat:
		return "project:" + s.projectID + "/chat:" + s.chatID
	default:
		return "none"
	}
}
