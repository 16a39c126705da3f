// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// =============================================================================
// PROJECT CHAT TYPE
// =============================================================================

// ProjectChat is a conversation scoped under exactly one project. ProjectID
// is a lookup back-reference, not an ownership edge; the project's Chats
// slice owns the chat.
type ProjectChat struct {
	Conversation

	ProjectID string `json:"project_id"`
}

// NewProjectChat creates a chat under the given project.
func NewProjectChat(projectID, modelID string) *ProjectChat {
	return &ProjectChat{
		Conversation: *NewConversation(modelID),
		ProjectID:    projectID,
	}
}

// =============================================================================
// PROJECT TYPE
// =============================================================================

// Project is a named folder of project chats. Projects never hold messages
// directly.
type Project struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Chats     []*ProjectChat `json:"chats"`

	// Soft-delete state, mirroring conversations.
	IsDeleted bool      `json:"is_deleted,omitempty"`
	DeletedAt time.Time `json:"deleted_at,omitempty"`
}

// NewProject creates an empty project with a generated ID.
func NewProject(name string) *Project {
	now := time.Now()
	return &Project{
		ID:        generateProjectID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Chats:     make([]*ProjectChat, 0),
	}
}

// =============================================================================
// CHAT MANAGEMENT
// =============================================================================

// AddChat inserts a chat at the head of the project's chat list.
func (p *Project) AddChat(chat *ProjectChat) {
	chat.ProjectID = p.ID
	p.Chats = append([]*ProjectChat{chat}, p.Chats...)
	p.UpdatedAt = time.Now()
}

// ChatByID returns a chat by ID, or nil if absent.
func (p *Project) ChatByID(id string) *ProjectChat {
	for _, chat := range p.Chats {
		if chat.ID == id {
			return chat
		}
	}
	return nil
}

// RemoveChat removes a chat by ID.
func (p *Project) RemoveChat(id string) bool {
	for i, chat := range p.Chats {
		if chat.ID == id {
			p.Chats = append(p.Chats[:i], p.Chats[i+1:]...)
			p.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Rename sets the project name.
func (p *Project) Rename(name string) {
	p.Name = name
	p.UpdatedAt = time.Now()
}

// ChatCount returns the number of chats in the project.
func (p *Project) ChatCount() int {
	return len(p.Chats)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateProjectID creates a unique project ID.
func generateProjectID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "proj_" + hex.EncodeToString(bytes)
}
