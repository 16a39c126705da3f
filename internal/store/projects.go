// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/model"
)

// =============================================================================
// PROJECT OPERATIONS
// =============================================================================

// CreateProject inserts a new empty project at the head of the project
// list. Projects never hold messages directly, so the active selection is
// untouched.
func (s *Store) CreateProject(name string) *model.Project {
	proj := model.NewProject(name)

	s.mu.Lock()
	s.projects = append([]*model.Project{proj}, s.projects...)
	s.mu.Unlock()

	return proj
}

// RenameProject retitles a project.
func (s *Store) RenameProject(projectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj := s.projectByIDLocked(projectID)
	if proj == nil {
		logger.Warn("store: rename missing project %s", projectID)
		return ErrNotFound
	}
	proj.Rename(name)
	return nil
}

// DeleteProject soft-deletes a project and cascades to its chats: no chat
// survives its project. The active selection is re-resolved if it pointed
// inside the project.
func (s *Store) DeleteProject(projectID string) error {
	return s.deleteProject(projectID, false)
}

// DeleteProjectPermanent removes a project and its chats immediately and
// irreversibly; neither stays addressable by ID.
func (s *Store) DeleteProjectPermanent(projectID string) error {
	return s.deleteProject(projectID, true)
}

func (s *Store) deleteProject(projectID string, permanent bool) error {
	s.mu.Lock()

	proj := s.projectByIDLocked(projectID)
	if proj == nil {
		s.mu.Unlock()
		logger.Warn("store: delete missing project %s", projectID)
		return ErrNotFound
	}

	now := time.Now()
	deleted := make(map[string]bool, len(proj.Chats))
	for _, chat := range proj.Chats {
		deleted[chat.ID] = true
	}
	if permanent {
		for i, p := range s.projects {
			if p.ID == projectID {
				s.projects = append(s.projects[:i], s.projects[i+1:]...)
				break
			}
		}
	} else {
		proj.IsDeleted = true
		proj.DeletedAt = now
		for _, chat := range proj.Chats {
			chat.SoftDelete(now)
		}
	}

	hook, hookID, hookCount := s.resolveActiveAfterDeleteLocked(deleted)
	s.mu.Unlock()

	if hook != nil {
		hook(hookID, hookCount)
	}
	return nil
}

// AddChatToProject creates a chat at the head of the project's chat list
// and makes it active.
func (s *Store) AddChatToProject(projectID, modelID string) (*model.ProjectChat, error) {
	s.mu.Lock()

	proj := s.projectByIDLocked(projectID)
	if proj == nil || proj.IsDeleted {
		s.mu.Unlock()
		logger.Warn("store: add chat to missing project %s", projectID)
		return nil, ErrNotFound
	}

	chat := model.NewProjectChat(projectID, modelID)
	proj.AddChat(chat)
	s.active = model.ProjectChatSelector(projectID, chat.ID)
	hook := s.onSwitch
	s.mu.Unlock()

	if hook != nil {
		hook(chat.ID, 0)
	}
	return chat, nil
}

// RenameChat retitles a chat under a project.
func (s *Store) RenameChat(projectID, chatID, newTitle string) error {
	return s.Rename(model.ProjectChatSelector(projectID, chatID), newTitle)
}

// DeleteChat soft-deletes a chat under a project.
func (s *Store) DeleteChat(projectID, chatID string) error {
	return s.SoftDelete(model.ProjectChatSelector(projectID, chatID))
}

// Projects returns the visible (non-deleted) projects, newest first.
// Each project's chat list is filtered the same way.
func (s *Store) Projects() []*model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Project, 0, len(s.projects))
	for _, proj := range s.projects {
		if proj.IsDeleted {
			continue
		}
		visible := &model.Project{
			ID:        proj.ID,
			Name:      proj.Name,
			CreatedAt: proj.CreatedAt,
			UpdatedAt: proj.UpdatedAt,
			Chats:     make([]*model.ProjectChat, 0, len(proj.Chats)),
		}
		for _, chat := range proj.Chats {
			if !chat.IsDeleted {
				visible.Chats = append(visible.Chats, chat)
			}
		}
		out = append(out, visible)
	}
	return out
}

// ProjectByID returns a project by ID, soft-deleted included.
func (s *Store) ProjectByID(id string) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectByIDLocked(id)
}

func (s *Store) projectByIDLocked(id string) *model.Project {
	for _, proj := range s.projects {
		if proj.ID == id {
			return proj
		}
	}
	return nil
}
