// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store is the single source of truth for conversations, projects
// and project chats. Every cross-component mutation goes through the
// operations here; async callers address entities by ID and the store
// drops writes whose target no longer exists.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/model"
)

// DefaultRetention is how long a soft-deleted entity remains recoverable.
const DefaultRetention = 30 * 24 * time.Hour

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a selector or ID addresses nothing.
	// Callers that treat missing targets as expected (stale async writes)
	// check for it with errors.Is and drop silently.
	ErrNotFound = errors.New("entity not found")

	// ErrNoPendingCreate is returned when reconciling a create that is not
	// in flight.
	ErrNoPendingCreate = errors.New("no pending optimistic create")
)

// =============================================================================
// STORE
// =============================================================================

// SwitchHook is invoked after the active entity changes, with the new
// entity's ID and its message count at switch time. The scroll controller
// uses it to tell history apart from genuinely new arrivals.
type SwitchHook func(entityID string, messageCount int)

// Store holds the entity tree and the active selection.
type Store struct {
	mu sync.Mutex

	conversations []*model.Conversation // head = newest
	projects      []*model.Project

	active    model.Selector
	retention time.Duration

	// Optimistic creates in flight, temp ID -> state to restore on failure.
	pending map[string]pendingCreate

	onSwitch SwitchHook
}

// pendingCreate remembers what to restore if a backend create fails.
type pendingCreate struct {
	prevActive model.Selector
}

// New creates an empty store with the default retention window.
func New() *Store {
	return &Store{
		conversations: make([]*model.Conversation, 0),
		projects:      make([]*model.Project, 0),
		retention:     DefaultRetention,
		pending:       make(map[string]pendingCreate),
	}
}

// SetRetention overrides the soft-delete retention window.
func (s *Store) SetRetention(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.retention = d
	}
}

// SetSwitchHook registers the hook called on every active-entity change.
func (s *Store) SetSwitchHook(hook SwitchHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwitch = hook
}

// =============================================================================
// HISTORY SEEDING
// =============================================================================

// LoadHistory replaces the conversation list with entities fetched from
// the backend. Replayed messages never animate. The most recently updated
// conversation becomes active when nothing is active yet.
func (s *Store) LoadHistory(conversations []*model.Conversation) {
	s.mu.Lock()

	s.conversations = make([]*model.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		for _, msg := range conv.Messages {
			msg.Animate = false
		}
		s.conversations = append(s.conversations, conv)
	}
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].UpdatedAt.After(s.conversations[j].UpdatedAt)
	})

	var hook SwitchHook
	var hookID string
	var hookCount int
	if s.active.IsZero() {
		if first := s.firstVisibleLocked(); first != nil {
			s.active = model.ConversationSelector(first.ID)
			hook, hookID, hookCount = s.onSwitch, first.ID, first.MessageCount()
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook(hookID, hookCount)
	}
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// CreateConversation inserts a new empty conversation at the head of the
// list and makes it active. Never fails; backend persistence is a separate
// concern handled by the optimistic-create flow.
func (s *Store) CreateConversation(modelID string) *model.Conversation {
	conv := model.NewConversation(modelID)

	s.mu.Lock()
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.active = model.ConversationSelector(conv.ID)
	hook := s.onSwitch
	s.mu.Unlock()

	if hook != nil {
		hook(conv.ID, 0)
	}
	return conv
}

// CreateConversationOptimistic inserts a conversation under a temporary
// local ID while the backend create is in flight. The caller must resolve
// it with ReconcileCreate or RollbackCreate; until then the temporary
// entity behaves like any other conversation.
func (s *Store) CreateConversationOptimistic(modelID string) *model.Conversation {
	conv := model.NewConversation(modelID)
	conv.ID = "tmp_" + uuid.NewString()

	s.mu.Lock()
	s.pending[conv.ID] = pendingCreate{prevActive: s.active}
	s.conversations = append([]*model.Conversation{conv}, s.conversations...)
	s.active = model.ConversationSelector(conv.ID)
	hook := s.onSwitch
	s.mu.Unlock()

	if hook != nil {
		hook(conv.ID, 0)
	}
	return conv
}

// ReconcileCreate replaces the temporary entity with the server-confirmed
// one at the same ordinal position. After it returns, the temporary ID is
// dead: the local and remote IDs are never both live.
func (s *Store) ReconcileCreate(tempID string, confirmed *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[tempID]; !ok {
		logger.Warn("store: reconcile for unknown create %s", tempID)
		return ErrNoPendingCreate
	}
	delete(s.pending, tempID)

	for i, conv := range s.conversations {
		if conv.ID == tempID {
			// Messages composed against the temporary entity while the
			// create was in flight move over to the confirmed one.
			if len(conv.Messages) > 0 && len(confirmed.Messages) == 0 {
				confirmed.Messages = conv.Messages
			}
			s.conversations[i] = confirmed
			if s.active.ConversationID() == tempID {
				s.active = model.ConversationSelector(confirmed.ID)
			}
			return nil
		}
	}

	// The temporary entity was deleted while the create was in flight.
	// Expected race; the confirmed entity is dropped.
	logger.Debug("store: temp conversation %s gone before reconcile", tempID)
	return ErrNotFound
}

// RollbackCreate removes the temporary entity and restores the
// pre-creation active selection. The caller surfaces the backend error.
func (s *Store) RollbackCreate(tempID string) error {
	s.mu.Lock()

	state, ok := s.pending[tempID]
	if !ok {
		s.mu.Unlock()
		logger.Warn("store: rollback for unknown create %s", tempID)
		return ErrNoPendingCreate
	}
	delete(s.pending, tempID)

	for i, conv := range s.conversations {
		if conv.ID == tempID {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}

	var hook SwitchHook
	var hookID string
	var hookCount int
	if s.active.ConversationID() == tempID {
		s.active = state.prevActive
		if ent := s.entityBySelectorLocked(s.active); ent != nil {
			hook, hookID, hookCount = s.onSwitch, ent.ID, ent.MessageCount()
		} else {
			s.active = s.fallbackSelectorLocked()
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook(hookID, hookCount)
	}
	return nil
}

// =============================================================================
// ACTIVE SELECTION
// =============================================================================

// SwitchActive moves the active pointer to the addressed entity. Loaded
// history is stamped non-animating so a switch never replays the typing
// animation. Unknown or soft-deleted targets are logged no-ops.
func (s *Store) SwitchActive(sel model.Selector) error {
	s.mu.Lock()

	ent := s.entityBySelectorLocked(sel)
	if ent == nil || ent.IsDeleted {
		s.mu.Unlock()
		logger.Warn("store: switch to missing entity %s", sel)
		return ErrNotFound
	}

	for _, msg := range ent.Messages {
		msg.Animate = false
	}
	s.active = sel
	hook := s.onSwitch
	count := ent.MessageCount()
	id := ent.ID
	s.mu.Unlock()

	if hook != nil {
		hook(id, count)
	}
	return nil
}

// Active returns the current selection.
func (s *Store) Active() model.Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveEntity returns the active message-holding entity, or nil.
func (s *Store) ActiveEntity() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityBySelectorLocked(s.active)
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends to the addressed entity, or to the active entity
// when sel is the zero selector.
func (s *Store) AppendMessage(sel model.Selector, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sel.IsZero() {
		sel = s.active
	}
	ent := s.entityBySelectorLocked(sel)
	if ent == nil {
		logger.Warn("store: append to missing entity %s", sel)
		return ErrNotFound
	}
	ent.AddMessage(msg)
	return nil
}

// AppendChunkByID streams a chunk into a message, addressed strictly by
// entity and message ID. Returns false when the target is gone; callers
// treat that as an expected race, not an error.
func (s *Store) AppendChunkByID(entityID, messageID, chunk string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageByIDLocked(entityID, messageID)
	if msg == nil {
		logger.Debug("store: dropped stale chunk for %s/%s", entityID, messageID)
		return false
	}
	msg.AppendChunk(chunk)
	return true
}

// CompleteMessageByID finalizes a streaming message and records its usage.
func (s *Store) CompleteMessageByID(entityID, messageID string, tokens int, cost float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.entityByIDLocked(entityID)
	if ent == nil {
		logger.Debug("store: dropped stale completion for %s/%s", entityID, messageID)
		return false
	}
	msg := ent.MessageByID(messageID)
	if msg == nil {
		logger.Debug("store: dropped stale completion for %s/%s", entityID, messageID)
		return false
	}
	msg.CompleteStream()
	msg.Tokens = tokens
	msg.Cost = cost
	ent.UpdatedAt = time.Now()
	return true
}

// FailMessageByID marks a streaming message failed with explanatory text.
func (s *Store) FailMessageByID(entityID, messageID, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageByIDLocked(entityID, messageID)
	if msg == nil {
		logger.Debug("store: dropped stale failure for %s/%s", entityID, messageID)
		return false
	}
	msg.FailStream(reason)
	return true
}

// ResetMessageForRegenerate returns a message to streaming state in place
// for a regenerate exchange.
func (s *Store) ResetMessageForRegenerate(entityID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messageByIDLocked(entityID, messageID)
	if msg == nil {
		logger.Warn("store: regenerate target %s/%s missing", entityID, messageID)
		return false
	}
	msg.ResetForRegenerate()
	return true
}

// =============================================================================
// RENAME / DELETE
// =============================================================================

// Rename retitles the addressed entity.
func (s *Store) Rename(sel model.Selector, newTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.entityBySelectorLocked(sel)
	if ent == nil {
		logger.Warn("store: rename missing entity %s", sel)
		return ErrNotFound
	}
	ent.SetTitle(newTitle)
	return nil
}

// SoftDelete hides the addressed entity for the retention window and
// re-resolves the active selection if it was the target.
func (s *Store) SoftDelete(sel model.Selector) error {
	return s.deleteOne(sel, false)
}

// PermanentDelete removes the addressed entity immediately and
// irreversibly.
func (s *Store) PermanentDelete(sel model.Selector) error {
	return s.deleteOne(sel, true)
}

func (s *Store) deleteOne(sel model.Selector, permanent bool) error {
	s.mu.Lock()

	ent := s.entityBySelectorLocked(sel)
	if ent == nil {
		s.mu.Unlock()
		logger.Warn("store: delete missing entity %s", sel)
		return ErrNotFound
	}

	if permanent {
		s.removeEntityLocked(sel)
	} else {
		ent.SoftDelete(time.Now())
	}

	hook, hookID, hookCount := s.resolveActiveAfterDeleteLocked(map[string]bool{ent.ID: true})
	s.mu.Unlock()

	if hook != nil {
		hook(hookID, hookCount)
	}
	return nil
}

// BulkSoftDelete soft-deletes every addressed entity, then re-resolves the
// active selection once.
func (s *Store) BulkSoftDelete(selectors []model.Selector) int {
	return s.bulkDelete(selectors, false)
}

// BulkPermanentDelete permanently removes every addressed entity, then
// re-resolves the active selection once.
func (s *Store) BulkPermanentDelete(selectors []model.Selector) int {
	return s.bulkDelete(selectors, true)
}

func (s *Store) bulkDelete(selectors []model.Selector, permanent bool) int {
	now := time.Now()
	deleted := make(map[string]bool, len(selectors))

	s.mu.Lock()
	for _, sel := range selectors {
		ent := s.entityBySelectorLocked(sel)
		if ent == nil {
			logger.Warn("store: bulk delete missing entity %s", sel)
			continue
		}
		if permanent {
			s.removeEntityLocked(sel)
		} else {
			ent.SoftDelete(now)
		}
		deleted[ent.ID] = true
	}

	var hook SwitchHook
	var hookID string
	var hookCount int
	if len(deleted) > 0 {
		hook, hookID, hookCount = s.resolveActiveAfterDeleteLocked(deleted)
	}
	s.mu.Unlock()

	if hook != nil {
		hook(hookID, hookCount)
	}
	return len(deleted)
}

// Restore clears the soft-delete mark on an entity still inside its
// retention window.
func (s *Store) Restore(entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.entityByIDLocked(entityID)
	if ent == nil {
		logger.Warn("store: restore missing entity %s", entityID)
		return ErrNotFound
	}
	ent.Restore()
	return nil
}

// PurgeExpired permanently removes soft-deleted entities whose retention
// window has lapsed. Returns the number purged.
func (s *Store) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	kept := s.conversations[:0]
	for _, conv := range s.conversations {
		if conv.RetentionExpired(now, s.retention) {
			purged++
			continue
		}
		kept = append(kept, conv)
	}
	s.conversations = kept

	keptProjects := s.projects[:0]
	for _, proj := range s.projects {
		if proj.IsDeleted && now.Sub(proj.DeletedAt) > s.retention {
			purged += len(proj.Chats) + 1
			continue
		}
		keptChats := proj.Chats[:0]
		for _, chat := range proj.Chats {
			if chat.RetentionExpired(now, s.retention) {
				purged++
				continue
			}
			keptChats = append(keptChats, chat)
		}
		proj.Chats = keptChats
		keptProjects = append(keptProjects, proj)
	}
	s.projects = keptProjects
	return purged
}

// =============================================================================
// QUERIES
// =============================================================================

// Conversations returns the visible (non-deleted) top-level conversations,
// newest first.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if !conv.IsDeleted {
			out = append(out, conv)
		}
	}
	return out
}

// DeletedConversations returns soft-deleted conversations still inside the
// retention window.
func (s *Store) DeletedConversations() []*model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.IsDeleted {
			out = append(out, conv)
		}
	}
	return out
}

// ConversationByID returns any conversation or project chat by entity ID,
// soft-deleted included. Permanently deleted entities are unretrievable.
func (s *Store) ConversationByID(id string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityByIDLocked(id)
}

// Entity resolves a selector to its message-holding entity, or nil.
func (s *Store) Entity(sel model.Selector) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityBySelectorLocked(sel)
}

// SelectorFor builds the selector addressing an entity ID, searching
// conversations then project chats. Zero selector when unknown.
func (s *Store) SelectorFor(entityID string) model.Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectorForLocked(entityID)
}

// =============================================================================
// INTERNAL RESOLUTION
// =============================================================================

func (s *Store) entityBySelectorLocked(sel model.Selector) *model.Conversation {
	switch sel.Kind() {
	case model.SelectConversation:
		for _, conv := range s.conversations {
			if conv.ID == sel.ConversationID() {
				return conv
			}
		}
	case model.SelectProjectChat:
		projectID, chatID := sel.ProjectChatIDs()
		for _, proj := range s.projects {
			if proj.ID != projectID {
				continue
			}
			if chat := proj.ChatByID(chatID); chat != nil {
				return &chat.Conversation
			}
		}
	}
	return nil
}

func (s *Store) entityByIDLocked(id string) *model.Conversation {
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv
		}
	}
	for _, proj := range s.projects {
		if chat := proj.ChatByID(id); chat != nil {
			return &chat.Conversation
		}
	}
	return nil
}

func (s *Store) messageByIDLocked(entityID, messageID string) *model.Message {
	ent := s.entityByIDLocked(entityID)
	if ent == nil {
		return nil
	}
	return ent.MessageByID(messageID)
}

func (s *Store) selectorForLocked(entityID string) model.Selector {
	for _, conv := range s.conversations {
		if conv.ID == entityID {
			return model.ConversationSelector(conv.ID)
		}
	}
	for _, proj := range s.projects {
		if chat := proj.ChatByID(entityID); chat != nil {
			return model.ProjectChatSelector(proj.ID, chat.ID)
		}
	}
	return model.Selector{}
}

func (s *Store) removeEntityLocked(sel model.Selector) {
	switch sel.Kind() {
	case model.SelectConversation:
		id := sel.ConversationID()
		for i, conv := range s.conversations {
			if conv.ID == id {
				s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
				return
			}
		}
	case model.SelectProjectChat:
		projectID, chatID := sel.ProjectChatIDs()
		for _, proj := range s.projects {
			if proj.ID == projectID {
				proj.RemoveChat(chatID)
				return
			}
		}
	}
}

// firstVisibleLocked returns the most recently updated non-deleted
// conversation, falling back to the most recent project chat.
func (s *Store) firstVisibleLocked() *model.Conversation {
	var best *model.Conversation
	for _, conv := range s.conversations {
		if conv.IsDeleted {
			continue
		}
		if best == nil || conv.UpdatedAt.After(best.UpdatedAt) {
			best = conv
		}
	}
	if best != nil {
		return best
	}
	for _, proj := range s.projects {
		if proj.IsDeleted {
			continue
		}
		for _, chat := range proj.Chats {
			if chat.IsDeleted {
				continue
			}
			if best == nil || chat.UpdatedAt.After(best.UpdatedAt) {
				best = &chat.Conversation
			}
		}
	}
	return best
}

// fallbackSelectorLocked computes the deterministic fallback selection:
// the most recent non-deleted entity, or the zero selector when none is
// left. The active pointer never dangles.
func (s *Store) fallbackSelectorLocked() model.Selector {
	ent := s.firstVisibleLocked()
	if ent == nil {
		return model.Selector{}
	}
	return s.selectorForLocked(ent.ID)
}

// resolveActiveAfterDeleteLocked re-points the active selection when its
// target was among the deleted set, returning the switch hook to fire
// after the lock is released.
func (s *Store) resolveActiveAfterDeleteLocked(deleted map[string]bool) (SwitchHook, string, int) {
	activeEnt := s.entityBySelectorLocked(s.active)
	activeGone := activeEnt == nil || activeEnt.IsDeleted || deleted[s.active.EntityID()]
	if !activeGone {
		return nil, "", 0
	}

	s.active = s.fallbackSelectorLocked()
	ent := s.entityBySelectorLocked(s.active)
	if ent == nil {
		return nil, "", 0
	}
	for _, msg := range ent.Messages {
		msg.Animate = false
	}
	return s.onSwitch, ent.ID, ent.MessageCount()
}
