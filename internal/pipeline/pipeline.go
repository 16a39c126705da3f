// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/skeinlabs/skein-tui/internal/api"
	"github.com/skeinlabs/skein-tui/internal/logger"
	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyMessage is returned by Send when there is neither content
	// nor an attachment.
	ErrEmptyMessage = errors.New("message needs content or an attachment")

	// ErrExchangeInFlight is returned when a send or regenerate is
	// attempted while another exchange is still running.
	ErrExchangeInFlight = errors.New("an exchange is already in flight")

	// ErrNotRegenerable is returned when regenerate targets a message
	// that is not a settled assistant message.
	ErrNotRegenerable = errors.New("message cannot be regenerated")

	// ErrMessageNotFound is returned when regenerate targets an unknown
	// message in the active entity.
	ErrMessageNotFound = errors.New("message not found")
)

// =============================================================================
// BACKEND CONTRACT
// =============================================================================

// Backend is the slice of the chat service the pipeline needs.
type Backend interface {
	CreateChat(ctx context.Context, title string, initialMessages []*model.Message, modelID string) (*model.Conversation, error)
	UpdateChat(ctx context.Context, chatID string, patch api.UpdateChatRequest) error
	SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, callback api.StreamCallback) error
	RegenerateMessage(ctx context.Context, messages []*model.Message, messageID, modelID string, callback api.StreamCallback) error
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline coordinates exchanges between the store and the chat service.
// One exchange runs at a time; sending while streaming is rejected.
type Pipeline struct {
	store   *store.Store
	backend Backend

	mu      sync.Mutex
	current *Exchange
	catalog *model.Catalog
	modelID string

	notify  func(Event)
	onUsage func()
}

// New creates a pipeline. notify receives exchange events; it may be nil.
func New(st *store.Store, backend Backend, notify func(Event)) *Pipeline {
	if notify == nil {
		notify = func(Event) {}
	}
	return &Pipeline{
		store:   st,
		backend: backend,
		notify:  notify,
	}
}

// SetCatalog supplies model pricing for cost accounting.
func (p *Pipeline) SetCatalog(c *model.Catalog) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalog = c
}

// SetModel selects the model used for new exchanges.
func (p *Pipeline) SetModel(modelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modelID = modelID
}

// SetUsageHook registers a callback fired after every completed
// exchange, once usage totals have changed server-side.
func (p *Pipeline) SetUsageHook(hook func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUsage = hook
}

// Current returns the exchange in flight, or nil.
func (p *Pipeline) Current() *Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Busy reports whether an exchange is still running.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	ex := p.current
	p.mu.Unlock()
	return ex != nil && !ex.State().Terminal()
}

// Cancel stops the exchange in flight, if any. Partial assistant content
// survives with completed status.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	ex := p.current
	p.mu.Unlock()
	if ex != nil {
		ex.Cancel()
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send opens an exchange on the active entity: appends the user message
// and a streaming assistant placeholder, then streams the response in the
// background. When no entity is active, a conversation is created
// optimistically and reconciled against the backend before streaming.
func (p *Pipeline) Send(ctx context.Context, content string, attachments []string, replyTo *model.ReplyRef) (*Exchange, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}

	p.mu.Lock()
	if p.current != nil && !p.current.State().Terminal() {
		p.mu.Unlock()
		return nil, ErrExchangeInFlight
	}
	modelID := p.modelID
	p.mu.Unlock()

	entity := p.store.ActiveEntity()
	tempID := ""
	if entity == nil || entity.IsDeleted {
		entity = p.store.CreateConversationOptimistic(modelID)
		tempID = entity.ID
	}
	if modelID == "" {
		modelID = entity.Model
	}

	userMsg := model.NewUserMessage(content)
	userMsg.Attachments = attachments
	userMsg.ReplyTo = replyTo
	placeholder := model.NewAssistantPlaceholder()

	sel := p.store.SelectorFor(entity.ID)
	if err := p.store.AppendMessage(sel, userMsg); err != nil {
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}
	if err := p.store.AppendMessage(sel, placeholder); err != nil {
		return nil, fmt.Errorf("failed to append assistant placeholder: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ex := &Exchange{
		EntityID:           entity.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: placeholder.ID,
		state:              StateSending,
		cancel:             cancel,
	}

	p.mu.Lock()
	p.current = ex
	p.mu.Unlock()

	p.notify(StartedEvent{EntityID: ex.EntityID, MessageID: ex.AssistantMessageID})

	go p.run(streamCtx, ex, tempID, modelID)
	return ex, nil
}

// run drives one exchange to a terminal state.
func (p *Pipeline) run(ctx context.Context, ex *Exchange, tempID, modelID string) {
	defer ex.Cancel()

	// Resolve the optimistic create first so streaming targets a real
	// entity ID.
	if tempID != "" {
		if err := p.reconcile(ctx, ex, tempID, modelID); err != nil {
			p.fail(ex, err)
			return
		}
	}

	entity := p.store.ConversationByID(ex.EntityID)
	if entity == nil {
		logger.Debug("pipeline: entity %s gone before stream", ex.EntityID)
		p.cancelExchange(ex)
		return
	}
	history := entity.ContextBefore(ex.AssistantMessageID)

	err := p.backend.SendMessageStream(ctx, history, modelID, p.chunkHandler(ex, modelID))
	p.settle(ctx, ex, modelID, err)
}

// reconcile swaps the optimistic temporary conversation for the
// server-confirmed one and re-targets the exchange.
func (p *Pipeline) reconcile(ctx context.Context, ex *Exchange, tempID, modelID string) error {
	temp := p.store.ConversationByID(tempID)
	if temp == nil {
		return store.ErrNotFound
	}

	confirmed, err := p.backend.CreateChat(ctx, temp.DisplayTitle(), nil, modelID)
	if err != nil {
		if rbErr := p.store.RollbackCreate(tempID); rbErr != nil {
			logger.Warn("pipeline: rollback of %s failed: %v", tempID, rbErr)
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}

	if err := p.store.ReconcileCreate(tempID, confirmed); err != nil {
		// The temp entity was deleted mid-flight; the exchange dies with it.
		return err
	}
	ex.EntityID = confirmed.ID
	return nil
}

// =============================================================================
// REGENERATE
// =============================================================================

// Regenerate re-issues the exchange that produced an assistant message,
// streaming the replacement into the same message in place. Only settled
// assistant messages on the active entity can be regenerated.
func (p *Pipeline) Regenerate(ctx context.Context, messageID string) (*Exchange, error) {
	p.mu.Lock()
	if p.current != nil && !p.current.State().Terminal() {
		p.mu.Unlock()
		return nil, ErrExchangeInFlight
	}
	modelID := p.modelID
	p.mu.Unlock()

	entity := p.store.ActiveEntity()
	if entity == nil {
		return nil, ErrMessageNotFound
	}
	msg := entity.MessageByID(messageID)
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.Role != model.RoleAssistant || !msg.IsTerminal() {
		return nil, ErrNotRegenerable
	}
	if modelID == "" {
		modelID = entity.Model
	}

	// Context is everything strictly before the regenerated message; later
	// messages are not part of the re-issued request.
	history := entity.ContextBefore(messageID)

	if !p.store.ResetMessageForRegenerate(entity.ID, messageID) {
		return nil, ErrMessageNotFound
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ex := &Exchange{
		EntityID:           entity.ID,
		AssistantMessageID: messageID,
		Regenerate:         true,
		state:              StateSending,
		cancel:             cancel,
	}

	p.mu.Lock()
	p.current = ex
	p.mu.Unlock()

	p.notify(StartedEvent{EntityID: ex.EntityID, MessageID: messageID})

	go func() {
		defer ex.Cancel()
		err := p.backend.RegenerateMessage(streamCtx, history, messageID, modelID, p.chunkHandler(ex, modelID))
		p.settle(streamCtx, ex, modelID, err)
	}()
	return ex, nil
}

// =============================================================================
// STREAM HANDLING
// =============================================================================

// chunkHandler returns the callback that folds stream chunks into the
// store. Every write re-validates its target; a stale target aborts the
// stream.
func (p *Pipeline) chunkHandler(ex *Exchange, modelID string) api.StreamCallback {
	return func(chunk api.StreamChunk) error {
		if chunk.Error != nil {
			return chunk.Error
		}

		if chunk.Content != "" {
			ex.advance(StateStreaming)
			if !p.store.AppendChunkByID(ex.EntityID, ex.AssistantMessageID, chunk.Content) {
				logger.Debug("pipeline: dropped chunk for stale target %s/%s",
					ex.EntityID, ex.AssistantMessageID)
				return context.Canceled
			}
			p.notify(ChunkEvent{EntityID: ex.EntityID, MessageID: ex.AssistantMessageID})
		}

		if chunk.Done {
			p.complete(ex, modelID, chunk.PromptTokens, chunk.CompletionTokens)
		}
		return nil
	}
}

// settle maps the stream's return into a terminal state, unless the
// exchange already completed through the done chunk.
func (p *Pipeline) settle(ctx context.Context, ex *Exchange, modelID string, err error) {
	if ex.State().Terminal() {
		return
	}
	switch {
	case err == nil:
		// Stream ended without a done marker; treat as complete with
		// unknown usage.
		p.complete(ex, modelID, 0, 0)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		p.cancelExchange(ex)
	default:
		p.fail(ex, err)
	}
}

// complete finalizes a successful exchange: terminal status, cost
// accounting, backend persistence, usage refresh.
func (p *Pipeline) complete(ex *Exchange, modelID string, promptTokens, completionTokens int) {
	if !ex.advance(StateCompleted) {
		return
	}

	p.mu.Lock()
	catalog := p.catalog
	usageHook := p.onUsage
	p.mu.Unlock()

	cost := catalog.Cost(modelID, promptTokens, completionTokens)
	if !p.store.CompleteMessageByID(ex.EntityID, ex.AssistantMessageID, completionTokens, cost) {
		logger.Debug("pipeline: completion for stale target %s/%s",
			ex.EntityID, ex.AssistantMessageID)
		return
	}

	p.persist(ex.EntityID)

	p.notify(CompletedEvent{
		EntityID:  ex.EntityID,
		MessageID: ex.AssistantMessageID,
		Tokens:    completionTokens,
		Cost:      cost,
	})
	if usageHook != nil {
		usageHook()
	}
}

// fail finalizes a failed exchange. The assistant message keeps a
// human-readable reason; there is no automatic retry.
func (p *Pipeline) fail(ex *Exchange, err error) {
	if !ex.advance(StateFailed) {
		return
	}
	logger.Warn("pipeline: exchange on %s failed: %v", ex.EntityID, err)
	p.store.FailMessageByID(ex.EntityID, ex.AssistantMessageID, failureText(err))
	p.notify(FailedEvent{EntityID: ex.EntityID, MessageID: ex.AssistantMessageID, Err: err})
}

// cancelExchange finalizes a user-stopped exchange. Partial content is
// kept and the message settles as completed.
func (p *Pipeline) cancelExchange(ex *Exchange) {
	if !ex.advance(StateCancelled) {
		return
	}
	p.store.CompleteMessageByID(ex.EntityID, ex.AssistantMessageID, 0, 0)
	p.persist(ex.EntityID)
	p.notify(CancelledEvent{EntityID: ex.EntityID, MessageID: ex.AssistantMessageID})
}

// persist pushes the entity's messages to the backend. Temporary
// entities are skipped; they persist through reconciliation.
func (p *Pipeline) persist(entityID string) {
	if strings.HasPrefix(entityID, "tmp_") {
		return
	}
	entity := p.store.ConversationByID(entityID)
	if entity == nil {
		return
	}

	patch := api.UpdateChatRequest{Messages: api.ToWireMessages(entity.Messages)}
	if err := p.backend.UpdateChat(context.Background(), entityID, patch); err != nil {
		// Persistence failures never un-complete the exchange; history
		// will reload from the server next session.
		logger.Warn("pipeline: failed to persist %s: %v", entityID, err)
	}
}

// failureText turns an exchange error into the text shown inside the
// failed assistant message.
func failureText(err error) string {
	switch {
	case api.IsUnreachable(err):
		return "The chat service could not be reached. Check your connection and try again."
	case api.IsTimeout(err):
		return "The request timed out. Try again."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
