// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skeinlabs/skein-tui/internal/api"
	"github.com/skeinlabs/skein-tui/internal/model"
	"github.com/skeinlabs/skein-tui/internal/store"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

// fakeBackend scripts the chat service: a fixed chunk sequence, optional
// failures, and a block channel for cancellation tests.
type fakeBackend struct {
	mu sync.Mutex

	chunks           []string
	promptTokens     int
	completionTokens int

	createErr error
	streamErr error

	// block, when non-nil, makes the stream hang after its chunks until
	// the context is cancelled.
	block chan struct{}

	createdTitles []string
	updates       map[string]api.UpdateChatRequest
	lastHistory   []*model.Message
}

func newFakeBackend(chunks ...string) *fakeBackend {
	return &fakeBackend{
		chunks:  chunks,
		updates: make(map[string]api.UpdateChatRequest),
	}
}

func (f *fakeBackend) CreateChat(ctx context.Context, title string, initial []*model.Message, modelID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdTitles = append(f.createdTitles, title)
	conv := model.NewConversation(modelID)
	conv.ID = "conv_server1"
	return conv, nil
}

func (f *fakeBackend) UpdateChat(ctx context.Context, chatID string, patch api.UpdateChatRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[chatID] = patch
	return nil
}

func (f *fakeBackend) SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, callback api.StreamCallback) error {
	return f.stream(ctx, messages, callback)
}

func (f *fakeBackend) RegenerateMessage(ctx context.Context, messages []*model.Message, messageID, modelID string, callback api.StreamCallback) error {
	return f.stream(ctx, messages, callback)
}

func (f *fakeBackend) stream(ctx context.Context, messages []*model.Message, callback api.StreamCallback) error {
	f.mu.Lock()
	f.lastHistory = messages
	chunks := f.chunks
	streamErr := f.streamErr
	block := f.block
	prompt, completion := f.promptTokens, f.completionTokens
	f.mu.Unlock()

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := callback(api.StreamChunk{Content: c}); err != nil {
			return err
		}
	}
	if streamErr != nil {
		return streamErr
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return callback(api.StreamChunk{
		Done:             true,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	})
}

func (f *fakeBackend) updateFor(chatID string) (api.UpdateChatRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	patch, ok := f.updates[chatID]
	return patch, ok
}

// =============================================================================
// EVENT COLLECTION
// =============================================================================

func eventRecorder() (func(Event), <-chan Event) {
	ch := make(chan Event, 64)
	return func(ev Event) { ch <- ev }, ch
}

func waitForEvent[T Event](t *testing.T, ch <-chan Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// =============================================================================
// SEND
// =============================================================================

func TestPipeline_SendEmptyRejected(t *testing.T) {
	st := store.New()
	p := New(st, newFakeBackend(), nil)

	_, err := p.Send(context.Background(), "   ", nil, nil)
	require.ErrorIs(t, err, ErrEmptyMessage)

	// An attachment alone is enough.
	backend := newFakeBackend("ok")
	p = New(st, backend, nil)
	ex, err := p.Send(context.Background(), "", []string{"report.pdf"}, nil)
	require.NoError(t, err)
	require.NotNil(t, ex)
}

func TestPipeline_SendStreamsIntoActiveEntity(t *testing.T) {
	st := store.New()
	conv := st.CreateConversation("gpt-test")

	backend := newFakeBackend("Hel", "lo ", "there")
	backend.promptTokens = 12
	backend.completionTokens = 7

	notify, events := eventRecorder()
	p := New(st, backend, notify)
	p.SetModel("gpt-test")
	p.SetCatalog(model.NewCatalog([]model.ModelDescriptor{
		{ID: "gpt-test", InputPrice: 1_000_000, OutputPrice: 2_000_000},
	}))

	ex, err := p.Send(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	done := waitForEvent[CompletedEvent](t, events)
	require.Equal(t, conv.ID, done.EntityID)
	require.Equal(t, 7, done.Tokens)
	require.InDelta(t, 12*1.0+7*2.0, done.Cost, 1e-9)

	require.Equal(t, StateCompleted, ex.State())
	require.Equal(t, 2, conv.MessageCount())

	assistant := conv.MessageByID(ex.AssistantMessageID)
	require.NotNil(t, assistant)
	require.Equal(t, model.StatusCompleted, assistant.Status)
	require.Equal(t, "Hello there", assistant.Content)

	// The completed conversation was pushed back to the backend.
	patch, ok := backend.updateFor(conv.ID)
	require.True(t, ok)
	require.Len(t, patch.Messages, 2)
}

func TestPipeline_SendRejectsConcurrent(t *testing.T) {
	st := store.New()
	st.CreateConversation("gpt-test")

	backend := newFakeBackend("slow")
	backend.block = make(chan struct{})

	notify, events := eventRecorder()
	p := New(st, backend, notify)

	_, err := p.Send(context.Background(), "first", nil, nil)
	require.NoError(t, err)
	waitForEvent[ChunkEvent](t, events)

	_, err = p.Send(context.Background(), "second", nil, nil)
	require.ErrorIs(t, err, ErrExchangeInFlight)

	close(backend.block)
	waitForEvent[CompletedEvent](t, events)

	// Once settled, the next send goes through.
	_, err = p.Send(context.Background(), "third", nil, nil)
	require.NoError(t, err)
}

// =============================================================================
// OPTIMISTIC CREATE
// =============================================================================

func TestPipeline_SendCreatesConversationOptimistically(t *testing.T) {
	st := store.New()

	backend := newFakeBackend("answer")
	notify, events := eventRecorder()
	p := New(st, backend, notify)
	p.SetModel("gpt-test")

	_, err := p.Send(context.Background(), "bootstrap question", nil, nil)
	require.NoError(t, err)

	done := waitForEvent[CompletedEvent](t, events)

	// Streaming happened against the server-confirmed ID, never the temp.
	require.Equal(t, "conv_server1", done.EntityID)
	conv := st.ConversationByID("conv_server1")
	require.NotNil(t, conv)
	require.Equal(t, 2, conv.MessageCount())
	require.Equal(t, "bootstrap question", conv.Messages[0].Content)
	require.Equal(t, "conv_server1", st.Active().ConversationID())
}

func TestPipeline_CreateFailureRollsBack(t *testing.T) {
	st := store.New()
	prev := st.CreateConversation("gpt-test")
	prev.AddMessage(model.NewUserMessage("existing"))
	// Clear the active selection by deleting and restoring nothing: use a
	// fresh store state instead.
	st.SoftDelete(model.ConversationSelector(prev.ID))

	backend := newFakeBackend()
	backend.createErr = errors.New("service said no")

	notify, events := eventRecorder()
	p := New(st, backend, notify)
	p.SetModel("gpt-test")

	_, err := p.Send(context.Background(), "doomed", nil, nil)
	require.NoError(t, err)

	waitForEvent[FailedEvent](t, events)

	// The optimistic conversation is gone and nothing visible remains.
	require.Empty(t, st.Conversations())
	for _, conv := range st.DeletedConversations() {
		require.NotContains(t, conv.ID, "tmp_")
	}
}

// =============================================================================
// FAILURE AND CANCELLATION
// =============================================================================

func TestPipeline_StreamErrorFailsMessage(t *testing.T) {
	st := store.New()
	conv := st.CreateConversation("gpt-test")

	backend := newFakeBackend("par", "tial")
	backend.streamErr = errors.New("connection reset")

	notify, events := eventRecorder()
	p := New(st, backend, notify)

	ex, err := p.Send(context.Background(), "hi", nil, nil)
	require.NoError(t, err)

	failed := waitForEvent[FailedEvent](t, events)
	require.Equal(t, conv.ID, failed.EntityID)
	require.Equal(t, StateFailed, ex.State())

	assistant := conv.MessageByID(ex.AssistantMessageID)
	require.Equal(t, model.StatusFailed, assistant.Status)
	// The partial content is replaced by the failure text.
	require.Contains(t, assistant.Content, "Something went wrong")
}

func TestPipeline_CancelKeepsPartialContent(t *testing.T) {
	st := store.New()
	conv := st.CreateConversation("gpt-test")

	backend := newFakeBackend("partial answer")
	backend.block = make(chan struct{})

	notify, events := eventRecorder()
	p := New(st, backend, notify)

	ex, err := p.Send(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	waitForEvent[ChunkEvent](t, events)

	p.Cancel()
	waitForEvent[CancelledEvent](t, events)

	require.Equal(t, StateCancelled, ex.State())
	assistant := conv.MessageByID(ex.AssistantMessageID)
	// Cancellation keeps what already streamed, settled as completed.
	require.Equal(t, model.StatusCompleted, assistant.Status)
	require.Equal(t, "partial answer", assistant.Content)
}

// =============================================================================
// REGENERATE
// =============================================================================

func seedExchange(t *testing.T, st *store.Store) (*model.Conversation, *model.Message) {
	t.Helper()
	conv := st.CreateConversation("gpt-test")
	conv.AddMessage(model.NewUserMessage("question"))
	assistant := model.NewAssistantPlaceholder()
	conv.AddMessage(assistant)
	assistant.AppendChunk("old answer")
	assistant.CompleteStream()
	return conv, assistant
}

func TestPipeline_RegenerateReplacesInPlace(t *testing.T) {
	st := store.New()
	conv, assistant := seedExchange(t, st)
	conv.AddMessage(model.NewUserMessage("later message"))

	backend := newFakeBackend("new answer")
	notify, events := eventRecorder()
	p := New(st, backend, notify)

	ex, err := p.Regenerate(context.Background(), assistant.ID)
	require.NoError(t, err)
	require.True(t, ex.Regenerate)

	waitForEvent[CompletedEvent](t, events)

	require.Equal(t, "new answer", assistant.Content)
	require.Equal(t, model.StatusCompleted, assistant.Status)

	// The request context is strictly prior: the later user message is
	// not part of it.
	backend.mu.Lock()
	history := backend.lastHistory
	backend.mu.Unlock()
	require.Len(t, history, 1)
	require.Equal(t, "question", history[0].Content)
}

func TestPipeline_RegenerateRejectsBadTargets(t *testing.T) {
	st := store.New()
	conv, _ := seedExchange(t, st)

	p := New(st, newFakeBackend(), nil)

	_, err := p.Regenerate(context.Background(), conv.Messages[0].ID)
	require.ErrorIs(t, err, ErrNotRegenerable, "user messages cannot regenerate")

	_, err = p.Regenerate(context.Background(), "msg_unknown")
	require.ErrorIs(t, err, ErrMessageNotFound)

	streaming := model.NewAssistantPlaceholder()
	conv.AddMessage(streaming)
	_, err = p.Regenerate(context.Background(), streaming.ID)
	require.ErrorIs(t, err, ErrNotRegenerable, "in-flight messages cannot regenerate")
}
