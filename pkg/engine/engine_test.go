package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/config"
	"github.com/tenex-chat/tenex/pkg/messagebuilder"
	"github.com/tenex-chat/tenex/pkg/nostr"
)

var fullID1 = "1111111111111111111111111111111111111111111111111111111111111111"[:64]
var fullID2 = "2222222222222222222222222222222222222222222222222222222222222222"[:64]

type fakeSigner struct{ pubkey string }

func (f *fakeSigner) Pubkey(ctx context.Context) (string, error) { return f.pubkey, nil }

func (f *fakeSigner) Sign(ctx context.Context, ev *nostr.Event) error {
	ev.Sig = "sig"
	return nil
}

type fakeRelay struct{ published []*nostr.Event }

func (f *fakeRelay) Publish(ctx context.Context, ev *nostr.Event) error {
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeRelay) FetchByID(ctx context.Context, id string) (*nostr.Event, error) {
	return nil, nil
}

func (f *fakeRelay) FetchAddressable(ctx context.Context, ref nostr.AddressableRef) (*nostr.Event, error) {
	return nil, nil
}

type fakeModelProvider struct {
	response ModelResponse
}

func (f *fakeModelProvider) Complete(ctx context.Context, messages []messagebuilder.Message) (ModelResponse, error) {
	return f.response, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &config.Config{}
	cfg.Persistence.Backend = "memory"
	e, err := New(context.Background(), cfg, &fakeSigner{pubkey: "agent-pub"}, &fakeRelay{}, &fakeModelProvider{})
	require.NoError(t, err)
	return e
}

func TestNewBuildsEveryCollaborator(t *testing.T) {
	e := newTestEngine(t)
	assert.NotNil(t, e.adapter)
	assert.NotNil(t, e.coordinator)
	assert.NotNil(t, e.publisher)
	assert.NotNil(t, e.lessons)
	assert.Nil(t, e.httpServer, "no listen_addr configured")
}

func TestHandleEventCreatesConversationOnFirstContact(t *testing.T) {
	e := newTestEngine(t)
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "hello"}

	conv, err := e.HandleEvent(context.Background(), ev, fullID1, "")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, fullID1, conv.ID)
}

func TestHandleEventAppendsToExistingConversation(t *testing.T) {
	e := newTestEngine(t)
	first := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "hello"}
	_, err := e.HandleEvent(context.Background(), first, fullID1, "")
	require.NoError(t, err)

	second := &nostr.Event{ID: fullID2, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "follow-up"}
	conv, err := e.HandleEvent(context.Background(), second, fullID1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())
}

func TestHandleEventRejectsMalformedEventID(t *testing.T) {
	e := newTestEngine(t)
	ev := &nostr.Event{ID: "not-a-valid-id", Pubkey: "user1", Kind: nostr.KindGenericText}

	_, err := e.HandleEvent(context.Background(), ev, "not-a-valid-id", "")
	require.Error(t, err)
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, CodeInvalidEvent, engErr.Code)
}

func TestCompleteDelegatesToModelProvider(t *testing.T) {
	e := newTestEngine(t)
	e.modelProvider = &fakeModelProvider{response: ModelResponse{Content: "done", Model: "test-model"}}

	resp, err := e.Complete(context.Background(), []messagebuilder.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
}

func TestShutdownFlushesConversationsAndClosesCleanly(t *testing.T) {
	e := newTestEngine(t)
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "hello"}
	_, err := e.HandleEvent(context.Background(), ev, fullID1, "")
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))

	stored, err := e.adapter.Load(context.Background(), fullID1)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestQueueStatusReportsEmptyQueueInitially(t *testing.T) {
	e := newTestEngine(t)
	status := e.QueueStatus()
	assert.Empty(t, status.Locks)
}
