package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/decoder"
	"github.com/tenex-chat/tenex/pkg/delegation"
	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/nostr"
	"github.com/tenex-chat/tenex/pkg/persistence"
	"github.com/tenex-chat/tenex/pkg/phase"
	"github.com/tenex-chat/tenex/pkg/registry"
)

func newTestCoordinator() *Coordinator {
	reg := registry.New()
	queue := execqueue.New(0)
	return New(persistence.NewMemoryAdapter(), reg, phase.NewManager(queue), delegation.New(), nil)
}

var fullID1 = "1111111111111111111111111111111111111111111111111111111111111111"[:64]

func TestCreateConversationDerivesIDAndAppendsFirstEvent(t *testing.T) {
	c := newTestCoordinator()
	ev := &nostr.Event{
		ID:      fullID1,
		Pubkey:  "user1",
		Kind:    nostr.KindGenericText,
		Content: "@pm review",
		Tags:    nostr.Tags{{"p", "pm"}},
	}

	conv, err := c.CreateConversation(context.Background(), ev, "proj1")
	require.NoError(t, err)
	assert.Equal(t, fullID1, conv.ID)
	assert.Equal(t, "Untitled", conv.Title)
	require.Len(t, conv.History, 1)
	assert.Equal(t, "@pm review", conv.History[0].Content)
}

func TestCreateConversationRejectsInvalidEventID(t *testing.T) {
	c := newTestCoordinator()
	ev := &nostr.Event{ID: "not-a-valid-id", Pubkey: "user1", Kind: nostr.KindGenericText}

	_, err := c.CreateConversation(context.Background(), ev, "proj1")
	require.Error(t, err)
	var invalid *InvalidEventError
	assert.ErrorAs(t, err, &invalid)
}

func TestAddEventUnknownConversationReturnsNotFound(t *testing.T) {
	c := newTestCoordinator()
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "hi"}

	_, err := c.AddEvent(context.Background(), "never-created", ev, decoder.Decoded{})
	require.Error(t, err)
	var notFound *ConversationNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAddEventUpdatesSummaryOnlyForUserAuthoredEvents(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "@pm review", Tags: nostr.Tags{{"p", "pm"}}}
	conv, err := c.CreateConversation(ctx, ev, "proj1")
	require.NoError(t, err)

	c.registry.RegisterAgent("pm")

	agentEv := &nostr.Event{ID: "2222222222222222222222222222222222222222222222222222222222222222"[:64], Pubkey: "pm", Kind: nostr.KindGenericText, Content: "on it"}
	_, err = c.AddEvent(ctx, conv.ID, agentEv, decoder.Decoded{})
	require.NoError(t, err)

	summary, _ := conv.GetMetadata("last_user_message")
	assert.Equal(t, "@pm review", summary)
}

func TestUpdatePhaseDeniedWhenQueueHeld(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "go"}
	conv, err := c.CreateConversation(ctx, ev, "proj1")
	require.NoError(t, err)

	_, err = c.UpdatePhase(ctx, conv.ID, phase.TransitionRequest{To: phase.Execute, AgentPubkey: "a"})
	require.NoError(t, err)

	_, err = c.UpdatePhase(ctx, conv.ID, phase.TransitionRequest{From: phase.Execute, To: phase.Execute, AgentPubkey: "b"})
	require.Error(t, err)
	var denied *PhaseDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 1, denied.QueuePosition)
}

func TestBuildAgentMessagesAdvancesWatermark(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "@pm review", Tags: nostr.Tags{{"p", "pm"}}}
	conv, err := c.CreateConversation(ctx, ev, "proj1")
	require.NoError(t, err)

	result, err := c.BuildAgentMessages(ctx, conv.ID, "pm", BuildAgentMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	state := conv.AgentStateFor("pm")
	assert.Equal(t, 1, state.LastProcessedMessageIndex)
}

func TestBeginDelegationAppendsMarkerAndRegistersRecord(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()
	ev := &nostr.Event{ID: fullID1, Pubkey: "orchestrator", Kind: nostr.KindGenericText, Content: "go"}
	conv, err := c.CreateConversation(ctx, ev, "proj1")
	require.NoError(t, err)

	rec, err := c.BeginDelegation(ctx, "delegation-event-1", "orchestrator", conv.ID, "child-conv-1", []string{"dev"})
	require.NoError(t, err)
	assert.Equal(t, delegation.Pending, rec.Status)
	require.Len(t, conv.History, 2)
	assert.Equal(t, "child-conv-1", conv.History[1].DelegationConversationID)

	result, err := c.RecordDelegationCompletion(ctx, "delegation-event-1", "dev", "response-event-1")
	require.NoError(t, err)
	assert.True(t, result.AllResponded)
}

func TestRecordDelegationCompletionOrphanReturnsTypedError(t *testing.T) {
	c := newTestCoordinator()

	_, err := c.RecordDelegationCompletion(context.Background(), "no-such-delegation", "dev", "response-event-1")
	require.Error(t, err)
	var orphan *DelegationOrphanError
	assert.ErrorAs(t, err, &orphan)
}

func TestArchiveConversationRemovesFromActiveSet(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()
	ev := &nostr.Event{ID: fullID1, Pubkey: "user1", Kind: nostr.KindGenericText, Content: "hi"}
	conv, err := c.CreateConversation(ctx, ev, "proj1")
	require.NoError(t, err)

	require.NoError(t, c.ArchiveConversation(ctx, conv.ID))

	_, err = c.getConversation(ctx, conv.ID)
	require.Error(t, err)
	var notFound *ConversationNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
