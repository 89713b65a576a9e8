package phase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/store"
)

func TestTransitionRecordsHandoffEvenSamePhase(t *testing.T) {
	q := execqueue.New(time.Minute)
	m := NewManager(q)
	conv := store.New("conv1", "Title")

	res, err := m.Transition(context.Background(), conv, TransitionRequest{
		ConversationID: "conv1", From: Chat, To: Chat, AgentPubkey: "pm",
	})
	require.NoError(t, err)
	assert.True(t, res.Materialised)
	assert.Len(t, conv.PhaseTransitions, 1)

	counts, ok := conv.GetMetadata(store.MetaContinueCounts)
	require.True(t, ok)
	assert.Equal(t, 1, counts.(map[string]int)[string(Chat)])
}

func TestTransitionDoesNotBumpContinueCountOnPhaseChange(t *testing.T) {
	q := execqueue.New(time.Minute)
	m := NewManager(q)
	conv := store.New("conv1", "Title")

	_, err := m.Transition(context.Background(), conv, TransitionRequest{
		ConversationID: "conv1", From: Chat, To: Brainstorm, AgentPubkey: "pm",
	})
	require.NoError(t, err)

	_, ok := conv.GetMetadata(store.MetaContinueCounts)
	assert.False(t, ok)
}

func TestTransitionToExecuteRequiresQueueGrant(t *testing.T) {
	q := execqueue.New(time.Minute)
	m := NewManager(q)

	convA := store.New("convA", "A")
	resA, err := m.Transition(context.Background(), convA, TransitionRequest{
		ConversationID: "convA", From: Chat, To: Execute, AgentPubkey: "pm",
	})
	require.NoError(t, err)
	assert.True(t, resA.Materialised)

	convB := store.New("convB", "B")
	// Same conversation id contention: simulate a second agent racing for
	// the SAME conversation's execute phase.
	resB, err := m.Transition(context.Background(), convA, TransitionRequest{
		ConversationID: "convA", From: Chat, To: Execute, AgentPubkey: "dev",
	})
	require.NoError(t, err)
	assert.False(t, resB.Materialised)
	assert.Equal(t, 1, resB.QueuePosition)

	_, ok := convA.GetMetadata(store.MetaQueueStatus)
	assert.True(t, ok)
	_ = convB
}

func TestLeavingReflectionForChatClearsReadFiles(t *testing.T) {
	q := execqueue.New(time.Minute)
	m := NewManager(q)
	conv := store.New("conv1", "Title")
	conv.SetMetadata(store.MetaReadFiles, []string{"a.go"})

	_, err := m.Transition(context.Background(), conv, TransitionRequest{
		ConversationID: "conv1", From: Reflection, To: Chat, AgentPubkey: "pm",
	})
	require.NoError(t, err)

	_, ok := conv.GetMetadata(store.MetaReadFiles)
	assert.False(t, ok)
}

func TestLeavingExecuteReleasesLock(t *testing.T) {
	q := execqueue.New(time.Minute)
	m := NewManager(q)
	conv := store.New("conv1", "Title")

	_, err := m.Transition(context.Background(), conv, TransitionRequest{
		ConversationID: "conv1", From: Chat, To: Execute, AgentPubkey: "pm",
	})
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), conv, TransitionRequest{
		ConversationID: "conv1", From: Execute, To: Chat, AgentPubkey: "pm",
	})
	require.NoError(t, err)

	status := q.GetStatus("conv1")
	assert.False(t, status.Locked)
}
