package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/nostr"
)

type fakeSigner struct{ pubkey string }

func (f *fakeSigner) Pubkey(ctx context.Context) (string, error) { return f.pubkey, nil }

func (f *fakeSigner) Sign(ctx context.Context, ev *nostr.Event) error {
	ev.ID = "signed-" + ev.Pubkey
	ev.Sig = "sig"
	return nil
}

type fakeRelay struct {
	published []*nostr.Event
}

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

func newTestPublisher() (*Publisher, *fakeRelay) {
	relay := &fakeRelay{}
	return New(&fakeSigner{pubkey: "agent-pub"}, relay), relay
}

func triggeringFrom(id, author string) *TriggeringEvent {
	return &TriggeringEvent{ID: id, AuthorPubkey: author, Content: "please review this change for correctness"}
}

func TestPublishCompletionRoutesToDelegatorAndMarksComplete(t *testing.T) {
	p, relay := newTestPublisher()
	pc := Context{ProjectRef: "31933:pub:proj", Phase: "execute"}
	pc.TriggeringEvent = triggeringFrom("req-1", "delegator-pub")

	ev, err := p.PublishCompletion(context.Background(), CompletionIntent{Content: "done"}, pc)
	require.NoError(t, err)
	require.Len(t, relay.published, 1)

	assert.Equal(t, nostr.StatusCompleted, ev.Tags.Value(nostr.TagStatus))
	assert.Equal(t, "complete", ev.Tags.Value(nostr.TagTool))
	assert.Equal(t, "req-1", ev.Tags.Value(nostr.TagReply))
	assert.Equal(t, "delegator-pub", ev.Tags.Value(nostr.TagPubkey))
	assert.Equal(t, "execute", ev.Tags.Value(nostr.TagPhase))
}

func TestPublishCompletionPrefersExplicitRecipientOverTriggeringAuthor(t *testing.T) {
	p, _ := newTestPublisher()
	pc := Context{TriggeringEvent: triggeringFrom("req-1", "delegator-pub")}

	ev, err := p.PublishCompletion(context.Background(), CompletionIntent{
		Content:                   "done",
		CompletionRecipientPubkey: "explicit-recipient",
	}, pc)
	require.NoError(t, err)
	assert.Equal(t, "explicit-recipient", ev.Tags.Value(nostr.TagPubkey))
}

func TestThreadTagsCollapseToRootWhenTriggeringEventHasRoot(t *testing.T) {
	p, _ := newTestPublisher()
	pc := Context{TriggeringEvent: &TriggeringEvent{ID: "child-1", RootID: "root-1", AuthorPubkey: "u"}}

	ev, err := p.PublishConversation(context.Background(), ConversationIntent{Content: "hi"}, pc)
	require.NoError(t, err)
	assert.Equal(t, "root-1", ev.Tags.Value(nostr.TagReply))
}

func TestPublishDelegationsEmitsOneEventPerRecipient(t *testing.T) {
	p, relay := newTestPublisher()
	intent := DelegationIntent{
		Type: "fan-out",
		Delegations: []DelegationRequest{
			{Recipient: "dev", Request: "implement x"},
			{Recipient: "qa", Request: "test x"},
		},
	}

	events, err := p.PublishDelegations(context.Background(), intent, "conv-root", Context{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Len(t, relay.published, 2)

	assert.Equal(t, "dev", events[0].Tags.Value(nostr.TagPubkey))
	assert.Equal(t, "conv-root", events[0].Tags.Value(nostr.TagRoot))
	assert.Equal(t, "qa", events[1].Tags.Value(nostr.TagPubkey))
}

func TestPublishToolUseAdvertisesToolTagAndFallsBackToDataJSON(t *testing.T) {
	p, _ := newTestPublisher()
	ev, err := p.PublishToolUse(context.Background(), ToolUseIntent{
		ToolName: "read_file",
		Args:     map[string]any{"path": "main.go"},
	}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "read_file", ev.Tags.Value(nostr.TagTool))
	assert.Contains(t, ev.Content, "read_file")
}

func TestUsageTagsOmittedWhenEmpty(t *testing.T) {
	p, _ := newTestPublisher()
	ev, err := p.PublishConversation(context.Background(), ConversationIntent{Content: "hi"}, Context{})
	require.NoError(t, err)
	_, ok := ev.Tags.Find("llm-model")
	assert.False(t, ok)
}

func TestUsageTagsIncludeEightDecimalCost(t *testing.T) {
	p, _ := newTestPublisher()
	ev, err := p.PublishConversation(context.Background(), ConversationIntent{
		Content: "hi",
		Usage:   &Usage{Model: "gpt-5", CostUSD: 0.00012345, PromptTokens: 10},
	}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", ev.Tags.Value("llm-model"))
	assert.Equal(t, "0.00012345", ev.Tags.Value("llm-cost-usd"))
}

func TestVoiceModePropagatesFromContext(t *testing.T) {
	p, _ := newTestPublisher()
	ev, err := p.PublishConversation(context.Background(), ConversationIntent{Content: "hi"}, Context{VoiceMode: true})
	require.NoError(t, err)
	assert.Equal(t, nostr.ModeVoice, ev.Tags.Value(nostr.TagMode))
}
