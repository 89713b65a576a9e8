package messagebuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/store"
)

func TestFirstMentionNoHistoryBlock(t *testing.T) {
	entries := []store.Entry{
		store.NewTextEntry("user1", "@pm review"),
	}
	msgs, err := Build(entries, Context{ViewingAgentPubkey: "pm"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "@pm review", msgs[0].Content)
}

func TestToolCallInterruptedByUserMessage(t *testing.T) {
	entries := []store.Entry{
		store.NewToolCallEntry("pm", 1, store.ToolCallPart{ToolCallID: "c1", ToolName: "search"}),
		store.NewTextEntry("user1", "hey?"),
		store.NewToolResultEntry("pm", 1, store.ToolResultPart{ToolCallID: "c1", ToolName: "search", Output: "result"}),
	}
	msgs, err := Build(entries, Context{ViewingAgentPubkey: "pm"})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, RoleTool, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
	assert.Equal(t, RoleUser, msgs[2].Role)
	assert.Equal(t, "hey?", msgs[2].Content)
}

func TestOrphanToolCallGetsSyntheticResult(t *testing.T) {
	entries := []store.Entry{
		store.NewToolCallEntry("pm", 1, store.ToolCallPart{ToolCallID: "c1", ToolName: "search"}),
	}
	msgs, err := Build(entries, Context{ViewingAgentPubkey: "pm"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, RoleTool, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
	assert.Contains(t, msgs[1].Content, "interrupted")
}

func TestRoleOverrideAlwaysWins(t *testing.T) {
	e := store.NewTextEntry("pm", "summary text")
	e.Role = RoleSystem
	msgs, err := Build([]store.Entry{e}, Context{ViewingAgentPubkey: "dev"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleSystem, msgs[0].Role)
}

func TestAttributionPrefixForKnownAgentSender(t *testing.T) {
	e := store.NewTextEntry("orchestrator", "handing off")
	msgs, err := Build([]store.Entry{e}, Context{
		ViewingAgentPubkey: "dev",
		AgentPubkeys:       map[string]bool{"orchestrator": true},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "[@orchestrator] handing off", msgs[0].Content)
}

func TestDelegationCompletionPruningKeepsLatest(t *testing.T) {
	e1 := store.NewTextEntry("dev", "first completion")
	e1.RAL = 1
	e1.IsDelegationCompletion = true
	e1.TargetedPubkeys = []string{"pm"}

	e2 := store.NewTextEntry("dev", "second completion")
	e2.RAL = 1
	e2.IsDelegationCompletion = true
	e2.TargetedPubkeys = []string{"pm"}

	msgs, err := Build([]store.Entry{e1, e2}, Context{ViewingAgentPubkey: "pm"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "second completion")
}

func TestNestedDelegationMarkerIsMinimalReference(t *testing.T) {
	marker := store.NewDelegationMarker(
		"dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd",
		"other-parent-not-this-conversation",
		"dev")
	marker.Status = store.DelegationPending

	msgs, err := Build([]store.Entry{marker}, Context{
		ViewingAgentPubkey: "pm",
		ConversationID:     "this-conversation",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "[Delegation to @dev")
	assert.Contains(t, msgs[0].Content, "pending")
}

func TestDirectChildDelegationExpandsTranscript(t *testing.T) {
	marker := store.NewDelegationMarker("child-conv-id", "this-conversation", "dev")
	marker.Status = store.DelegationCompleted

	childEntry := store.NewTextEntry("dev", "implemented it")
	childEntry.TargetedPubkeys = []string{"pm"}

	msgs, err := Build([]store.Entry{marker}, Context{
		ViewingAgentPubkey: "pm",
		ConversationID:     "this-conversation",
		GetDelegationMessages: func(id string) ([]store.Entry, error) {
			assert.Equal(t, "child-conv-id", id)
			return []store.Entry{childEntry}, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "# DELEGATION COMPLETED")
	assert.Contains(t, msgs[0].Content, "[@dev -> @pm]: implemented it")
}

func TestRALVisibilityExcludesOtherActiveRAL(t *testing.T) {
	own := store.NewToolCallEntry("pm", 2, store.ToolCallPart{ToolCallID: "x", ToolName: "t"})
	own.RAL = 5 // the viewer's own entry in a still-active RAL other than the current one

	other := store.NewTextEntry("dev", "chatter from dev's active RAL")
	other.RAL = 5

	msgs, err := Build([]store.Entry{own}, Context{
		ViewingAgentPubkey: "pm",
		RALNumber:          1,
		ActiveRALs:         map[int]bool{5: true},
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 0)
}

func TestDeterminism(t *testing.T) {
	entries := []store.Entry{
		store.NewTextEntry("user1", "hello"),
		store.NewToolCallEntry("pm", 1, store.ToolCallPart{ToolCallID: "c1", ToolName: "search"}),
		store.NewToolResultEntry("pm", 1, store.ToolResultPart{ToolCallID: "c1", ToolName: "search", Output: "r"}),
	}
	ctx := Context{ViewingAgentPubkey: "pm"}
	a, err := Build(entries, ctx)
	require.NoError(t, err)
	b, err := Build(entries, ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
