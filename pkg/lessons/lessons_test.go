package lessons

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedderProducesNormalizedVectorOfRequestedDimension(t *testing.T) {
	e := NewHashingEmbedder(64)
	vec, err := e.Embed(context.Background(), "always wait for approval before deleting files")
	require.NoError(t, err)
	require.Len(t, vec, 64)

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 0.01)
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(32)
	v1, err := e.Embed(context.Background(), "retry network calls with backoff")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "retry network calls with backoff")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestIndexAddAndRelevantReturnsClosestLesson(t *testing.T) {
	idx := NewIndex(NewHashingEmbedder(128))
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "lesson-1", "agent-def-1", "file deletion", "always confirm with the user before deleting any file"))
	require.NoError(t, idx.Add(ctx, "lesson-2", "agent-def-1", "network retries", "retry flaky network calls three times with exponential backoff"))

	results, err := idx.Relevant(ctx, "agent-def-1", "deleting a file without asking", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lesson-1", results[0].EventID)
}

func TestIndexRelevantUnknownAgentDefinitionReturnsEmpty(t *testing.T) {
	idx := NewIndex(NewHashingEmbedder(32))
	results, err := idx.Relevant(context.Background(), "never-indexed", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexRebuildReplaysStoredLessons(t *testing.T) {
	idx := NewIndex(NewHashingEmbedder(64))
	err := idx.Rebuild(context.Background(), []Lesson{
		{EventID: "l1", AgentDefinitionRef: "def-a", Title: "t1", Content: "content one"},
		{EventID: "l2", AgentDefinitionRef: "def-a", Title: "t2", Content: "content two"},
	})
	require.NoError(t, err)

	results, err := idx.Relevant(context.Background(), "def-a", "content one", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
