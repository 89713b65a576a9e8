package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/store"
)

func TestFilesystemAdapterSaveLoadArchiveSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewFilesystemAdapter(t.TempDir())
	require.NoError(t, a.Initialize(ctx))

	conv := store.New("conv-1", "refactor auth")
	conv.AppendEntry(store.NewTextEntry("user-1", "hello"))
	conv.Phase = "chat"
	require.NoError(t, a.Save(ctx, conv))

	loaded, err := a.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "refactor auth", loaded.Title)
	assert.False(t, loaded.Archived)

	require.NoError(t, a.Archive(ctx, "conv-1"))

	afterArchive, err := a.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, afterArchive)
	assert.True(t, afterArchive.Archived)
	assert.Equal(t, "refactor auth", afterArchive.Title)

	archived := true
	results, err := a.Search(ctx, SearchCriteria{TitleContains: "auth", Archived: &archived})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ID)
	assert.Equal(t, 1, results[0].EventCount)
}

func TestFilesystemAdapterArchiveMissingConversationFails(t *testing.T) {
	a := NewFilesystemAdapter(t.TempDir())
	require.NoError(t, a.Initialize(context.Background()))
	err := a.Archive(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFilesystemAdapterLoadUnknownReturnsNil(t *testing.T) {
	a := NewFilesystemAdapter(t.TempDir())
	require.NoError(t, a.Initialize(context.Background()))
	conv, err := a.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, conv)
}
