package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/store"
)

func TestMemoryAdapterSaveLoadArchiveSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter()
	require.NoError(t, a.Initialize(ctx))

	conv := store.New("conv-1", "refactor auth")
	conv.AppendEntry(store.NewTextEntry("user-1", "hello"))
	conv.Phase = "chat"
	require.NoError(t, a.Save(ctx, conv))

	loaded, err := a.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "refactor auth", loaded.Title)
	assert.Equal(t, 1, loaded.Len())

	results, err := a.Search(ctx, SearchCriteria{TitleContains: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ID)
	assert.False(t, results[0].Archived)

	require.NoError(t, a.Archive(ctx, "conv-1"))

	afterArchive, err := a.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, afterArchive)
	assert.Equal(t, "refactor auth", afterArchive.Title)

	archived := true
	results, err = a.Search(ctx, SearchCriteria{Archived: &archived})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ID)
	assert.Equal(t, "refactor auth", results[0].Title)
	assert.Equal(t, 1, results[0].EventCount)
}

func TestMemoryAdapterArchiveUnknownIDFails(t *testing.T) {
	a := NewMemoryAdapter()
	err := a.Archive(context.Background(), "missing")
	assert.Error(t, err)
}
