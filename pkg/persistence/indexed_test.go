package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/persistence/sqlindex"
	"github.com/tenex-chat/tenex/pkg/store"
)

func newTestIndexedAdapter(t *testing.T) *IndexedAdapter {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := sqlindex.Open(db, "sqlite")
	require.NoError(t, err)

	return NewIndexedAdapter(NewMemoryAdapter(), idx)
}

func TestIndexedAdapterSaveIndexesRow(t *testing.T) {
	ctx := context.Background()
	a := newTestIndexedAdapter(t)
	require.NoError(t, a.Initialize(ctx))

	conv := store.New("conv-1", "refactor auth")
	conv.AppendEntry(store.NewTextEntry("user-1", "hello"))
	conv.Phase = "chat"
	require.NoError(t, a.Save(ctx, conv))

	results, err := a.Search(ctx, SearchCriteria{TitleContains: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "refactor auth", results[0].Title)
	assert.Equal(t, "chat", results[0].Phase)
	assert.Equal(t, 1, results[0].EventCount)
}

// TestIndexedAdapterArchivePreservesMetadata guards against a regression
// where Archive upserted a bare {ID, Archived, UpdatedAt} row and blanked
// every other indexed column.
func TestIndexedAdapterArchivePreservesMetadata(t *testing.T) {
	ctx := context.Background()
	a := newTestIndexedAdapter(t)
	require.NoError(t, a.Initialize(ctx))

	conv := store.New("conv-1", "refactor auth")
	conv.AppendEntry(store.NewTextEntry("user-1", "hello"))
	conv.AppendEntry(store.NewTextEntry("user-1", "again"))
	conv.Phase = "plan"
	require.NoError(t, a.Save(ctx, conv))

	require.NoError(t, a.Archive(ctx, "conv-1"))

	archived := true
	results, err := a.Search(ctx, SearchCriteria{Archived: &archived})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ID)
	assert.Equal(t, "refactor auth", results[0].Title)
	assert.Equal(t, "plan", results[0].Phase)
	assert.Equal(t, 2, results[0].EventCount)
	assert.True(t, results[0].Archived)
}

func TestIndexedAdapterInitializeRebuildsFromInner(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryAdapter()
	require.NoError(t, inner.Save(ctx, store.New("conv-1", "pre-existing")))

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	idx, err := sqlindex.Open(db, "sqlite")
	require.NoError(t, err)

	a := NewIndexedAdapter(inner, idx)
	require.NoError(t, a.Initialize(ctx))

	results, err := a.Search(ctx, SearchCriteria{TitleContains: "pre-existing"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ID)
}
