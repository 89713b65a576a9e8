package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/persistence"
	"github.com/tenex-chat/tenex/pkg/registry"
	"github.com/tenex-chat/tenex/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *persistence.MemoryAdapter) {
	t.Helper()
	q := execqueue.New(time.Minute)
	reg := registry.New()
	adapter := persistence.NewMemoryAdapter()
	return New(q, reg, adapter, nil), adapter
}

func TestHandleQueueStatusReturnsFullStatus(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status/queue", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body execqueue.FullStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
}

func TestHandleListConversationsReturnsSavedMetadata(t *testing.T) {
	s, adapter := newTestServer(t)
	require.NoError(t, adapter.Save(context.Background(), &store.Conversation{ID: "conv-1", Title: "hello", Phase: "chat"}))

	req := httptest.NewRequest(http.MethodGet, "/status/conversations", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var meta []persistence.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	require.Len(t, meta, 1)
	assert.Equal(t, "conv-1", meta[0].ID)
}

func TestHandleSearchConversationsFiltersByTitle(t *testing.T) {
	s, adapter := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, adapter.Save(ctx, &store.Conversation{ID: "conv-1", Title: "refactor auth", Phase: "chat"}))
	require.NoError(t, adapter.Save(ctx, &store.Conversation{ID: "conv-2", Title: "add tests", Phase: "chat"}))

	req := httptest.NewRequest(http.MethodGet, "/status/conversations/search?title=auth", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var meta []persistence.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	require.Len(t, meta, 1)
	assert.Equal(t, "conv-1", meta[0].ID)
}

func TestHandleResolveShortIDReturnsMatches(t *testing.T) {
	s, _ := newTestServer(t)
	s.registry.RegisterConversation("abcdef1234567890", "project-1")

	req := httptest.NewRequest(http.MethodGet, "/status/registry/abcdef", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "abcdef", payload["prefix"])
	assert.Equal(t, "abcdef1234567890", payload["resolved"])
}

func TestMetricsEndpointDisabledWhenHandlerNil(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
