// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi is a read-only debug/status HTTP surface over the
// engine's internal state: the Execution Queue, the Conversation
// Registry, and Persistence's list/search. It is an observability aid,
// not the relay transport (which is out of scope; see pkg/nostr).
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/persistence"
	"github.com/tenex-chat/tenex/pkg/registry"
)

// Server exposes the debug HTTP surface. It holds no lifecycle of its
// own beyond http.Server; pkg/engine owns starting/stopping it.
type Server struct {
	queue    *execqueue.Queue
	registry *registry.Registry
	adapter  persistence.Adapter
	metrics  http.Handler // optional; nil disables /metrics
	router   chi.Router
}

// New builds the chi router for the debug surface. metricsHandler may be
// nil to disable the /metrics endpoint.
func New(queue *execqueue.Queue, reg *registry.Registry, adapter persistence.Adapter, metricsHandler http.Handler) *Server {
	s := &Server{queue: queue, registry: reg, adapter: adapter, metrics: metricsHandler}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/status/queue", s.handleQueueStatus)
	r.Get("/status/queue/{conversationID}", s.handleConversationQueueStatus)
	r.Get("/status/conversations", s.handleListConversations)
	r.Get("/status/conversations/search", s.handleSearchConversations)
	r.Get("/status/registry/{shortID}", s.handleResolveShortID)
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	s.router = r
	return s
}

// ServeHTTP lets Server be used directly as an http.Handler, e.g. inside
// an *http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.GetFullStatus())
}

func (s *Server) handleConversationQueueStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	writeJSON(w, http.StatusOK, s.queue.GetStatus(id))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	meta, err := s.adapter.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := persistence.SearchCriteria{
		TitleContains: q.Get("title"),
		Phase:         q.Get("phase"),
	}
	if v := q.Get("archived"); v != "" {
		archived := v == "true"
		criteria.Archived = &archived
	}

	results, err := s.adapter.Search(r.Context(), criteria)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleResolveShortID(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "shortID")
	matches := s.registry.ResolveShortID(prefix)
	resolved, _ := s.registry.ResolveShortIDWith(prefix, registry.MostRecentlyTouched(s.registry))
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "matches": matches, "resolved": resolved})
}
