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

// Package engine wires every internal component (Persistence, Registry,
// Phase Manager, Execution Queue, Delegation Registry, Coordinator,
// Publisher, Telemetry, Lessons, the debug HTTP surface) into one
// long-lived process, and is the only package that depends on the
// externally-supplied RelayClient, Signer, and ModelProvider
// collaborators. Construction mirrors the teacher's top-level server
// wiring: one constructor builds every collaborator in dependency order
// and fails fast if any of them can't initialize.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tenex-chat/tenex/pkg/config"
	"github.com/tenex-chat/tenex/pkg/coordinator"
	"github.com/tenex-chat/tenex/pkg/decoder"
	"github.com/tenex-chat/tenex/pkg/delegation"
	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/httpapi"
	"github.com/tenex-chat/tenex/pkg/lessons"
	"github.com/tenex-chat/tenex/pkg/logger"
	"github.com/tenex-chat/tenex/pkg/messagebuilder"
	"github.com/tenex-chat/tenex/pkg/nostr"
	"github.com/tenex-chat/tenex/pkg/persistence"
	"github.com/tenex-chat/tenex/pkg/persistence/sqlindex"
	"github.com/tenex-chat/tenex/pkg/phase"
	"github.com/tenex-chat/tenex/pkg/publisher"
	"github.com/tenex-chat/tenex/pkg/registry"
	"github.com/tenex-chat/tenex/pkg/store"
	"github.com/tenex-chat/tenex/pkg/telemetry"
)

// Engine is the process-level object a cmd/tenexd entrypoint constructs
// once and drives for the process lifetime: HandleEvent on every inbound
// signed event, Shutdown on termination.
type Engine struct {
	cfg *config.Config

	adapter     persistence.Adapter
	registry    *registry.Registry
	queue       *execqueue.Queue
	phases      *phase.Manager
	delegations *delegation.Registry
	coordinator *coordinator.Coordinator
	publisher   *publisher.Publisher
	decoder     *decoder.Decoder

	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	lessons *lessons.Index

	modelProvider ModelProvider

	sqlDB      *sql.DB
	httpServer *http.Server
}

// New builds every collaborator from cfg and returns a ready-to-run
// Engine. relay and signer are the externally-supplied transport and
// signing collaborators (spec.md §1); modelProvider is the externally
// supplied LLM boundary. Initialize is called on the Persistence Adapter
// before returning, so a storage failure surfaces here rather than on
// the first HandleEvent call.
func New(ctx context.Context, cfg *config.Config, signer Signer, relay RelayClient, modelProvider ModelProvider) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid configuration: %w", err)
	}

	reg := registry.New()
	queue := execqueue.New(cfg.ExecQueue.MaxExecutionDuration)
	phases := phase.NewManager(queue)
	delegations := delegation.New()

	metrics := telemetry.NewMetrics(cfg.Telemetry.Metrics.Namespace)
	tracer, err := telemetry.NewTracer(ctx, telemetry.TracerConfig{
		Enabled:      cfg.Telemetry.Tracing.Enabled,
		EndpointURL:  cfg.Telemetry.Tracing.EndpointURL,
		SamplingRate: cfg.Telemetry.Tracing.SamplingRate,
		ServiceName:  cfg.Telemetry.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: construct tracer: %w", err)
	}

	adapter, sqlDB, err := buildAdapter(ctx, cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("engine: construct persistence adapter: %w", err)
	}
	if err := adapter.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("engine: initialize persistence adapter: %w", err)
	}

	idx, err := buildLessonsIndex(cfg.Lessons)
	if err != nil {
		return nil, fmt.Errorf("engine: construct lessons index: %w", err)
	}

	coord := coordinator.New(adapter, reg, phases, delegations, relay)
	pub := publisher.New(signer, relay)
	dec := decoder.New(reg.IsAgent)

	e := &Engine{
		cfg:           cfg,
		adapter:       adapter,
		registry:      reg,
		queue:         queue,
		phases:        phases,
		delegations:   delegations,
		coordinator:   coord,
		publisher:     pub,
		decoder:       dec,
		tracer:        tracer,
		metrics:       metrics,
		lessons:       idx,
		modelProvider: modelProvider,
		sqlDB:         sqlDB,
	}
	e.wireExecQueueMetrics()

	if cfg.HTTPAPI.ListenAddr != "" {
		srv := httpapi.New(queue, reg, adapter, metrics.Handler())
		e.httpServer = &http.Server{Addr: cfg.HTTPAPI.ListenAddr, Handler: srv}
	}

	return e, nil
}

// buildAdapter constructs the Persistence Adapter selected by cfg,
// wrapping it in an IndexedAdapter when a SQL secondary index is
// configured. The returned *sql.DB is non-nil only when a SQL index was
// opened, so callers know whether there's a connection to close.
func buildAdapter(ctx context.Context, cfg config.PersistenceConfig) (persistence.Adapter, *sql.DB, error) {
	var adapter persistence.Adapter
	switch cfg.Backend {
	case "memory":
		adapter = persistence.NewMemoryAdapter()
	default:
		adapter = persistence.NewFilesystemAdapter(cfg.Dir)
	}

	if cfg.SQLIndex == nil {
		return adapter, nil, nil
	}

	db, err := sql.Open(sqlDriverName(cfg.SQLIndex.Dialect), cfg.SQLIndex.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open sql index connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping sql index connection: %w", err)
	}
	idx, err := sqlindex.Open(db, cfg.SQLIndex.Dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return persistence.NewIndexedAdapter(adapter, idx), db, nil
}

// sqlDriverName maps a config dialect onto the database/sql driver name
// registered by that dialect's blank-imported driver package.
func sqlDriverName(dialect string) string {
	switch dialect {
	case "mysql":
		return "mysql"
	case "sqlite":
		return "sqlite3"
	default:
		return "postgres"
	}
}

func buildLessonsIndex(cfg config.LessonsConfig) (*lessons.Index, error) {
	if cfg.Embedder == "openai" {
		embedder, err := lessons.NewOpenAIEmbedder(lessons.OpenAIEmbedderConfig{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.OpenAI.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		return lessons.NewIndex(embedder), nil
	}
	return lessons.NewIndex(lessons.NewHashingEmbedder(cfg.HashingDimension)), nil
}

// wireExecQueueMetrics turns Execution Queue lifecycle events into
// Prometheus counters, the one piece of cross-package wiring spec.md's
// telemetry section describes but no single package owns on its own:
// the Queue only knows its own events, and Metrics only knows how to
// record a count, so the Engine is what connects the two.
func (e *Engine) wireExecQueueMetrics() {
	e.queue.OnEvent(func(ev execqueue.Event) {
		switch ev.Type {
		case "lock-acquired":
			// The Execution Queue only ever grants locks while a
			// conversation is in the execute phase (spec §3).
			e.metrics.RecordLockAcquired("execute")
		case "timeout":
			e.metrics.RecordTimeout(ev.ConversationID)
		}
	})
}

// HandleEvent is the Engine's single entry point: decode the event,
// route it to the Coordinator, and record telemetry, all under one span.
// The caller (an external relay subscription loop, out of scope for this
// package) is responsible for delivering events in receipt order.
func (e *Engine) HandleEvent(ctx context.Context, ev *nostr.Event, conversationID, projectID string) (*store.Conversation, error) {
	ctx, span := e.tracer.StartTask(ctx, "handle_event")
	defer span.End()

	decoded := e.decoder.Decode(ev)

	conv, err := e.routeDecodedEvent(ctx, ev, decoded, conversationID, projectID)
	if err != nil {
		return nil, translateCoordinatorErr(err)
	}
	return conv, nil
}

// routeDecodedEvent applies the classification pkg/decoder produced:
// a Project event seeds the Registry, everything else is appended to its
// conversation (creating one on first contact) through the Coordinator.
func (e *Engine) routeDecodedEvent(ctx context.Context, ev *nostr.Event, decoded decoder.Decoded, conversationID, projectID string) (*store.Conversation, error) {
	if decoded.Classification == decoder.Project {
		e.registry.RegisterProject(decoded.ProjectID)
		return nil, nil
	}

	conv, err := e.coordinator.AddEvent(ctx, conversationID, ev, decoded)
	if err != nil {
		var notFound *coordinator.ConversationNotFoundError
		if errors.As(err, &notFound) {
			return e.coordinator.CreateConversation(ctx, ev, projectID)
		}
		return nil, err
	}

	if decoded.IsDelegationCompletion {
		// The completion's first e-tag names the originating request.
		result, err := e.coordinator.RecordDelegationCompletion(ctx, ev.Tags.Value(nostr.TagReply), ev.Pubkey, ev.ID)
		var orphan *coordinator.DelegationOrphanError
		if errors.As(err, &orphan) {
			// Already logged by the Delegation Registry; not a failure.
			e.metrics.RecordDelegationOrphan()
			return conv, nil
		}
		if err != nil {
			return nil, err
		}
		e.metrics.RecordDelegationCompletion(result.AllResponded)
	}

	return conv, nil
}

// BuildAgentMessages delegates straight to the Coordinator; exposed on
// Engine so callers driving an agent turn never need to reach into
// pkg/coordinator directly.
func (e *Engine) BuildAgentMessages(ctx context.Context, conversationID, targetAgentPubkey string, opts coordinator.BuildAgentMessagesOptions) (coordinator.BuildAgentMessagesResult, error) {
	result, err := e.coordinator.BuildAgentMessages(ctx, conversationID, targetAgentPubkey, opts)
	if err != nil {
		return result, translateCoordinatorErr(err)
	}
	return result, nil
}

// Complete runs modelProvider over a built message slice, the one call
// site in this package that touches the externally-supplied LLM boundary.
func (e *Engine) Complete(ctx context.Context, messages []messagebuilder.Message) (ModelResponse, error) {
	return e.modelProvider.Complete(ctx, messages)
}

// Search exposes the Coordinator's conversation search for a debug CLI or
// admin tool that isn't going through the HTTP API.
func (e *Engine) Search(ctx context.Context, criteria persistence.SearchCriteria) ([]persistence.Metadata, error) {
	results, err := e.coordinator.Search(ctx, criteria)
	if err != nil {
		return nil, translateCoordinatorErr(err)
	}
	return results, nil
}

// QueueStatus exposes the Execution Queue's global snapshot.
func (e *Engine) QueueStatus() execqueue.FullStatus {
	return e.queue.GetFullStatus()
}

// Start begins serving the debug HTTP API, if configured. It returns
// immediately; the listener runs in a background goroutine until
// Shutdown is called.
func (e *Engine) Start(ctx context.Context) error {
	if e.httpServer == nil {
		return nil
	}
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FromContext(ctx).Error("httpapi server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting new HTTP requests, flushes every in-memory
// conversation to the Persistence Adapter, and closes the SQL index
// connection if one was opened. Flushing conversations and stopping the
// HTTP listener happen concurrently via errgroup, bounding shutdown time
// to whichever of the two is slower rather than their sum (spec §5
// "Engine-shutdown: flush all conversations via Persistence").
func (e *Engine) Shutdown(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if e.httpServer != nil {
		g.Go(func() error {
			shutdownCtx, cancel := context.WithTimeout(gCtx, 5*time.Second)
			defer cancel()
			return e.httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return e.coordinator.Cleanup(gCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("engine: shutdown: %w", err)
	}

	e.tracer.Shutdown(ctx)
	if e.sqlDB != nil {
		return e.sqlDB.Close()
	}
	return nil
}
