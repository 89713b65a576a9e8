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

// Package coordinator is the Conversation Coordinator: the facade that
// wires the Store, Persistence Adapter, Phase Manager, Conversation
// Registry and Delegation Registry together, ingests inbound events, and
// invokes the Message Builder on the critical path before an agent is
// handed its transcript. Grounded on the teacher's pkg/agent/services.go
// facade style (narrow constructors returning an interface-shaped struct
// that wires several collaborators behind a handful of public methods).
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tenex-chat/tenex/pkg/decoder"
	"github.com/tenex-chat/tenex/pkg/delegation"
	"github.com/tenex-chat/tenex/pkg/messagebuilder"
	"github.com/tenex-chat/tenex/pkg/nostr"
	"github.com/tenex-chat/tenex/pkg/persistence"
	"github.com/tenex-chat/tenex/pkg/phase"
	"github.com/tenex-chat/tenex/pkg/registry"
	"github.com/tenex-chat/tenex/pkg/store"
)

// Coordinator is the process-wide facade over conversation lifecycle. A
// Conversation is exclusively owned by the Coordinator while resident in
// memory (spec §3 "Ownership"); the Persistence Adapter owns the durable
// bytes.
type Coordinator struct {
	adapter    persistence.Adapter
	registry   *registry.Registry
	phases     *phase.Manager
	delegations *delegation.Registry
	relay      nostr.RelayClient // optional; nil disables article enrichment

	mu            sync.Mutex
	conversations map[string]*store.Conversation
}

// New constructs a Coordinator. relay may be nil, in which case
// referenced-article enrichment is skipped entirely rather than attempted
// and failed.
func New(adapter persistence.Adapter, reg *registry.Registry, phases *phase.Manager, delegations *delegation.Registry, relay nostr.RelayClient) *Coordinator {
	return &Coordinator{
		adapter:       adapter,
		registry:      reg,
		phases:        phases,
		delegations:   delegations,
		relay:         relay,
		conversations: make(map[string]*store.Conversation),
	}
}

// CreateConversation derives the conversation id from ev's id, extracts
// its title from the title tag (default "Untitled"), appends ev as the
// conversation's first entry, persists it, and best-effort kicks off
// referenced-article enrichment. projectID is the scope the caller (which
// owns project resolution via the Conversation Registry) has already
// resolved for this event.
func (c *Coordinator) CreateConversation(ctx context.Context, ev *nostr.Event, projectID string) (*store.Conversation, error) {
	if ev == nil || !nostr.IsValidFullID(ev.ID) {
		return nil, &InvalidEventError{Reason: "missing or malformed event id"}
	}

	title := ev.Tags.Value(nostr.TagTitle)
	if title == "" {
		title = "Untitled"
	}

	conv := store.New(ev.ID, title)
	conv.AppendEntry(entryFromEvent(ev, nil))
	if !c.registry.IsAgent(ev.Pubkey) {
		conv.SetMetadata(store.MetaLastUserMessage, ev.Content)
		conv.SetMetadata(store.MetaSummary, summarize(ev.Content))
	}

	if err := c.adapter.Save(ctx, conv); err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	c.registry.RegisterConversation(conv.ID, projectID)

	c.mu.Lock()
	c.conversations[conv.ID] = conv
	c.mu.Unlock()

	c.enrichReferencedArticle(conv, ev)

	return conv, nil
}

// enrichReferencedArticle is best-effort: relay failures are logged and
// swallowed, never propagated (spec §5 "Relay fetches used for
// referenced-article enrichment... are best-effort").
func (c *Coordinator) enrichReferencedArticle(conv *store.Conversation, ev *nostr.Event) {
	if c.relay == nil {
		return
	}
	tag, ok := ev.Tags.Find(nostr.TagAddressable)
	if !ok {
		return
	}
	ref, ok := nostr.ParseAddressable(tag.Value())
	if !ok {
		return
	}

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		article, err := c.relay.FetchAddressable(fetchCtx, ref)
		if err != nil {
			slog.Warn("coordinator: referenced article fetch failed", "conversation_id", conv.ID, "error", err)
			return
		}
		if article == nil {
			return
		}
		conv.SetMetadata(store.MetaReferencedArticle, map[string]any{
			"title": article.Tags.Value(nostr.TagTitle),
			"dTag":  article.Tags.Value(nostr.TagD),
			"content": article.Content,
		})
	}()
}

// AddEvent appends ev to conversationID's history, classified by decoded.
// summary and last_user_message metadata are updated only for
// user-authored events (spec §4.7).
func (c *Coordinator) AddEvent(ctx context.Context, conversationID string, ev *nostr.Event, decoded decoder.Decoded) (*store.Conversation, error) {
	if ev == nil || !nostr.IsValidFullID(ev.ID) {
		return nil, &InvalidEventError{Reason: "missing or malformed event id"}
	}

	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	entry := entryFromEvent(ev, &decoded)
	conv.AppendEntry(entry)
	c.registry.Touch(conversationID)

	if !c.registry.IsAgent(ev.Pubkey) {
		conv.SetMetadata(store.MetaLastUserMessage, ev.Content)
		conv.SetMetadata(store.MetaSummary, summarize(ev.Content))
	}

	if err := c.adapter.Save(ctx, conv); err != nil {
		return nil, &PersistenceError{Op: "save", Err: err}
	}
	return conv, nil
}

func entryFromEvent(ev *nostr.Event, decoded *decoder.Decoded) store.Entry {
	e := store.NewTextEntry(ev.Pubkey, ev.Content)
	e.EventID = ev.ID
	if mentions := ev.MentionedPubkeys(); len(mentions) > 0 {
		e.TargetedPubkeys = mentions
	}
	if decoded != nil {
		e.IsDelegationCompletion = decoded.IsDelegationCompletion
	}
	return e
}

const summaryMaxLen = 140

// summarize truncates content to a short metadata-friendly summary.
func summarize(content string) string {
	if len(content) <= summaryMaxLen {
		return content
	}
	return content[:summaryMaxLen] + "…"
}

// UpdatePhase delegates to the Phase Manager. Entering EXECUTE without an
// available lock returns a *PhaseDeniedError carrying the queue position
// and estimated wait (spec §4.4, §4.5); this is a deferral, not a fatal
// failure, and the caller is expected to inspect it as such.
func (c *Coordinator) UpdatePhase(ctx context.Context, conversationID string, req phase.TransitionRequest) (phase.TransitionResult, error) {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return phase.TransitionResult{}, err
	}
	req.ConversationID = conversationID

	result, err := c.phases.Transition(ctx, conv, req)
	if err != nil {
		return result, &InternalError{Err: err}
	}
	if !result.Materialised {
		return result, &PhaseDeniedError{
			ConversationID: conversationID,
			QueuePosition:  result.QueuePosition,
			EstimatedWait:  result.EstimatedWait,
		}
	}

	if err := c.adapter.Save(ctx, conv); err != nil {
		return result, &PersistenceError{Op: "save", Err: err}
	}
	return result, nil
}

// BuildAgentMessagesOptions parametrises BuildAgentMessages beyond the
// conversation and target agent.
type BuildAgentMessagesOptions struct {
	RALNumber   int
	ActiveRALs  map[int]bool
	ProjectRoot string
	Model       string
}

// BuildAgentMessagesResult is buildAgentMessages' return value (spec
// §4.7): the projected transcript plus the agent's opaque provider
// session token, if one was previously recorded.
type BuildAgentMessagesResult struct {
	Messages            []messagebuilder.Message
	ProviderSessionToken string
}

// BuildAgentMessages is the critical path (spec §4.8): it projects
// conversationID's history for targetAgentPubkey via the Message Builder,
// resolving nested delegation transcripts through the Coordinator's own
// conversation store, and advances the agent's watermark.
func (c *Coordinator) BuildAgentMessages(ctx context.Context, conversationID, targetAgentPubkey string, opts BuildAgentMessagesOptions) (BuildAgentMessagesResult, error) {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return BuildAgentMessagesResult{}, err
	}

	history := conv.Snapshot()
	mbCtx := messagebuilder.Context{
		ViewingAgentPubkey: targetAgentPubkey,
		RALNumber:          opts.RALNumber,
		ActiveRALs:         opts.ActiveRALs,
		TotalMessages:      len(history),
		ProjectRoot:         opts.ProjectRoot,
		AgentPubkeys:        c.registry.AllAgents(),
		ConversationID:       conversationID,
		Model:                opts.Model,
		GetDelegationMessages: func(childID string) ([]store.Entry, error) {
			child, err := c.getConversation(ctx, childID)
			if err != nil {
				return nil, err
			}
			return child.Snapshot(), nil
		},
	}

	messages, err := messagebuilder.Build(history, mbCtx)
	if err != nil {
		return BuildAgentMessagesResult{}, &InternalError{Err: err}
	}

	state := conv.AgentStateFor(targetAgentPubkey)
	state.LastProcessedMessageIndex = len(history)
	token := state.ClaudeSessionID

	return BuildAgentMessagesResult{Messages: messages, ProviderSessionToken: token}, nil
}

// AgentStatePatch applies a partial update to an AgentState; nil fields
// are left unchanged.
type AgentStatePatch struct {
	LastProcessedMessageIndex *int
	LastSeenPhase             *string
	ClaudeSessionID           *string
	PendingDelegation         *store.PendingDelegation
	ClearPendingDelegation    bool
}

// UpdateAgentState applies patch to agentPubkey's per-conversation state.
func (c *Coordinator) UpdateAgentState(ctx context.Context, conversationID, agentPubkey string, patch AgentStatePatch) error {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	state := conv.AgentStateFor(agentPubkey)
	if patch.LastProcessedMessageIndex != nil {
		state.LastProcessedMessageIndex = *patch.LastProcessedMessageIndex
	}
	if patch.LastSeenPhase != nil {
		state.LastSeenPhase = *patch.LastSeenPhase
	}
	if patch.ClaudeSessionID != nil {
		state.ClaudeSessionID = *patch.ClaudeSessionID
	}
	if patch.ClearPendingDelegation {
		state.PendingDelegation = nil
	} else if patch.PendingDelegation != nil {
		state.PendingDelegation = patch.PendingDelegation
	}

	if err := c.adapter.Save(ctx, conv); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// StartOrchestratorTurn appends a new, open orchestrator turn.
func (c *Coordinator) StartOrchestratorTurn(ctx context.Context, conversationID string, turn store.OrchestratorTurn) error {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.StartOrchestratorTurn(turn)
	if err := c.adapter.Save(ctx, conv); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// AddCompletionToTurn records an agent's completion against turnID,
// closing the turn once every addressed agent has reported in. Returns
// whether the turn closed.
func (c *Coordinator) AddCompletionToTurn(ctx context.Context, conversationID, turnID string, completion store.TurnCompletion) (bool, error) {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !conv.AddCompletionToTurn(turnID, completion) {
		return false, &InternalError{Err: fmt.Errorf("no open turn %q", turnID)}
	}
	if err := c.adapter.Save(ctx, conv); err != nil {
		return false, &PersistenceError{Op: "save", Err: err}
	}

	for _, t := range conv.OrchestratorTurns {
		if t.TurnID == turnID {
			return t.IsCompleted, nil
		}
	}
	return false, nil
}

// CompleteConversation marks a conversation's current orchestrator work
// as done without removing it from the active set; it remains loadable
// and searchable until explicitly archived.
func (c *Coordinator) CompleteConversation(ctx context.Context, conversationID string) error {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.SetMetadata("completed", true)
	if err := c.adapter.Save(ctx, conv); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// ArchiveConversation relocates conversationID's durable record out of the
// active set and drops the in-memory copy (spec §3 "Ownership": a
// conversation is destroyed only when explicitly archived or completed).
func (c *Coordinator) ArchiveConversation(ctx context.Context, conversationID string) error {
	conv, err := c.getConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := c.adapter.Archive(ctx, conversationID); err != nil {
		return &PersistenceError{Op: "archive", Err: err}
	}
	conv.Archived = true

	c.mu.Lock()
	delete(c.conversations, conversationID)
	c.mu.Unlock()
	return nil
}

// BeginDelegation records a new outstanding delegation in the Delegation
// Registry, appends a pending delegation-marker entry to the parent
// conversation's history, and persists it.
func (c *Coordinator) BeginDelegation(ctx context.Context, delegationEventID, delegatorPubkey, parentConversationID, delegationConversationID string, recipients []string) (*delegation.Record, error) {
	conv, err := c.getConversation(ctx, parentConversationID)
	if err != nil {
		return nil, err
	}

	rec := c.delegations.Begin(delegationEventID, delegatorPubkey, parentConversationID, delegationConversationID, recipients)

	recipient := ""
	if len(recipients) > 0 {
		recipient = recipients[0]
	}
	conv.AppendEntry(store.NewDelegationMarker(delegationConversationID, parentConversationID, recipient))

	if err := c.adapter.Save(ctx, conv); err != nil {
		return rec, &PersistenceError{Op: "save", Err: err}
	}
	return rec, nil
}

// RecordDelegationCompletion applies a delegation-completion event to the
// Delegation Registry. An orphan completion (no matching outstanding
// delegation) is reported as a *DelegationOrphanError, per spec §4.6/§7 a
// warning condition, never a fatal one — the registry itself has already
// logged it.
func (c *Coordinator) RecordDelegationCompletion(ctx context.Context, delegationEventID, responderPubkey, responseEventID string) (delegation.CompletionResult, error) {
	result := c.delegations.RecordCompletion(delegationEventID, responderPubkey, responseEventID)
	if result.Orphan {
		return result, &DelegationOrphanError{DelegationEventID: delegationEventID}
	}
	return result, nil
}

// Search delegates to the Persistence Adapter.
func (c *Coordinator) Search(ctx context.Context, criteria persistence.SearchCriteria) ([]persistence.Metadata, error) {
	results, err := c.adapter.Search(ctx, criteria)
	if err != nil {
		return nil, &PersistenceError{Op: "search", Err: err}
	}
	return results, nil
}

// Cleanup flushes every in-memory conversation to the Persistence Adapter,
// used on engine shutdown (spec §5 "Engine-shutdown: flush all
// conversations via Persistence").
func (c *Coordinator) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	snapshot := make([]*store.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		snapshot = append(snapshot, conv)
	}
	c.mu.Unlock()

	var firstErr error
	for _, conv := range snapshot {
		if err := c.adapter.Save(ctx, conv); err != nil {
			slog.Warn("coordinator: flush on cleanup failed", "conversation_id", conv.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return &PersistenceError{Op: "cleanup-flush", Err: firstErr}
	}
	return nil
}

// getConversation returns the in-memory conversation, loading it from the
// Persistence Adapter and caching it on first access. An archived
// conversation is reported as not found: spec §8 requires that
// getConversation(id) return none after archiveConversation(id), even
// though the Adapter itself still holds the relocated durable record.
func (c *Coordinator) getConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	c.mu.Lock()
	conv, ok := c.conversations[conversationID]
	c.mu.Unlock()
	if ok {
		return conv, nil
	}

	loaded, err := c.adapter.Load(ctx, conversationID)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if loaded == nil || loaded.Archived {
		return nil, &ConversationNotFoundError{ConversationID: conversationID}
	}

	c.mu.Lock()
	c.conversations[conversationID] = loaded
	c.mu.Unlock()
	return loaded, nil
}
