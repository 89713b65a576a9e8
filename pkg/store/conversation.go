package store

import (
	"sync"
	"time"
)

// AgentState is per-conversation, per-agent-slug bookkeeping: the
// watermark into history the agent has already seen, the last phase it
// observed, an opaque per-provider session token, and any delegation it is
// currently blocked on.
type AgentState struct {
	LastProcessedMessageIndex int                `json:"lastProcessedMessageIndex"`
	LastSeenPhase             string             `json:"lastSeenPhase,omitempty"`
	ClaudeSessionID           string             `json:"claudeSessionId,omitempty"`
	PendingDelegation         *PendingDelegation `json:"pendingDelegation,omitempty"`
}

// PendingDelegation tracks a delegation an agent is blocked waiting on.
type PendingDelegation struct {
	ExpectedFrom      []string                 `json:"expectedFrom"`
	ReceivedResponses map[string]EntryRef      `json:"receivedResponses,omitempty"`
	OriginalRequest   EntryRef                 `json:"originalRequest"`
}

// EntryRef is a lightweight pointer to an event, stored instead of the full
// entry to avoid duplicating history bytes in agent state.
type EntryRef struct {
	EventID string    `json:"eventId"`
	Time    time.Time `json:"time"`
}

// PhaseTransition records a single phase change, including same-phase
// handoffs, which still carry control-flow semantics.
type PhaseTransition struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	AgentPubkey string   `json:"agentPubkey"`
	AgentName  string    `json:"agentName,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Summary    string    `json:"summary,omitempty"`
}

// TurnCompletion is one agent's report into an OrchestratorTurn.
type TurnCompletion struct {
	Agent     string    `json:"agent"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrchestratorTurn is a bounded routing decision that fans out to one or
// more agents and closes once every addressed agent has reported in.
type OrchestratorTurn struct {
	TurnID      string           `json:"turnId"`
	Timestamp   time.Time        `json:"timestamp"`
	Phase       string           `json:"phase"`
	Agents      []string         `json:"agents"`
	Completions []TurnCompletion `json:"completions"`
	Reason      string           `json:"reason,omitempty"`
	IsCompleted bool             `json:"isCompleted"`
}

// Closed reports whether every agent in Agents has a matching completion.
func (t *OrchestratorTurn) Closed() bool {
	seen := make(map[string]bool, len(t.Completions))
	for _, c := range t.Completions {
		seen[c.Agent] = true
	}
	for _, a := range t.Agents {
		if !seen[a] {
			return false
		}
	}
	return true
}

// ExecutionTime is the cumulative execution-time counters for a
// conversation's EXECUTE-phase activity.
type ExecutionTime struct {
	TotalSeconds float64    `json:"totalSeconds"`
	IsActive     bool       `json:"isActive"`
	LastUpdated  *time.Time `json:"lastUpdated,omitempty"`
}

// Conversation is the in-memory, append-only conversation state. It is
// exclusively owned by the Coordinator while resident in memory; the
// Persistence Adapter owns the durable bytes on disk. See pkg/coordinator.
type Conversation struct {
	mu sync.RWMutex

	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Phase           string                 `json:"phase"`
	History         []Entry                `json:"history"`
	AgentStates     map[string]*AgentState `json:"agentStates"`
	PhaseStartedAt  time.Time              `json:"phaseStartedAt"`
	Metadata        map[string]any         `json:"metadata"`
	PhaseTransitions []PhaseTransition     `json:"phaseTransitions"`
	OrchestratorTurns []OrchestratorTurn   `json:"orchestratorTurns"`
	ExecutionTime   ExecutionTime          `json:"executionTime"`
	Archived        bool                   `json:"archived,omitempty"`
}

// New creates an empty Conversation with the given id and title.
func New(id, title string) *Conversation {
	if title == "" {
		title = "Untitled"
	}
	return &Conversation{
		ID:             id,
		Title:          title,
		Phase:          "chat",
		History:        nil,
		AgentStates:    make(map[string]*AgentState),
		PhaseStartedAt: time.Now(),
		Metadata:       make(map[string]any),
	}
}

// AppendEntry appends an entry to history. History is append-only:
// entries are never re-ordered or mutated once appended.
func (c *Conversation) AppendEntry(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.History = append(c.History, e)
}

// Snapshot returns a copy of the current history slice, safe to range over
// without holding the conversation lock.
func (c *Conversation) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.History))
	copy(out, c.History)
	return out
}

// Len returns the current history length.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.History)
}

// AgentState returns the per-agent state, creating it if absent.
func (c *Conversation) AgentStateFor(slug string) *AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.AgentStates[slug]
	if !ok {
		st = &AgentState{}
		c.AgentStates[slug] = st
	}
	return st
}

// SetMetadata sets a single metadata key under lock.
func (c *Conversation) SetMetadata(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metadata[key] = val
}

// GetMetadata reads a single metadata key under lock.
func (c *Conversation) GetMetadata(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.Metadata[key]
	return v, ok
}

// AppendPhaseTransition records a transition, including same-phase
// handoffs.
func (c *Conversation) AppendPhaseTransition(t PhaseTransition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PhaseTransitions = append(c.PhaseTransitions, t)
	c.Phase = t.To
	c.PhaseStartedAt = t.Timestamp
}

// StartOrchestratorTurn appends a new, open turn.
func (c *Conversation) StartOrchestratorTurn(t OrchestratorTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OrchestratorTurns = append(c.OrchestratorTurns, t)
}

// AddCompletionToTurn appends a completion to the most recent open turn
// for the given agent's phase, closing it when all agents have reported.
func (c *Conversation) AddCompletionToTurn(turnID string, completion TurnCompletion) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.OrchestratorTurns {
		t := &c.OrchestratorTurns[i]
		if t.TurnID != turnID {
			continue
		}
		t.Completions = append(t.Completions, completion)
		t.IsCompleted = t.Closed()
		return true
	}
	return false
}

// IncrementContinueCount bumps the same-phase handoff counter for phase
// and returns the new total. Stored under MetaContinueCounts as a
// map[string]int since Metadata is serialised as plain JSON.
func (c *Conversation) IncrementContinueCount(phase string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts, _ := c.Metadata[MetaContinueCounts].(map[string]int)
	if counts == nil {
		counts = make(map[string]int)
	}
	counts[phase]++
	c.Metadata[MetaContinueCounts] = counts
	return counts[phase]
}

// Metadata well-known keys.
const (
	MetaSummary         = "summary"
	MetaLastUserMessage = "last_user_message"
	MetaReadFiles       = "readFiles"
	MetaQueueStatus     = "queueStatus"
	MetaContinueCounts  = "continueCounts"
	MetaReferencedArticle = "referencedArticle"
)
