package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tenex-chat/tenex/pkg/store"
)

// wireConversation is the on-disk shape (spec §6 "Persisted conversation
// file"). It exists separately from store.Conversation because the latter
// carries an unexported mutex and cannot be marshalled directly.
type wireConversation struct {
	ID                string                       `json:"id"`
	Title             string                       `json:"title"`
	Phase             string                       `json:"phase"`
	History           []store.Entry                `json:"history"`
	AgentStates       map[string]*store.AgentState `json:"agentStates"`
	PhaseStartedAt    time.Time                    `json:"phaseStartedAt"`
	Metadata          map[string]any               `json:"metadata"`
	PhaseTransitions  []store.PhaseTransition      `json:"phaseTransitions"`
	OrchestratorTurns []store.OrchestratorTurn     `json:"orchestratorTurns"`
	ExecutionTime     store.ExecutionTime          `json:"executionTime"`
}

func toWire(c *store.Conversation) wireConversation {
	return wireConversation{
		ID:                c.ID,
		Title:             c.Title,
		Phase:             c.Phase,
		History:           c.Snapshot(),
		AgentStates:       c.AgentStates,
		PhaseStartedAt:    c.PhaseStartedAt,
		Metadata:          c.Metadata,
		PhaseTransitions:  c.PhaseTransitions,
		OrchestratorTurns: c.OrchestratorTurns,
		ExecutionTime:     c.ExecutionTime,
	}
}

func fromWire(w wireConversation) *store.Conversation {
	c := store.New(w.ID, w.Title)
	c.Phase = w.Phase
	c.History = w.History
	if w.AgentStates != nil {
		c.AgentStates = w.AgentStates
	}
	c.PhaseStartedAt = w.PhaseStartedAt
	if w.Metadata != nil {
		c.Metadata = w.Metadata
	}
	c.PhaseTransitions = w.PhaseTransitions
	c.OrchestratorTurns = w.OrchestratorTurns
	c.ExecutionTime = w.ExecutionTime
	return c
}

// FilesystemAdapter persists conversations as JSON files under a root
// directory, mirroring the default layout from spec §4.3:
// <root>/active/<id>.json and <root>/archive/<id>.json.
type FilesystemAdapter struct {
	root string

	mu       sync.Mutex
	idLocks  map[string]*sync.Mutex
}

// NewFilesystemAdapter creates an adapter rooted at root (typically
// ".tenex/conversations").
func NewFilesystemAdapter(root string) *FilesystemAdapter {
	return &FilesystemAdapter{
		root:    root,
		idLocks: make(map[string]*sync.Mutex),
	}
}

func (a *FilesystemAdapter) activeDir() string  { return filepath.Join(a.root, "active") }
func (a *FilesystemAdapter) archiveDir() string { return filepath.Join(a.root, "archive") }

func (a *FilesystemAdapter) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(a.activeDir(), 0o755); err != nil {
		return fmt.Errorf("persistence: create active dir: %w", err)
	}
	if err := os.MkdirAll(a.archiveDir(), 0o755); err != nil {
		return fmt.Errorf("persistence: create archive dir: %w", err)
	}
	return nil
}

// lockFor returns (creating if necessary) the per-id mutex that serialises
// concurrent saves of the same conversation id.
func (a *FilesystemAdapter) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		a.idLocks[id] = l
	}
	return l
}

// Save writes a conversation, retrying once on failure per spec §7
// ("Resource errors ... retried once on save").
func (a *FilesystemAdapter) Save(ctx context.Context, conv *store.Conversation) error {
	l := a.lockFor(conv.ID)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(a.activeDir(), conv.ID+".json")
	b, err := json.MarshalIndent(toWire(conv), "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", conv.ID, err)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	op := func() error {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, b, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("persistence: save %s: %w", conv.ID, err)
	}
	return nil
}

// Load reads a conversation by id, checking active then archive. Corrupt
// files are reported as errors to the caller; it is List/startup-restore
// that skip corrupt files with a warning rather than failing.
func (a *FilesystemAdapter) Load(ctx context.Context, id string) (*store.Conversation, error) {
	for _, dir := range []string{a.activeDir(), a.archiveDir()} {
		path := filepath.Join(dir, id+".json")
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("persistence: read %s: %w", id, err)
		}
		var w wireConversation
		if err := json.Unmarshal(b, &w); err != nil {
			return nil, fmt.Errorf("persistence: parse %s: %w", id, err)
		}
		c := fromWire(w)
		c.Archived = dir == a.archiveDir()
		return c, nil
	}
	return nil, nil
}

// List returns metadata for every conversation, active and archived,
// skipping any file that fails to parse (logged, not fatal) so the engine
// still starts when some conversations are corrupt.
func (a *FilesystemAdapter) List(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	for _, dir := range []string{a.activeDir(), a.archiveDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("persistence: list %s: %w", dir, err)
		}
		for _, de := range entries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
				continue
			}
			b, err := os.ReadFile(filepath.Join(dir, de.Name()))
			if err != nil {
				slog.Warn("persistence: skipping unreadable conversation file", "file", de.Name(), "error", err)
				continue
			}
			var w wireConversation
			if err := json.Unmarshal(b, &w); err != nil {
				slog.Warn("persistence: skipping corrupt conversation file", "file", de.Name(), "error", err)
				continue
			}
			out = append(out, Metadata{
				ID:         w.ID,
				Title:      w.Title,
				Phase:      w.Phase,
				EventCount: len(w.History),
				AgentCount: len(w.AgentStates),
				Archived:   dir == a.archiveDir(),
			})
		}
	}
	return out, nil
}

// Archive moves a conversation's file from active to archive.
func (a *FilesystemAdapter) Archive(ctx context.Context, id string) error {
	l := a.lockFor(id)
	l.Lock()
	defer l.Unlock()

	src := filepath.Join(a.activeDir(), id+".json")
	dst := filepath.Join(a.archiveDir(), id+".json")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("persistence: archive %s: not found in active set", id)
		}
		return err
	}
	return os.Rename(src, dst)
}

// Search scans List results applying in-memory filters; the filesystem
// backend has no index beyond the directory listing.
func (a *FilesystemAdapter) Search(ctx context.Context, criteria SearchCriteria) ([]Metadata, error) {
	all, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Metadata
	for _, m := range all {
		if criteria.TitleContains != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(criteria.TitleContains)) {
			continue
		}
		if criteria.Phase != "" && m.Phase != criteria.Phase {
			continue
		}
		if criteria.Archived != nil && m.Archived != *criteria.Archived {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

var _ Adapter = (*FilesystemAdapter)(nil)
