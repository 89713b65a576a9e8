package persistence

import (
	"context"
	"strings"
	"sync"

	"github.com/tenex-chat/tenex/pkg/store"
)

// MemoryAdapter is an in-memory Adapter, useful for tests and development.
// Grounded on the teacher's in-memory session service: a map guarded by a
// single RWMutex, no persistence across process restarts.
type MemoryAdapter struct {
	mu      sync.RWMutex
	active  map[string]*store.Conversation
	archive map[string]*store.Conversation
}

// NewMemoryAdapter returns a ready-to-use in-memory Adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		active:  make(map[string]*store.Conversation),
		archive: make(map[string]*store.Conversation),
	}
}

func (a *MemoryAdapter) Initialize(ctx context.Context) error { return nil }

func (a *MemoryAdapter) Save(ctx context.Context, conv *store.Conversation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active[conv.ID] = conv
	return nil
}

func (a *MemoryAdapter) Load(ctx context.Context, id string) (*store.Conversation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if c, ok := a.active[id]; ok {
		return c, nil
	}
	if c, ok := a.archive[id]; ok {
		return c, nil
	}
	return nil, nil
}

func (a *MemoryAdapter) List(ctx context.Context) ([]Metadata, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Metadata
	for _, c := range a.active {
		out = append(out, metadataOf(c, false))
	}
	for _, c := range a.archive {
		out = append(out, metadataOf(c, true))
	}
	return out, nil
}

func (a *MemoryAdapter) Archive(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.active[id]
	if !ok {
		return ErrNotFound(id)
	}
	delete(a.active, id)
	a.archive[id] = c
	return nil
}

func (a *MemoryAdapter) Search(ctx context.Context, criteria SearchCriteria) ([]Metadata, error) {
	all, _ := a.List(ctx)
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

func metadataOf(c *store.Conversation, archived bool) Metadata {
	return Metadata{
		ID:         c.ID,
		Title:      c.Title,
		Phase:      c.Phase,
		EventCount: c.Len(),
		AgentCount: len(c.AgentStates),
		Archived:   archived,
	}
}

var _ Adapter = (*MemoryAdapter)(nil)
