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

package persistence

import (
	"context"
	"time"

	"github.com/tenex-chat/tenex/pkg/persistence/sqlindex"
	"github.com/tenex-chat/tenex/pkg/store"
)

// IndexedAdapter layers a sqlindex.Index over another Adapter, keeping the
// wrapped Adapter as the source of truth (Load/Initialize delegate
// straight through) while Save, Archive, and Search additionally exercise
// the SQL index, so Search scales past the wrapped Adapter's in-memory
// scan once a deployment has many conversations. Archive re-reads the
// conversation after archiving it so the index row keeps its Title/Phase/
// EventCount/AgentCount instead of being blanked by a partial upsert.
type IndexedAdapter struct {
	inner Adapter
	index *sqlindex.Index
}

// NewIndexedAdapter wraps inner with idx. idx is rebuilt from inner's
// current List() the first time a caller needs it consistent, so it is
// safe to point a fresh index at an already-populated Adapter.
func NewIndexedAdapter(inner Adapter, idx *sqlindex.Index) *IndexedAdapter {
	return &IndexedAdapter{inner: inner, index: idx}
}

func (a *IndexedAdapter) Initialize(ctx context.Context) error {
	if err := a.inner.Initialize(ctx); err != nil {
		return err
	}
	return a.rebuild(ctx)
}

func (a *IndexedAdapter) rebuild(ctx context.Context) error {
	all, err := a.inner.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range all {
		if err := a.index.Upsert(ctx, rowFromMetadata(m)); err != nil {
			return err
		}
	}
	return nil
}

func (a *IndexedAdapter) Save(ctx context.Context, conv *store.Conversation) error {
	if err := a.inner.Save(ctx, conv); err != nil {
		return err
	}
	row := sqlindex.Row{
		ID:         conv.ID,
		Title:      conv.Title,
		Phase:      conv.Phase,
		EventCount: conv.Len(),
		AgentCount: len(conv.AgentStates),
		Archived:   conv.Archived,
		UpdatedAt:  time.Now(),
	}
	return a.index.Upsert(ctx, row)
}

func (a *IndexedAdapter) Load(ctx context.Context, id string) (*store.Conversation, error) {
	return a.inner.Load(ctx, id)
}

func (a *IndexedAdapter) List(ctx context.Context) ([]Metadata, error) {
	return a.inner.List(ctx)
}

func (a *IndexedAdapter) Archive(ctx context.Context, id string) error {
	if err := a.inner.Archive(ctx, id); err != nil {
		return err
	}
	conv, err := a.inner.Load(ctx, id)
	if err != nil {
		return err
	}
	row := sqlindex.Row{Archived: true, UpdatedAt: time.Now()}
	if conv != nil {
		row.ID = conv.ID
		row.Title = conv.Title
		row.Phase = conv.Phase
		row.EventCount = conv.Len()
		row.AgentCount = len(conv.AgentStates)
	} else {
		row.ID = id
	}
	return a.index.Upsert(ctx, row)
}

// Search queries the SQL index rather than scanning inner's full List,
// falling back to the field names the index rows carry (CreatedAt is not
// tracked by the index and is reported as zero).
func (a *IndexedAdapter) Search(ctx context.Context, criteria SearchCriteria) ([]Metadata, error) {
	rows, err := a.index.Search(ctx, criteria.TitleContains, criteria.Phase, criteria.Archived)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, Metadata{
			ID:         r.ID,
			Title:      r.Title,
			Phase:      r.Phase,
			EventCount: r.EventCount,
			AgentCount: r.AgentCount,
			Archived:   r.Archived,
			UpdatedAt:  r.UpdatedAt.Unix(),
		})
	}
	return out, nil
}

func rowFromMetadata(m Metadata) sqlindex.Row {
	return sqlindex.Row{
		ID:         m.ID,
		Title:      m.Title,
		Phase:      m.Phase,
		EventCount: m.EventCount,
		AgentCount: m.AgentCount,
		Archived:   m.Archived,
		UpdatedAt:  time.Unix(m.UpdatedAt, 0),
	}
}

var _ Adapter = (*IndexedAdapter)(nil)
