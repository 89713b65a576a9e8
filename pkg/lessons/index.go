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

package lessons

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Lesson is one indexed lesson, returned from a relevance search.
type Lesson struct {
	EventID            string
	AgentDefinitionRef string
	Title              string
	Content            string
	Score              float32
}

// Index is a chromem-go-backed semantic index over lesson events, one
// collection per agent-definition namespace (mirroring the teacher's
// ChromemProvider collection-per-namespace pattern). Embedding is
// delegated to a pluggable Embedder so the index works with zero
// external services by default.
type Index struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	docCounts   map[string]int
}

// NewIndex constructs an empty, in-memory lesson index.
func NewIndex(embedder Embedder) *Index {
	return &Index{
		db:          chromem.NewDB(),
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
		docCounts:   make(map[string]int),
	}
}

// identityEmbeddingFunc tells chromem the embedding is supplied by the
// caller rather than computed internally, since we embed through our own
// pluggable Embedder before calling into chromem.
func identityEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("lessons: chromem embedding func invoked; vectors must be pre-computed")
}

func (idx *Index) collectionFor(agentDefinitionRef string) (*chromem.Collection, error) {
	idx.mu.RLock()
	if col, ok := idx.collections[agentDefinitionRef]; ok {
		idx.mu.RUnlock()
		return col, nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if col, ok := idx.collections[agentDefinitionRef]; ok {
		return col, nil
	}
	col, err := idx.db.GetOrCreateCollection(agentDefinitionRef, nil, identityEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("lessons: create collection %q: %w", agentDefinitionRef, err)
	}
	idx.collections[agentDefinitionRef] = col
	return col, nil
}

// Add indexes one lesson under the agent definition it applies to.
func (idx *Index) Add(ctx context.Context, eventID, agentDefinitionRef, title, content string) error {
	col, err := idx.collectionFor(agentDefinitionRef)
	if err != nil {
		return err
	}
	vec, err := idx.embedder.Embed(ctx, title+"\n"+content)
	if err != nil {
		return fmt.Errorf("lessons: embed %q: %w", eventID, err)
	}
	doc := chromem.Document{
		ID:      eventID,
		Content: content,
		Metadata: map[string]string{
			"title": title,
		},
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("lessons: index %q: %w", eventID, err)
	}

	idx.mu.Lock()
	idx.docCounts[agentDefinitionRef]++
	idx.mu.Unlock()
	return nil
}

// Relevant returns the topK lessons most similar to query for the given
// agent definition.
func (idx *Index) Relevant(ctx context.Context, agentDefinitionRef, query string, topK int) ([]Lesson, error) {
	idx.mu.RLock()
	col, ok := idx.collections[agentDefinitionRef]
	n := idx.docCounts[agentDefinitionRef]
	idx.mu.RUnlock()
	if !ok || n == 0 {
		return nil, nil
	}
	if n > topK {
		n = topK
	}

	vec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lessons: embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("lessons: query: %w", err)
	}

	out := make([]Lesson, 0, len(results))
	for _, r := range results {
		out = append(out, Lesson{
			EventID:            r.ID,
			AgentDefinitionRef: agentDefinitionRef,
			Title:              r.Metadata["title"],
			Content:            r.Content,
			Score:              r.Similarity,
		})
	}
	return out, nil
}

// Rebuild re-indexes a batch of stored lessons into the volatile index.
func (idx *Index) Rebuild(ctx context.Context, stored []Lesson) error {
	for _, l := range stored {
		if err := idx.Add(ctx, l.EventID, l.AgentDefinitionRef, l.Title, l.Content); err != nil {
			return err
		}
	}
	return nil
}
