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

// Package persistence implements the durable save/load/archive/search
// contract for conversations. The filesystem backend is the default
// (.tenex/conversations/active|archive/<id>.json); an in-memory backend
// backs tests. Architecture mirrors the teacher's checkpoint.Storage: a
// narrow contract wrapping whatever actually holds the bytes.
package persistence

import (
	"context"

	"github.com/tenex-chat/tenex/pkg/store"
)

// Metadata is the summary row returned by List, without loading the full
// conversation body.
type Metadata struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Phase      string `json:"phase"`
	EventCount int    `json:"eventCount"`
	AgentCount int    `json:"agentCount"`
	Archived   bool   `json:"archived"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// SearchCriteria filters Search results.
type SearchCriteria struct {
	TitleContains string
	Phase         string
	Archived      *bool
}

// Adapter is the Persistence Adapter contract (spec §4.3).
type Adapter interface {
	// Initialize prepares storage (creates directories, opens
	// connections, etc). Fatal failure here must prevent engine start.
	Initialize(ctx context.Context) error

	// Save persists a conversation. Idempotent; last-writer-wins per id.
	Save(ctx context.Context, conv *store.Conversation) error

	// Load retrieves a conversation by id. Returns (nil, nil) if absent.
	Load(ctx context.Context, id string) (*store.Conversation, error)

	// List returns summary metadata for every known conversation.
	List(ctx context.Context) ([]Metadata, error)

	// Archive moves a conversation's durable record out of the active set.
	Archive(ctx context.Context, id string) error

	// Search filters conversations by the given criteria.
	Search(ctx context.Context, criteria SearchCriteria) ([]Metadata, error)
}
