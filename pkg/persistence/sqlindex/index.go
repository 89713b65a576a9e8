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

// Package sqlindex is an optional secondary search index layered over the
// filesystem-as-source-of-truth Persistence Adapter. The filesystem (or
// in-memory) adapter remains authoritative; this index only accelerates
// Search() for deployments with many conversations, and can always be
// rebuilt from the adapter's List().
package sqlindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Database drivers, selected by dialect at construction time.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Row is a denormalised, queryable summary of one conversation.
type Row struct {
	ID         string
	Title      string
	Phase      string
	EventCount int
	AgentCount int
	Archived   bool
	UpdatedAt  time.Time
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id VARCHAR(64) PRIMARY KEY,
    title TEXT NOT NULL,
    phase VARCHAR(32) NOT NULL,
    event_count INTEGER NOT NULL,
    agent_count INTEGER NOT NULL,
    archived BOOLEAN NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_phase ON conversations(phase);
CREATE INDEX IF NOT EXISTS idx_conversations_archived ON conversations(archived);
`

// Index is a SQL-backed search index over conversation metadata.
// Supports PostgreSQL, MySQL, and SQLite via database/sql, matching the
// dialect validation the teacher's SQL task service performs.
type Index struct {
	db      *sql.DB
	dialect string
}

// Open validates dialect, initialises schema, and returns a ready Index.
func Open(db *sql.DB, dialect string) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlindex: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("sqlindex: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}
	idx := &Index{db: db, dialect: dialect}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("sqlindex: init schema: %w", err)
	}
	return idx, nil
}

// Upsert inserts or replaces the row for a conversation.
func (idx *Index) Upsert(ctx context.Context, row Row) error {
	_, err := idx.db.ExecContext(ctx, idx.upsertSQL(),
		row.ID, row.Title, row.Phase, row.EventCount, row.AgentCount, row.Archived, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlindex: upsert %s: %w", row.ID, err)
	}
	return nil
}

func (idx *Index) upsertSQL() string {
	switch idx.dialect {
	case "postgres":
		return `INSERT INTO conversations (id, title, phase, event_count, agent_count, archived, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET title=$2, phase=$3, event_count=$4, agent_count=$5, archived=$6, updated_at=$7`
	default:
		return `INSERT OR REPLACE INTO conversations (id, title, phase, event_count, agent_count, archived, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	}
}

// Remove deletes the row for a conversation id.
func (idx *Index) Remove(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	return err
}

// Search runs a substring/equality filter over the indexed rows.
func (idx *Index) Search(ctx context.Context, titleContains, phase string, archived *bool) ([]Row, error) {
	var clauses []string
	var args []any

	if titleContains != "" {
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(titleContains)+"%")
	}
	if phase != "" {
		clauses = append(clauses, "phase = ?")
		args = append(args, phase)
	}
	if archived != nil {
		clauses = append(clauses, "archived = ?")
		args = append(args, *archived)
	}

	query := "SELECT id, title, phase, event_count, agent_count, archived, updated_at FROM conversations"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlindex: search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Title, &r.Phase, &r.EventCount, &r.AgentCount, &r.Archived, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlindex: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
