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

// Package delegation is the Delegation Registry: it tracks outstanding
// delegations so that when a delegation-completion event arrives, the
// engine can find the originating delegator, mark the delegation
// completed, and unblock the delegator's next turn. The status enum and
// IsTerminal-style guard are grounded on the teacher's pkg/task.State
// machine, narrowed to the three statuses spec §3 names.
package delegation

import (
	"fmt"
	"log/slog"
	"sync"
)

// Status is a delegation's lifecycle state.
type Status string

const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Aborted   Status = "aborted"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Aborted
}

// Record is the Delegation Record of spec §3, distinct from the
// delegation-marker conversation entry: it lives only in the registry,
// not in the append-only conversation history.
type Record struct {
	DelegationEventID       string
	DelegatorPubkey         string
	RecipientPubkeys        []string
	ParentConversationID    string
	DelegationConversationID string
	Status                  Status
	Responses               map[string]string // recipient pubkey -> response event id
}

// Registry tracks every outstanding and recently-resolved delegation,
// process-wide. Mutating operations are atomic from the caller's
// perspective (spec §5).
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record // keyed by DelegationEventID
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Begin records a new outstanding delegation. Every recorded delegation
// starts in the pending set.
func (r *Registry) Begin(delegationEventID, delegatorPubkey, parentConversationID, delegationConversationID string, recipients []string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := &Record{
		DelegationEventID:        delegationEventID,
		DelegatorPubkey:          delegatorPubkey,
		RecipientPubkeys:         recipients,
		ParentConversationID:     parentConversationID,
		DelegationConversationID: delegationConversationID,
		Status:                   Pending,
		Responses:                make(map[string]string),
	}
	r.records[delegationEventID] = rec
	return rec
}

// CompletionResult reports what a completion event did to the registry.
type CompletionResult struct {
	Orphan     bool
	Record     *Record
	AllResponded bool
}

// RecordCompletion applies a delegation-completion event, identified by
// the e-tag pointing back to the original delegation request, from
// responderPubkey. A completion whose e-tag is not found is an orphan,
// per spec §4.6, and is ignored with a warning (never an error).
func (r *Registry) RecordCompletion(delegationEventID, responderPubkey, responseEventID string) CompletionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[delegationEventID]
	if !ok {
		slog.Warn("delegation: orphan completion, no matching request", "delegation_event_id", delegationEventID, "responder", responderPubkey)
		return CompletionResult{Orphan: true}
	}

	rec.Responses[responderPubkey] = responseEventID

	allResponded := true
	for _, expected := range rec.RecipientPubkeys {
		if _, got := rec.Responses[expected]; !got {
			allResponded = false
			break
		}
	}
	if allResponded && !rec.Status.IsTerminal() {
		rec.Status = Completed
	}

	return CompletionResult{Record: rec, AllResponded: allResponded}
}

// Abort marks a delegation aborted, e.g. when its conversation is
// archived before all recipients respond.
func (r *Registry) Abort(delegationEventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[delegationEventID]
	if !ok {
		return fmt.Errorf("delegation: %q not found", delegationEventID)
	}
	rec.Status = Aborted
	return nil
}

// Get returns the record for a delegation event id, if any.
func (r *Registry) Get(delegationEventID string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[delegationEventID]
	return rec, ok
}

// PendingFor returns every still-pending delegation authored by
// delegatorPubkey, used to determine whether an agent remains blocked.
func (r *Registry) PendingFor(delegatorPubkey string) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Record
	for _, rec := range r.records {
		if rec.DelegatorPubkey == delegatorPubkey && rec.Status == Pending {
			out = append(out, rec)
		}
	}
	return out
}
