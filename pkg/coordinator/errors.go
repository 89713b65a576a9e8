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

package coordinator

import (
	"fmt"
	"time"
)

// ConversationNotFoundError is returned when an operation targets a
// conversation id the Coordinator has never seen, neither in memory nor
// in the Persistence Adapter.
type ConversationNotFoundError struct {
	ConversationID string
}

func (e *ConversationNotFoundError) Error() string {
	return fmt.Sprintf("coordinator: conversation %q not found", e.ConversationID)
}

// InvalidEventError is returned for a malformed inbound event: missing or
// non-canonical id, or a structurally unusable tag set.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("coordinator: invalid event: %s", e.Reason)
}

// PhaseDeniedError is returned when a requested transition into EXECUTE
// could not acquire the Execution Queue lock. It carries the data the
// caller needs to inform the requester (spec §4.5's fixed queue message
// shape).
type PhaseDeniedError struct {
	ConversationID string
	QueuePosition  int
	EstimatedWait  time.Duration
}

func (e *PhaseDeniedError) Error() string {
	return fmt.Sprintf("coordinator: phase denied for %q: position %d, estimated wait %s",
		e.ConversationID, e.QueuePosition, e.EstimatedWait)
}

// PersistenceError wraps a failure from the Persistence Adapter after the
// adapter's own retry policy has been exhausted (spec §7 "resource
// errors... retried once on save; then surfaced to caller").
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("coordinator: persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DelegationOrphanError is returned when a delegation-completion event's
// e-tag does not match any outstanding delegation. Per spec §4.6/§7 this
// is logged and ignored by the Delegation Registry itself; the Coordinator
// surfaces it as a typed value only for callers that want to distinguish
// it from a hard failure, never as a fatal error.
type DelegationOrphanError struct {
	DelegationEventID string
}

func (e *DelegationOrphanError) Error() string {
	return fmt.Sprintf("coordinator: orphan delegation completion for %q", e.DelegationEventID)
}

// InternalError wraps any failure that does not fit the other categories.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("coordinator: internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
