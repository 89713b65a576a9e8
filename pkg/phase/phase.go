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

// Package phase is the Phase Manager: a finite-state machine over
// conversation phases that enforces entry/exit side effects, gating the
// EXECUTE phase behind the Execution Queue. Grounded on the teacher's task
// state machine (pkg/task.State, IsTerminal/IsPending) generalised from a
// single task's terminal states to a closed set of re-enterable phases.
package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/tenex-chat/tenex/pkg/execqueue"
	"github.com/tenex-chat/tenex/pkg/store"
)

// Phase is a conversation's high-level state.
type Phase string

const (
	Chat         Phase = "chat"
	Brainstorm   Phase = "brainstorm"
	Plan         Phase = "plan"
	Execute      Phase = "execute"
	Verification Phase = "verification"
	Chores       Phase = "chores"
	Reflection   Phase = "reflection"
)

var validPhases = map[Phase]bool{
	Chat: true, Brainstorm: true, Plan: true, Execute: true,
	Verification: true, Chores: true, Reflection: true,
}

// Valid reports whether p is one of the closed set of phases.
func (p Phase) Valid() bool { return validPhases[p] }

// TransitionRequest describes a requested phase change.
type TransitionRequest struct {
	ConversationID string
	From           Phase
	To             Phase
	Message        string
	AgentPubkey    string
	AgentName      string
	Reason         string
	Summary        string
}

// TransitionResult reports what happened to a requested transition.
type TransitionResult struct {
	Materialised bool
	QueuePosition int
	EstimatedWait time.Duration
}

// Manager enforces phase transitions and their side effects (spec §4.4).
type Manager struct {
	queue *execqueue.Queue
}

// NewManager constructs a Manager backed by the given Execution Queue.
func NewManager(queue *execqueue.Queue) *Manager {
	return &Manager{queue: queue}
}

// Transition applies req to conv, per spec §4.4:
//   - any phase -> any phase on agent request, recorded as a PhaseTransition
//     (same-phase handoffs still push a record and bump ContinueCounts).
//   - entering EXECUTE requires the Execution Queue lock; if not granted
//     the transition is NOT recorded, a queue-status message is written to
//     conversation metadata, and the caller is told it was deferred.
//   - leaving EXECUTE releases the lock.
//   - leaving REFLECTION for CHAT clears the readFiles metadata tracker.
func (m *Manager) Transition(ctx context.Context, conv *store.Conversation, req TransitionRequest) (TransitionResult, error) {
	if !req.To.Valid() {
		return TransitionResult{}, fmt.Errorf("phase: invalid target phase %q", req.To)
	}

	if req.To == Execute {
		grant := m.queue.RequestExecution(req.ConversationID, req.AgentPubkey)
		if !grant.Granted {
			conv.SetMetadata(store.MetaQueueStatus, map[string]any{
				"position":      grant.QueuePosition,
				"estimatedWait": grant.EstimatedWait.String(),
			})
			return TransitionResult{
				Materialised:  false,
				QueuePosition: grant.QueuePosition,
				EstimatedWait: grant.EstimatedWait,
			}, nil
		}
	}

	if req.From == Execute && req.To != Execute {
		m.queue.ReleaseExecution(req.ConversationID, "phase-exit")
	}

	if req.From == Reflection && req.To == Chat {
		delete(conv.Metadata, store.MetaReadFiles)
	}

	conv.AppendPhaseTransition(store.PhaseTransition{
		From:        string(req.From),
		To:          string(req.To),
		Message:     req.Message,
		Timestamp:   time.Now(),
		AgentPubkey: req.AgentPubkey,
		AgentName:   req.AgentName,
		Reason:      req.Reason,
		Summary:     req.Summary,
	})

	if req.From == req.To {
		conv.IncrementContinueCount(string(req.To))
	}

	return TransitionResult{Materialised: true}, nil
}
