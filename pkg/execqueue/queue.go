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

// Package execqueue is the Execution Queue: a per-conversation mutex with
// FIFO waiters, timeout enforcement, and lifecycle events, that serialises
// agent runs while a conversation is in the EXECUTE phase. Concurrency
// control here follows the teacher's task package idiom of a struct-level
// sync.Mutex guarding an in-memory map, generalised from one task's
// terminal-state guard to cross-conversation lock bookkeeping.
package execqueue

import (
	"log/slog"
	"sync"
	"time"
)

// Lock is the Execution Lock record of spec §3: at most one exists per
// conversation at any time.
type Lock struct {
	ConversationID string
	AgentPubkey    string
	AcquiredAt     time.Time
	MaxDuration    time.Duration
}

type waiter struct {
	agentPubkey string
	grantedCh   chan struct{}
}

type conversationQueue struct {
	lock    *Lock
	waiters []*waiter

	// durationSamples feeds the monotonically non-increasing-on-average
	// wait estimator: a short rolling history of past lock durations.
	durationSamples []time.Duration
}

// Grant is the result of RequestExecution.
type Grant struct {
	Granted       bool
	QueuePosition int
	EstimatedWait time.Duration
}

// Status is a point-in-time snapshot for one conversation.
type Status struct {
	ConversationID string
	Locked         bool
	LockedBy       string
	QueueLength    int
}

// FullStatus is the global snapshot: every lock plus every queue.
type FullStatus struct {
	Locks      []Lock
	QueueDepth map[string]int
}

// Event is a queue lifecycle notification (spec §4.5).
type Event struct {
	Type           string // lock-acquired, lock-released, queue-joined, queue-left, timeout-warning, timeout
	ConversationID string
	AgentPubkey    string
	Reason         string
	RemainingMs    int64
}

// Listener receives queue lifecycle events.
type Listener func(Event)

const defaultMaxDuration = 10 * time.Minute
const timeoutWarningFraction = 0.1 // fire when <10% of max duration remains

// Queue is the per-process Execution Queue, holding one conversationQueue
// per conversation id that has ever requested execution.
type Queue struct {
	mu          sync.Mutex
	byConv      map[string]*conversationQueue
	maxDuration time.Duration
	listeners   []Listener

	timers map[string]*timeoutTimers
}

type timeoutTimers struct {
	warning *time.Timer
	final   *time.Timer
}

// New constructs an empty Queue. maxDuration bounds how long a single
// lock acquisition may be held before a forced timeout; zero selects the
// default of 10 minutes.
func New(maxDuration time.Duration) *Queue {
	if maxDuration <= 0 {
		maxDuration = defaultMaxDuration
	}
	return &Queue{
		byConv:      make(map[string]*conversationQueue),
		maxDuration: maxDuration,
		timers:      make(map[string]*timeoutTimers),
	}
}

// OnEvent registers a listener for queue lifecycle events.
func (q *Queue) OnEvent(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

func (q *Queue) emit(ev Event) {
	for _, l := range q.listeners {
		l(ev)
	}
}

func (q *Queue) queueFor(conversationID string) *conversationQueue {
	cq, ok := q.byConv[conversationID]
	if !ok {
		cq = &conversationQueue{}
		q.byConv[conversationID] = cq
	}
	return cq
}

// RequestExecution requests the execution lock for conversationID on
// behalf of agentPubkey. If the lock is free it is granted immediately;
// otherwise the caller joins the FIFO wait list.
func (q *Queue) RequestExecution(conversationID, agentPubkey string) Grant {
	q.mu.Lock()
	defer q.mu.Unlock()

	cq := q.queueFor(conversationID)
	if cq.lock == nil {
		q.grantLocked(conversationID, cq, agentPubkey)
		return Grant{Granted: true}
	}

	cq.waiters = append(cq.waiters, &waiter{agentPubkey: agentPubkey, grantedCh: make(chan struct{})})
	position := len(cq.waiters)
	q.emit(Event{Type: "queue-joined", ConversationID: conversationID, AgentPubkey: agentPubkey})
	return Grant{
		Granted:       false,
		QueuePosition: position,
		EstimatedWait: q.estimateWait(cq, position),
	}
}

// grantLocked hands the lock to agentPubkey and arms the timeout timers.
// Caller must hold q.mu.
func (q *Queue) grantLocked(conversationID string, cq *conversationQueue, agentPubkey string) {
	cq.lock = &Lock{
		ConversationID: conversationID,
		AgentPubkey:    agentPubkey,
		AcquiredAt:     time.Now(),
		MaxDuration:    q.maxDuration,
	}
	q.armTimeout(conversationID, q.maxDuration)
	q.emit(Event{Type: "lock-acquired", ConversationID: conversationID, AgentPubkey: agentPubkey})
}

func (q *Queue) armTimeout(conversationID string, maxDuration time.Duration) {
	if t, ok := q.timers[conversationID]; ok {
		if t.warning != nil {
			t.warning.Stop()
		}
		if t.final != nil {
			t.final.Stop()
		}
	}
	warnAt := time.Duration(float64(maxDuration) * (1 - timeoutWarningFraction))
	remaining := maxDuration - warnAt
	warn := time.AfterFunc(warnAt, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		cq, ok := q.byConv[conversationID]
		if !ok || cq.lock == nil {
			return
		}
		q.emit(Event{
			Type:           "timeout-warning",
			ConversationID: conversationID,
			AgentPubkey:    cq.lock.AgentPubkey,
			RemainingMs:    remaining.Milliseconds(),
		})
	})
	final := time.AfterFunc(maxDuration, func() {
		q.mu.Lock()
		cq, ok := q.byConv[conversationID]
		var agent string
		if ok && cq.lock != nil {
			agent = cq.lock.AgentPubkey
		}
		q.mu.Unlock()
		if !ok || agent == "" {
			return
		}
		// The lock is released and a timeout event emitted; the
		// conversation's phase is not changed here or by any listener.
		slog.Warn("execqueue: lock timed out, releasing", "conversation_id", conversationID, "agent", agent)
		q.ReleaseExecution(conversationID, "timeout")
		q.emit(Event{Type: "timeout", ConversationID: conversationID, AgentPubkey: agent})
	})
	q.timers[conversationID] = &timeoutTimers{warning: warn, final: final}
}

// ReleaseExecution releases the lock for conversationID, granting it to
// the next FIFO waiter if any.
func (q *Queue) ReleaseExecution(conversationID, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cq, ok := q.byConv[conversationID]
	if !ok || cq.lock == nil {
		return
	}

	held := time.Since(cq.lock.AcquiredAt)
	cq.durationSamples = append(cq.durationSamples, held)
	if len(cq.durationSamples) > 20 {
		cq.durationSamples = cq.durationSamples[len(cq.durationSamples)-20:]
	}

	releasedAgent := cq.lock.AgentPubkey
	cq.lock = nil
	if t, ok := q.timers[conversationID]; ok {
		if t.warning != nil {
			t.warning.Stop()
		}
		if t.final != nil {
			t.final.Stop()
		}
		delete(q.timers, conversationID)
	}
	q.emit(Event{Type: "lock-released", ConversationID: conversationID, AgentPubkey: releasedAgent, Reason: reason})

	if len(cq.waiters) == 0 {
		return
	}
	next := cq.waiters[0]
	cq.waiters = cq.waiters[1:]
	q.emit(Event{Type: "queue-left", ConversationID: conversationID, AgentPubkey: next.agentPubkey})
	q.grantLocked(conversationID, cq, next.agentPubkey)
	close(next.grantedCh)
}

// GetQueuePosition returns the 1-based queue position for conversationID,
// or 0 if not queued.
func (q *Queue) GetQueuePosition(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.byConv[conversationID]
	if !ok {
		return 0
	}
	if cq.lock == nil && len(cq.waiters) == 0 {
		return 0
	}
	return len(cq.waiters)
}

// RemoveFromQueue removes every waiter for conversationID without
// granting the lock.
func (q *Queue) RemoveFromQueue(conversationID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.byConv[conversationID]
	if !ok {
		return
	}
	cq.waiters = nil
}

// GetStatus returns a point-in-time snapshot for one conversation.
func (q *Queue) GetStatus(conversationID string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	cq, ok := q.byConv[conversationID]
	if !ok {
		return Status{ConversationID: conversationID}
	}
	st := Status{ConversationID: conversationID, QueueLength: len(cq.waiters)}
	if cq.lock != nil {
		st.Locked = true
		st.LockedBy = cq.lock.AgentPubkey
	}
	return st
}

// GetFullStatus returns every lock and queue depth across the process.
func (q *Queue) GetFullStatus() FullStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	fs := FullStatus{QueueDepth: make(map[string]int)}
	for id, cq := range q.byConv {
		if cq.lock != nil {
			fs.Locks = append(fs.Locks, *cq.lock)
		}
		if len(cq.waiters) > 0 {
			fs.QueueDepth[id] = len(cq.waiters)
		}
	}
	return fs
}

// estimateWait computes a monotonically non-increasing-on-average
// heuristic from historical lock durations: average held-duration times
// the caller's position in line. Not a guarantee (spec §4.5).
func (q *Queue) estimateWait(cq *conversationQueue, position int) time.Duration {
	if len(cq.durationSamples) == 0 {
		return time.Duration(position) * defaultMaxDuration / 4
	}
	var total time.Duration
	for _, d := range cq.durationSamples {
		total += d
	}
	avg := total / time.Duration(len(cq.durationSamples))
	return avg * time.Duration(position)
}
