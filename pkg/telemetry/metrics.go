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

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus counters for the engine's internal
// concurrency primitives: the Execution Queue, the Delegation Registry,
// the Message Builder's repair path, and Persistence's retry policy.
type Metrics struct {
	registry *prometheus.Registry

	execQueueLockAcquired *prometheus.CounterVec
	execQueueTimeouts     *prometheus.CounterVec

	delegationCompletions *prometheus.CounterVec
	delegationOrphans     prometheus.Counter

	messageBuilderRepairs prometheus.Counter

	persistenceRetries *prometheus.CounterVec
}

// NewMetrics constructs a Metrics registry with every engine counter
// pre-registered.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.execQueueLockAcquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execqueue",
		Name:      "lock_acquired_total",
		Help:      "Execution lock acquisitions, by conversation phase at acquisition time.",
	}, []string{"phase"})

	m.execQueueTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execqueue",
		Name:      "timeouts_total",
		Help:      "Execution lock holders that expired their maxDurationMs without releasing.",
	}, []string{"conversation_id"})

	m.delegationCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delegation",
		Name:      "completions_total",
		Help:      "Delegation completions recorded, by whether all recipients had responded.",
	}, []string{"all_responded"})

	m.delegationOrphans = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delegation",
		Name:      "orphan_completions_total",
		Help:      "Completion events whose e-tag matched no outstanding delegation.",
	})

	m.messageBuilderRepairs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messagebuilder",
		Name:      "synthetic_tool_result_repairs_total",
		Help:      "Orphan tool-calls repaired with a synthetic tool-result during projection.",
	})

	m.persistenceRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "save_retries_total",
		Help:      "Save operations that required their one retry.",
	}, []string{"outcome"})

	m.registry.MustRegister(
		m.execQueueLockAcquired, m.execQueueTimeouts,
		m.delegationCompletions, m.delegationOrphans,
		m.messageBuilderRepairs, m.persistenceRetries,
	)
	return m
}

// RecordLockAcquired increments the lock-acquisition counter for phase.
func (m *Metrics) RecordLockAcquired(phase string) {
	if m == nil {
		return
	}
	m.execQueueLockAcquired.WithLabelValues(phase).Inc()
}

// RecordTimeout increments the timeout counter for a conversation whose
// execution lock expired without release.
func (m *Metrics) RecordTimeout(conversationID string) {
	if m == nil {
		return
	}
	m.execQueueTimeouts.WithLabelValues(conversationID).Inc()
}

// RecordDelegationCompletion increments the completion counter, labelled
// by whether this completion closed out every recipient.
func (m *Metrics) RecordDelegationCompletion(allResponded bool) {
	if m == nil {
		return
	}
	label := "false"
	if allResponded {
		label = "true"
	}
	m.delegationCompletions.WithLabelValues(label).Inc()
}

// RecordDelegationOrphan increments the orphan-completion counter.
func (m *Metrics) RecordDelegationOrphan() {
	if m == nil {
		return
	}
	m.delegationOrphans.Inc()
}

// RecordSyntheticRepair increments the Message Builder's synthetic
// tool-result repair counter.
func (m *Metrics) RecordSyntheticRepair() {
	if m == nil {
		return
	}
	m.messageBuilderRepairs.Inc()
}

// RecordPersistenceRetry increments the save-retry counter, labelled by
// whether the retry ultimately succeeded.
func (m *Metrics) RecordPersistenceRetry(succeeded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.persistenceRetries.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry over HTTP for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
