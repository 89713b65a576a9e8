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

// Package store holds the append-only conversation data model: the
// Conversation, its tagged-union entry history, per-agent state, phase
// transitions and orchestrator turns. Nothing here mutates an entry once
// appended; re-ordering for display happens only in pkg/messagebuilder.
package store

import "time"

// EntryType discriminates the ConversationEntry tagged union. The engine
// dispatches on this field explicitly rather than relying on structural
// typing, matching the source's runtime type tag.
type EntryType string

const (
	EntryText              EntryType = "text"
	EntryToolCall          EntryType = "tool-call"
	EntryToolResult        EntryType = "tool-result"
	EntryDelegationMarker  EntryType = "delegation-marker"
)

// DelegationStatus is the lifecycle state carried by a delegation-marker
// entry.
type DelegationStatus string

const (
	DelegationPending   DelegationStatus = "pending"
	DelegationCompleted DelegationStatus = "completed"
	DelegationAborted   DelegationStatus = "aborted"
)

// ToolCallPart is one {toolCallId, toolName, input} unit inside a
// tool-call entry.
type ToolCallPart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      any    `json:"input,omitempty"`
}

// ToolResultPart is one {toolCallId, toolName, output} unit inside a
// tool-result entry.
type ToolResultPart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Output     string `json:"output"`
}

// Entry is a single immutable unit of conversation history. Exactly one of
// the type-specific field groups is populated, selected by Type.
type Entry struct {
	Type EntryType `json:"type"`

	// EventID is the full 64-char hex id of the originating signed event,
	// when this entry was derived from one.
	EventID string `json:"eventId,omitempty"`

	// Timestamp records when the entry was appended.
	Timestamp time.Time `json:"timestamp"`

	// RAL is the run-attempt-loop number that produced this entry.
	// Absent (zero value) for user-originated text entries.
	RAL int `json:"ral,omitempty"`

	// --- text ---

	Pubkey          string   `json:"pubkey,omitempty"`
	Content         string   `json:"content,omitempty"`
	TargetedPubkeys []string `json:"targetedPubkeys,omitempty"`

	// SenderPubkey overrides Pubkey for injected messages whose apparent
	// sender differs from the authoring pubkey.
	SenderPubkey string `json:"senderPubkey,omitempty"`

	// Role overrides role derivation entirely; used for synthetic entries
	// such as compressed summaries. See pkg/messagebuilder role derivation.
	Role string `json:"role,omitempty"`

	// IsDelegationCompletion marks a text entry as having been classified
	// by pkg/decoder as a delegation-completion event, so the Message
	// Builder can prune superseded duplicates (spec §4.8 "delegation
	// completion pruning").
	IsDelegationCompletion bool `json:"isDelegationCompletion,omitempty"`

	// --- tool-call / tool-result ---

	ToolCalls   []ToolCallPart   `json:"toolCalls,omitempty"`
	ToolResults []ToolResultPart `json:"toolResults,omitempty"`

	// --- delegation-marker ---

	DelegationConversationID string           `json:"delegationConversationId,omitempty"`
	ParentConversationID     string           `json:"parentConversationId,omitempty"`
	RecipientPubkey          string           `json:"recipientPubkey,omitempty"`
	Status                   DelegationStatus `json:"status,omitempty"`
	AbortReason              string           `json:"abortReason,omitempty"`
	CompletedAt              *time.Time       `json:"completedAt,omitempty"`
}

// EffectiveSender returns SenderPubkey if set, else Pubkey.
func (e *Entry) EffectiveSender() string {
	if e.SenderPubkey != "" {
		return e.SenderPubkey
	}
	return e.Pubkey
}

// NewTextEntry constructs a text entry.
func NewTextEntry(pubkey, content string) Entry {
	return Entry{
		Type:      EntryText,
		Pubkey:    pubkey,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewToolCallEntry constructs a tool-call entry.
func NewToolCallEntry(pubkey string, ral int, parts ...ToolCallPart) Entry {
	return Entry{
		Type:      EntryToolCall,
		Pubkey:    pubkey,
		RAL:       ral,
		ToolCalls: parts,
		Timestamp: time.Now(),
	}
}

// NewToolResultEntry constructs a tool-result entry.
func NewToolResultEntry(pubkey string, ral int, parts ...ToolResultPart) Entry {
	return Entry{
		Type:        EntryToolResult,
		Pubkey:      pubkey,
		RAL:         ral,
		ToolResults: parts,
		Timestamp:   time.Now(),
	}
}

// NewDelegationMarker constructs a delegation-marker entry.
func NewDelegationMarker(delegationConvID, parentConvID, recipient string) Entry {
	return Entry{
		Type:                     EntryDelegationMarker,
		DelegationConversationID: delegationConvID,
		ParentConversationID:     parentConvID,
		RecipientPubkey:          recipient,
		Status:                   DelegationPending,
		Timestamp:                time.Now(),
	}
}
