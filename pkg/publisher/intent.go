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

// Package publisher is the Agent Event Publisher: it encodes a typed
// agent intent into a signed outbound nostr.Event with the correct tags
// and threading. Intent bodies are carried as a2a.Message content
// (github.com/a2aproject/a2a-go/a2a), the same content shape the teacher
// uses to move text/tool-call payloads between its own agent runtime and
// the wire, before being flattened into the tag+content shape the relay
// network actually carries.
package publisher

import "github.com/a2aproject/a2a-go/a2a"

// Usage carries the LLM metadata an intent may attach, per spec §4.9's
// "LLM metadata tags when present" rule. Cost is USD, serialised to 8
// decimal places on the wire.
type Usage struct {
	Model               string
	CostUSD             float64
	PromptTokens        int
	CompletionTokens    int
	TotalTokens         int
	ContextWindow       int
	MaxCompletionTokens int
}

// HasData reports whether any field of Usage was actually populated, so
// callers can omit the LLM metadata tags entirely rather than emit zeros.
func (u *Usage) HasData() bool {
	return u != nil && (u.Model != "" || u.CostUSD != 0 || u.PromptTokens != 0 ||
		u.CompletionTokens != 0 || u.TotalTokens != 0 ||
		u.ContextWindow != 0 || u.MaxCompletionTokens != 0)
}

// CompletionIntent announces that a delegated task has finished.
// completionRecipientPubkey overrides the default "route back to the
// triggering event's author" rule, used when the delegator differs from
// whoever happened to send the most recent message.
type CompletionIntent struct {
	Content                   string
	Summary                   string
	Usage                     *Usage
	CompletionRecipientPubkey string
}

// ConversationIntent is an ordinary threaded reply, optionally marked as
// agent reasoning rather than a user-facing answer.
type ConversationIntent struct {
	Content     string
	IsReasoning bool
	Usage       *Usage
}

// DelegationRequest is one recipient of a delegation fan-out.
type DelegationRequest struct {
	Recipient string
	Request   string
	Branch    string
}

// DelegationIntent fans a task out to one or more agents; the Publisher
// emits one event per recipient (spec §4.9 "one event per delegation").
type DelegationIntent struct {
	Delegations []DelegationRequest
	Type        string
}

// ToolUseIntent advertises a tool invocation for observability. Args
// travel as a2a.DataPart fields (mirroring hector's own tool_use DataPart
// shape); the referenced event/addressable ids are emitted as e and a tags.
type ToolUseIntent struct {
	ToolName                     string
	Content                      string
	Args                         map[string]any
	ReferencedEventIDs           []string
	ReferencedAddressableEvents  []string
	Usage                        *Usage
}

// AskIntent raises one or more clarifying questions back to the user.
type AskIntent struct {
	Title     string
	Context   string
	Questions []string
}

// StatusIntent reports an agent or project status line.
type StatusIntent struct {
	Status  string
	Content string
}

// LessonIntent records a learned lesson, linked back to the agent
// definition it applies to.
type LessonIntent struct {
	AgentDefinitionRef string
	Title              string
	Content            string
}

// InterventionReviewIntent asks a human to review an agent's action
// before it proceeds.
type InterventionReviewIntent struct {
	Content  string
	ToolName string
}

// Context carries the ambient facts every outbound event needs regardless
// of intent, per spec §4.9's "every outbound event carries" list.
type Context struct {
	ProjectRef          string
	Phase               string
	TriggeringEvent      *TriggeringEvent
	VoiceMode           bool
	CumulativeExecSecs  int64
	TraceContext        string
	TraceContextLLM     string
}

// TriggeringEvent is the minimal slice of the inbound event a published
// response must reference: its id for the e/E-reply tags, a content
// prefix for observability, and its root tag (if any) for threading.
type TriggeringEvent struct {
	ID           string
	AuthorPubkey string
	Content      string
	RootID       string // value of the uppercase E-tag, if the triggering event carried one
}

// textMessage builds an a2a.Message with a single text part, mirroring
// hector's Content.NewTextContent/ToMessage helpers.
func textMessage(role a2a.MessageRole, text string) *a2a.Message {
	return a2a.NewMessage(role, a2a.TextPart{Text: text})
}

// toolUseMessage builds an a2a.Message carrying a tool_use DataPart,
// the same shape hector's model adapters emit for tool calls.
func toolUseMessage(toolName string, args map[string]any) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleAgent, a2a.DataPart{
		Data: map[string]any{
			"type": "tool_use",
			"name": toolName,
			"args": args,
		},
	})
}
