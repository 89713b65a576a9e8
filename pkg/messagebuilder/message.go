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

// Package messagebuilder is the Message Builder: a pure function that
// projects a slice of store.Entry into a provider-ready ordered message
// list for one viewing agent. This is the heart of the engine (spec §2:
// ~25% of the implementation). Message's field shape mirrors the
// role/content/tool-call vocabulary the whole pack converges on for chat
// messages (cf. the teacher's pkg/agent/history_selector.go use of
// llms.Message{Role, Content, ToolCalls, ToolCallID}).
package messagebuilder

// Role values a projected Message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall is one tool invocation surfaced on an assistant message.
type ToolCall struct {
	ID    string
	Name  string
	Input any
}

// ImagePart is a multimodal image reference attached to a message.
type ImagePart struct {
	URL string
}

// Message is one entry in the ordered, provider-ready transcript.
type Message struct {
	Role       string
	Content    string
	ToolCallID string     // populated on RoleTool messages
	ToolCalls  []ToolCall // populated on RoleAssistant messages carrying tool calls
	Images     []ImagePart
}
