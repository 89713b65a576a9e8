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

package engine

import (
	"context"

	"github.com/tenex-chat/tenex/pkg/messagebuilder"
	"github.com/tenex-chat/tenex/pkg/nostr"
)

// RelayClient and Signer are the relay transport and event-signing
// collaborators spec.md §1/§6 name as external to the conversation engine.
// Both are already defined as narrow interfaces on pkg/nostr (consumed by
// pkg/coordinator and pkg/publisher); Engine re-exposes them here under
// their spec names rather than redeclaring the methods a second time.
type RelayClient = nostr.RelayClient
type Signer = nostr.Signer

// ModelProvider is the opaque "given these messages, produce tool-calls
// and text" boundary spec.md §1 describes: the engine never calls an LLM
// itself, it only builds the message slice (via pkg/messagebuilder) a
// ModelProvider consumes and publishes whatever intent the response
// implies. Callers inject a concrete adapter (OpenAI, Anthropic, a local
// model, a VCR cassette player for tests) behind this interface.
type ModelProvider interface {
	Complete(ctx context.Context, messages []messagebuilder.Message) (ModelResponse, error)
}

// ModelResponse is a ModelProvider's answer: text content, zero or more
// tool calls to execute, and the usage figures the Agent Event Publisher
// turns into LLM-metadata tags (spec.md §4.9).
type ModelResponse struct {
	Content   string
	ToolCalls []messagebuilder.ToolCall

	Model               string
	CostUSD             float64
	PromptTokens        int
	CompletionTokens    int
	TotalTokens         int
	ContextWindow       int
	MaxCompletionTokens int
}
