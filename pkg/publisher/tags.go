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

package publisher

import (
	"strconv"

	"github.com/tenex-chat/tenex/pkg/nostr"
)

const contentPrefixLen = 50

// applyCommonTags appends the tags spec §4.9 says every outbound event
// carries: project reference, phase, triggering-event id + content
// prefix, voice-mode propagation, cumulative execution time, and trace
// context. It does not add reply/root threading tags; see threadTags.
func applyCommonTags(tags nostr.Tags, ctx Context) nostr.Tags {
	if ctx.ProjectRef != "" {
		tags = append(tags, nostr.Tag{nostr.TagAddressable, ctx.ProjectRef})
	}
	if ctx.Phase != "" {
		tags = append(tags, nostr.Tag{nostr.TagPhase, ctx.Phase})
	}
	if ctx.TriggeringEvent != nil {
		tags = append(tags, nostr.Tag{"triggering-event", ctx.TriggeringEvent.ID})
		tags = append(tags, nostr.Tag{"triggering-content", truncate(ctx.TriggeringEvent.Content, contentPrefixLen)})
	}
	if ctx.VoiceMode {
		tags = append(tags, nostr.Tag{nostr.TagMode, nostr.ModeVoice})
	}
	if ctx.CumulativeExecSecs > 0 {
		tags = append(tags, nostr.Tag{"execution-time", strconv.FormatInt(ctx.CumulativeExecSecs, 10)})
	}
	if ctx.TraceContext != "" {
		tags = append(tags, nostr.Tag{nostr.TagTraceContext, ctx.TraceContext})
	}
	if ctx.TraceContextLLM != "" {
		tags = append(tags, nostr.Tag{nostr.TagTraceContextLLM, ctx.TraceContextLLM})
	}
	return tags
}

// threadTags computes the reply/root tags for a response to the
// triggering event. Per spec §4.9: when the triggering event carries a
// root (uppercase E) tag, every lowercase e-tag collapses to that single
// root id so the whole turn threads back to the conversation root rather
// than to the immediate parent.
func threadTags(te *TriggeringEvent) nostr.Tags {
	if te == nil {
		return nil
	}
	if te.RootID != "" {
		return nostr.Tags{{nostr.TagReply, te.RootID}}
	}
	return nostr.Tags{{nostr.TagReply, te.ID}}
}

// usageTags renders the LLM metadata tags (model, cost, token counts)
// spec §4.9 says to attach "when present". Cost is formatted to 8
// decimal places in USD.
func usageTags(u *Usage) nostr.Tags {
	if !u.HasData() {
		return nil
	}
	var tags nostr.Tags
	if u.Model != "" {
		tags = append(tags, nostr.Tag{"llm-model", u.Model})
	}
	if u.CostUSD != 0 {
		tags = append(tags, nostr.Tag{"llm-cost-usd", strconv.FormatFloat(u.CostUSD, 'f', 8, 64)})
	}
	if u.PromptTokens != 0 {
		tags = append(tags, nostr.Tag{"llm-prompt-tokens", strconv.Itoa(u.PromptTokens)})
	}
	if u.CompletionTokens != 0 {
		tags = append(tags, nostr.Tag{"llm-completion-tokens", strconv.Itoa(u.CompletionTokens)})
	}
	if u.TotalTokens != 0 {
		tags = append(tags, nostr.Tag{"llm-total-tokens", strconv.Itoa(u.TotalTokens)})
	}
	if u.ContextWindow != 0 {
		tags = append(tags, nostr.Tag{"llm-context-window", strconv.Itoa(u.ContextWindow)})
	}
	if u.MaxCompletionTokens != 0 {
		tags = append(tags, nostr.Tag{"llm-max-completion-tokens", strconv.Itoa(u.MaxCompletionTokens)})
	}
	return tags
}

// completionRecipient resolves the p-tag target for a completion event:
// the explicit override if given, else the triggering event's author.
func completionRecipient(override string, te *TriggeringEvent) string {
	if override != "" {
		return override
	}
	if te != nil {
		return te.AuthorPubkey
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
