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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/tenex-chat/tenex/pkg/nostr"
)

// Publisher turns a typed intent into a signed outbound event and hands
// it to the relay. Signing and transport are the narrow external
// collaborators of spec §6; Publisher owns only tagging and threading.
type Publisher struct {
	signer nostr.Signer
	relay  nostr.RelayClient
}

// New constructs a Publisher over a Signer and RelayClient.
func New(signer nostr.Signer, relay nostr.RelayClient) *Publisher {
	return &Publisher{signer: signer, relay: relay}
}

// build assembles, signs and returns an event without publishing it, so
// callers (and tests) can inspect the exact tag set before it goes out.
func (p *Publisher) build(ctx context.Context, kind int, content string, tags nostr.Tags) (*nostr.Event, error) {
	pubkey, err := p.signer.Pubkey(ctx)
	if err != nil {
		return nil, fmt.Errorf("publisher: resolve pubkey: %w", err)
	}
	ev := &nostr.Event{
		Pubkey:    pubkey,
		Kind:      kind,
		CreatedAt: time.Now().Unix(),
		Content:   content,
		Tags:      tags,
	}
	if err := p.signer.Sign(ctx, ev); err != nil {
		return nil, fmt.Errorf("publisher: sign: %w", err)
	}
	return ev, nil
}

func (p *Publisher) publish(ctx context.Context, ev *nostr.Event) error {
	if err := p.relay.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publisher: publish: %w", err)
	}
	return nil
}

// textOf flattens an a2a.Message's text parts into a single string, the
// wire content the relay actually carries (mirroring hector's own
// Event.TextContent helper).
func textOf(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// PublishCompletion emits a completion event: kind-generic-text,
// status=completed, tool=complete, e-reply to the delegation request,
// p-tagged back to the immediate delegator.
func (p *Publisher) PublishCompletion(ctx context.Context, intent CompletionIntent, pc Context) (*nostr.Event, error) {
	msg := textMessage(a2a.MessageRoleAgent, intent.Content)
	// The e-tag names the request itself, never the collapsed root, so the
	// completion can be matched back to its delegation.
	var tags nostr.Tags
	if pc.TriggeringEvent != nil {
		tags = nostr.Tags{{nostr.TagReply, pc.TriggeringEvent.ID}}
	}
	tags = append(tags, nostr.Tag{nostr.TagStatus, nostr.StatusCompleted})
	tags = append(tags, nostr.Tag{nostr.TagTool, "complete"})
	if recipient := completionRecipient(intent.CompletionRecipientPubkey, pc.TriggeringEvent); recipient != "" {
		tags = append(tags, nostr.Tag{nostr.TagPubkey, recipient})
	}
	if intent.Summary != "" {
		tags = append(tags, nostr.Tag{"summary", intent.Summary})
	}
	tags = append(tags, usageTags(intent.Usage)...)
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindGenericText, textOf(msg), tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// PublishConversation emits a threaded reply.
func (p *Publisher) PublishConversation(ctx context.Context, intent ConversationIntent, pc Context) (*nostr.Event, error) {
	msg := textMessage(a2a.MessageRoleAgent, intent.Content)
	tags := threadTags(pc.TriggeringEvent)
	if intent.IsReasoning {
		tags = append(tags, nostr.Tag{"reasoning", "true"})
	}
	tags = append(tags, usageTags(intent.Usage)...)
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindGenericText, textOf(msg), tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// PublishDelegations fans a delegation out as one event per recipient,
// each p-tagged to its recipient and rooted to the conversation.
func (p *Publisher) PublishDelegations(ctx context.Context, intent DelegationIntent, conversationRootID string, pc Context) ([]*nostr.Event, error) {
	events := make([]*nostr.Event, 0, len(intent.Delegations))
	for _, d := range intent.Delegations {
		msg := textMessage(a2a.MessageRoleAgent, d.Request)
		tags := nostr.Tags{
			{nostr.TagPubkey, d.Recipient},
			{nostr.TagRoot, conversationRootID},
		}
		if intent.Type != "" {
			tags = append(tags, nostr.Tag{"delegation-type", intent.Type})
		}
		if d.Branch != "" {
			tags = append(tags, nostr.Tag{"branch", d.Branch})
		}
		tags = applyCommonTags(tags, pc)

		ev, err := p.build(ctx, nostr.KindGenericText, textOf(msg), tags)
		if err != nil {
			return events, err
		}
		if err := p.publish(ctx, ev); err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// PublishToolUse advertises a tool invocation for observability. Args
// travel inside a DataPart, matching hector's own tool_use part shape;
// referenced event ids and addressable coordinates become e and a tags.
func (p *Publisher) PublishToolUse(ctx context.Context, intent ToolUseIntent, pc Context) (*nostr.Event, error) {
	msg := toolUseMessage(intent.ToolName, intent.Args)
	tags := threadTags(pc.TriggeringEvent)
	tags = append(tags, nostr.Tag{nostr.TagTool, intent.ToolName})
	for _, id := range intent.ReferencedEventIDs {
		tags = append(tags, nostr.Tag{nostr.TagReply, id})
	}
	for _, addr := range intent.ReferencedAddressableEvents {
		tags = append(tags, nostr.Tag{nostr.TagAddressable, addr})
	}
	tags = append(tags, usageTags(intent.Usage)...)
	tags = applyCommonTags(tags, pc)

	content := intent.Content
	if content == "" {
		content = toolUseFallbackContent(msg)
	}

	ev, err := p.build(ctx, nostr.KindGenericText, content, tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// toolUseFallbackContent renders the DataPart payload as JSON when the
// caller gave no human-readable content, so the event is never empty.
func toolUseFallbackContent(msg *a2a.Message) string {
	if msg == nil || len(msg.Parts) == 0 {
		return ""
	}
	dp, ok := msg.Parts[0].(a2a.DataPart)
	if !ok {
		return ""
	}
	b, err := json.Marshal(dp.Data)
	if err != nil {
		return ""
	}
	return string(b)
}

// PublishAsk raises clarifying questions back to the user.
func (p *Publisher) PublishAsk(ctx context.Context, intent AskIntent, pc Context) (*nostr.Event, error) {
	content := intent.Context
	tags := threadTags(pc.TriggeringEvent)
	tags = append(tags, nostr.Tag{"title", intent.Title})
	for _, q := range intent.Questions {
		tags = append(tags, nostr.Tag{"question", q})
	}
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindGenericText, content, tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// PublishStatus reports an agent or project status line.
func (p *Publisher) PublishStatus(ctx context.Context, intent StatusIntent, pc Context) (*nostr.Event, error) {
	tags := threadTags(pc.TriggeringEvent)
	tags = append(tags, nostr.Tag{nostr.TagStatus, intent.Status})
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindProjectStatus, intent.Content, tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// PublishLesson records a lesson linked to the agent definition it
// applies to.
func (p *Publisher) PublishLesson(ctx context.Context, intent LessonIntent, pc Context) (*nostr.Event, error) {
	tags := nostr.Tags{{"title", intent.Title}}
	if intent.AgentDefinitionRef != "" {
		tags = append(tags, nostr.Tag{nostr.TagAddressable, intent.AgentDefinitionRef})
	}
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindLesson, intent.Content, tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}

// PublishInterventionReview asks a human to review an agent's action
// before it proceeds.
func (p *Publisher) PublishInterventionReview(ctx context.Context, intent InterventionReviewIntent, pc Context) (*nostr.Event, error) {
	tags := threadTags(pc.TriggeringEvent)
	tags = append(tags, nostr.Tag{nostr.TagStatus, "pending-review"})
	if intent.ToolName != "" {
		tags = append(tags, nostr.Tag{nostr.TagTool, intent.ToolName})
	}
	tags = applyCommonTags(tags, pc)

	ev, err := p.build(ctx, nostr.KindGenericText, intent.Content, tags)
	if err != nil {
		return nil, err
	}
	return ev, p.publish(ctx, ev)
}
