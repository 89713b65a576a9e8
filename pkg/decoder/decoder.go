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

// Package decoder classifies inbound signed events and extracts routing
// metadata. It never mutates engine state; pkg/coordinator acts on its
// output.
package decoder

import (
	"strconv"

	"github.com/tenex-chat/tenex/pkg/nostr"
)

// Classification is the decoder's output tag.
type Classification string

const (
	NeverRoute     Classification = "never_route"
	Project        Classification = "project"
	Lesson         Classification = "lesson"
	LessonComment  Classification = "lesson_comment"
	Conversation   Classification = "conversation"
	Boot           Classification = "boot"
	Unknown        Classification = "unknown"
)

// Decoded is the full result of classifying one event.
type Decoded struct {
	Classification Classification

	ReplyTarget     string
	ReplyIsRoot     bool
	MentionedPubkeys []string
	ReferencedArticle string // "<kind>:<pub>:<d>" from an "a" tag
	ToolTags        []string
	Phase           string
	Status          string

	// ProjectID is populated when Classification == Project.
	ProjectID string

	// LinkedAgentEventID is populated when Classification == Lesson: the
	// first e-tag, pointing at the agent definition this lesson concerns.
	LinkedAgentEventID string

	IsDelegationRequest    bool
	IsDelegationCompletion bool

	TraceContext    string
	TraceContextLLM string
}

// KnownAgent reports whether a pubkey is a registered agent; supplied by
// the caller (pkg/registry) so the decoder stays free of registry state.
type KnownAgent func(pubkey string) bool

// Decoder classifies inbound events per spec §4.1.
type Decoder struct {
	isKnownAgent KnownAgent
}

// New constructs a Decoder. isKnownAgent may be nil, in which case
// delegation-request detection never fires (every pubkey is "unknown").
func New(isKnownAgent KnownAgent) *Decoder {
	if isKnownAgent == nil {
		isKnownAgent = func(string) bool { return false }
	}
	return &Decoder{isKnownAgent: isKnownAgent}
}

// Decode classifies ev and extracts routing metadata, per the ordered
// rules in spec §4.1.
func (d *Decoder) Decode(ev *nostr.Event) Decoded {
	out := Decoded{
		MentionedPubkeys: ev.MentionedPubkeys(),
		Phase:            ev.Tags.Value(nostr.TagPhase),
		Status:           ev.Tags.Value(nostr.TagStatus),
		TraceContext:     ev.Tags.Value(nostr.TagTraceContext),
		TraceContextLLM:  ev.Tags.Value(nostr.TagTraceContextLLM),
	}
	for _, t := range ev.Tags.FindAll(nostr.TagTool) {
		out.ToolTags = append(out.ToolTags, t.Value())
	}
	out.ReplyTarget, out.ReplyIsRoot = ev.ReplyTarget()

	switch {
	case isNeverRoute(ev.Kind):
		out.Classification = NeverRoute
		return out

	case ev.Kind == nostr.KindProjectDefinition:
		out.Classification = Project
		dTag := ev.Tags.Value(nostr.TagD)
		out.ProjectID = nostr.ProjectID(ev.Kind, ev.Pubkey, dTag)
		return out

	case ev.Kind == nostr.KindLesson:
		out.Classification = Lesson
		if t, ok := ev.Tags.Find(nostr.TagReply); ok {
			out.LinkedAgentEventID = t.Value()
		}
		return out

	case isLessonComment(ev):
		out.Classification = LessonComment
		return out

	case ev.Kind == nostr.KindGenericText:
		out.Classification = Conversation
		out.IsDelegationCompletion = ev.IsDelegationCompletion()
		out.IsDelegationRequest = d.isDelegationRequest(ev)
		if t, ok := ev.Tags.Find(nostr.TagAddressable); ok {
			out.ReferencedArticle = t.Value()
		}
		return out

	default:
		out.Classification = Unknown
		return out
	}
}

func isNeverRoute(kind int) bool {
	switch kind {
	case nostr.KindProfileMetadata, nostr.KindContactList,
		nostr.KindProjectStatus, nostr.KindOperationsStatus:
		return true
	}
	return false
}

// isLessonComment reports whether ev is a comment (nostr.KindComment,
// kind 1112) whose uppercase K-tag equals the lesson kind.
func isLessonComment(ev *nostr.Event) bool {
	if ev.Kind != nostr.KindComment {
		return false
	}
	return ev.Tags.Value(nostr.TagReferencedKind) == strconv.Itoa(nostr.KindLesson)
}

// isDelegationRequest reports whether ev is a generic-text event authored
// by a known agent, p-tagging another known agent.
func (d *Decoder) isDelegationRequest(ev *nostr.Event) bool {
	if ev.Kind != nostr.KindGenericText {
		return false
	}
	if !d.isKnownAgent(ev.Pubkey) {
		return false
	}
	for _, p := range ev.MentionedPubkeys() {
		if d.isKnownAgent(p) {
			return true
		}
	}
	return false
}
