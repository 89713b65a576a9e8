package messagebuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tenex-chat/tenex/pkg/store"
)

// GetDelegationMessages fetches the entry history of a delegation's child
// conversation, used to expand a direct-child delegation-marker into a
// synthetic transcript message.
type GetDelegationMessages func(delegationConversationID string) ([]store.Entry, error)

// Context is the per-call projection context (spec §4.8).
type Context struct {
	ViewingAgentPubkey string
	RALNumber          int
	ActiveRALs         map[int]bool
	IndexOffset        int
	TotalMessages      int
	ProjectRoot        string
	AgentPubkeys       map[string]bool
	ConversationID     string
	GetDelegationMessages GetDelegationMessages

	// Model selects the tiktoken encoding used for truncation decisions.
	// Defaults to gpt-4o when empty.
	Model string

	// RecentWindow is how many of the most recent messages are exempt
	// from tool-result truncation. Defaults to 10.
	RecentWindow int

	// TruncationTokenThreshold is the token count above which a
	// non-recent tool-result is replaced by a placeholder. Defaults to
	// 400.
	TruncationTokenThreshold int
}

const (
	defaultRecentWindow             = 10
	defaultTruncationTokenThreshold = 400
	orphanToolResultMessage         = "[Error: Tool execution was interrupted — result unavailable]"
)

type pendingCall struct {
	toolName    string
	insertIndex int
	input       any
}

// builderState carries the mutable machinery of a single Build call.
type builderState struct {
	ctx      Context
	counter  *TokenCounter
	images   *imageTracker
	reminders *reminderTracker

	output   []Message
	deferred []Message
	pending  map[string]*pendingCall
}

// Build projects entries into an ordered provider-ready message list for
// ctx.ViewingAgentPubkey. Pure function: identical inputs always produce
// byte-identical outputs (spec §8 determinism invariant).
func Build(entries []store.Entry, ctx Context) ([]Message, error) {
	if ctx.RecentWindow <= 0 {
		ctx.RecentWindow = defaultRecentWindow
	}
	if ctx.TruncationTokenThreshold <= 0 {
		ctx.TruncationTokenThreshold = defaultTruncationTokenThreshold
	}
	model := ctx.Model
	if model == "" {
		model = "gpt-4o"
	}
	counter, err := NewTokenCounter(model)
	if err != nil {
		return nil, fmt.Errorf("messagebuilder: init token counter: %w", err)
	}

	st := &builderState{
		ctx:       ctx,
		counter:   counter,
		images:    newImageTracker(),
		reminders: newReminderTracker(),
		pending:   make(map[string]*pendingCall),
	}

	visible := filterVisible(entries, ctx)
	visible = pruneSupersededCompletions(visible, ctx.ViewingAgentPubkey)
	lastUserImageIdx := lastUserTextWithImage(visible)

	for i, e := range visible {
		globalIndex := ctx.IndexOffset + i
		switch e.Type {
		case store.EntryToolCall:
			st.emitToolCall(e)
		case store.EntryToolResult:
			st.emitToolResult(e, globalIndex)
		case store.EntryText:
			msg := st.buildTextMessage(e, i == lastUserImageIdx)
			st.emitOrDefer(msg)
		case store.EntryDelegationMarker:
			msg, err := st.buildDelegationMessage(e)
			if err != nil {
				return nil, err
			}
			st.emitOrDefer(msg)
		}
	}

	st.finalizeOrphans()
	return st.output, nil
}

// filterVisible applies RAL visibility rules (spec §4.8 "RAL visibility").
func filterVisible(entries []store.Entry, ctx Context) []store.Entry {
	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if e.RAL == 0 {
			out = append(out, e)
			continue
		}
		if e.EffectiveSender() == ctx.ViewingAgentPubkey {
			if e.RAL == ctx.RALNumber {
				out = append(out, e)
				continue
			}
			if ctx.ActiveRALs[e.RAL] {
				continue // still-active other RAL: excluded
			}
			out = append(out, e) // completed RAL: included
			continue
		}
		// Other agent's entry carrying a RAL: only text entries survive.
		if e.Type == store.EntryText {
			out = append(out, e)
		}
	}
	return out
}

// pruneSupersededCompletions keeps only the latest delegation-completion
// text entry per (RAL, sender, first-recipient) group addressed to the
// viewer (spec §4.8 "delegation completion pruning").
func pruneSupersededCompletions(entries []store.Entry, viewer string) []store.Entry {
	type key struct {
		ral       int
		sender    string
		recipient string
	}
	lastIndex := make(map[key]int)
	for i, e := range entries {
		if !isCompletionForViewer(e, viewer) {
			continue
		}
		lastIndex[completionKey(e)] = i
	}

	out := make([]store.Entry, 0, len(entries))
	for i, e := range entries {
		if isCompletionForViewer(e, viewer) {
			k := completionKey(e)
			if lastIndex[k] != i {
				continue // superseded by a later entry with the same key
			}
		}
		out = append(out, e)
	}
	return out
}

func isCompletionForViewer(e store.Entry, viewer string) bool {
	if e.Type != store.EntryText || !e.IsDelegationCompletion {
		return false
	}
	return containsPubkey(e.TargetedPubkeys, viewer)
}

func completionKey(e store.Entry) string {
	recipient := ""
	if len(e.TargetedPubkeys) > 0 {
		recipient = e.TargetedPubkeys[0]
	}
	return fmt.Sprintf("%d:%s:%s", e.RAL, e.EffectiveSender(), recipient)
}

func containsPubkey(list []string, pubkey string) bool {
	for _, p := range list {
		if p == pubkey {
			return true
		}
	}
	return false
}

// lastUserTextWithImage returns the index of the last user-authored text
// entry containing an image URL, or -1 if none.
func lastUserTextWithImage(entries []store.Entry) int {
	last := -1
	for i, e := range entries {
		if e.Type != store.EntryText || e.Role != "" {
			continue
		}
		if len(findImageURLs(e.Content)) == 0 {
			continue
		}
		last = i
	}
	return last
}

// emitOrDefer appends msg directly to output, or to the deferred buffer
// when a tool-call is still awaiting its result (spec §4.8 adjacency).
func (st *builderState) emitOrDefer(msg Message) {
	if len(st.pending) > 0 {
		st.deferred = append(st.deferred, msg)
		return
	}
	st.output = append(st.output, msg)
}

func (st *builderState) emitToolCall(e store.Entry) {
	var calls []ToolCall
	for _, part := range e.ToolCalls {
		calls = append(calls, ToolCall{ID: part.ToolCallID, Name: part.ToolName, Input: part.Input})
	}
	st.output = append(st.output, Message{Role: RoleAssistant, ToolCalls: calls})
	insertAt := len(st.output)
	for _, part := range e.ToolCalls {
		st.pending[part.ToolCallID] = &pendingCall{toolName: part.ToolName, insertIndex: insertAt, input: part.Input}
	}
}

func (st *builderState) emitToolResult(e store.Entry, globalIndex int) {
	for _, part := range e.ToolResults {
		output := part.Output

		truncated := st.maybeTruncate(e, output, globalIndex)
		if !truncated {
			if isFileReadTool(part.ToolName) {
				if path, ok := extractPathArg(firstInputFor(st.pending, part.ToolCallID)); ok {
					contents := st.reminders.collectReminders(st.ctx.ProjectRoot, path)
					output = appendSystemReminder(output, contents)
				}
			}
			output = st.images.collapseToolResultImages(output, part.ToolName, e.EventID)
		} else {
			output = truncationPlaceholder(e.EventID)
		}

		st.output = append(st.output, Message{Role: RoleTool, ToolCallID: part.ToolCallID, Content: output})
		delete(st.pending, part.ToolCallID)
	}

	if len(st.pending) == 0 {
		st.output = append(st.output, st.deferred...)
		st.deferred = nil
	}
}

func firstInputFor(pending map[string]*pendingCall, toolCallID string) any {
	if pc, ok := pending[toolCallID]; ok {
		return pc.input
	}
	return nil
}

// maybeTruncate reports whether output should be replaced by a
// placeholder: not among the most recent window and over the token
// threshold. Injection of system reminders is skipped for truncated
// results since the reminder would be lost (spec §4.8).
func (st *builderState) maybeTruncate(e store.Entry, output string, globalIndex int) bool {
	isRecent := st.ctx.TotalMessages > 0 && globalIndex >= st.ctx.TotalMessages-st.ctx.RecentWindow
	if isRecent {
		return false
	}
	return st.counter.Count(output) > st.ctx.TruncationTokenThreshold
}

func truncationPlaceholder(eventID string) string {
	return fmt.Sprintf("[Tool result truncated — see event %s]", eventID)
}

func (st *builderState) buildTextMessage(e store.Entry, isLastUserImageEntry bool) Message {
	role := deriveRole(e, st.ctx)
	content := e.Content
	prefix := attributionPrefix(e, st.ctx)

	if role == RoleUser && e.Role == "" {
		if isLastUserImageEntry {
			urls := findImageURLs(content)
			st.images.markSeenOnly(content)
			var images []ImagePart
			for _, u := range urls {
				images = append(images, ImagePart{URL: u})
			}
			return Message{Role: role, Content: prefix + content, Images: images}
		}
		st.images.markSeenOnly(content)
	}

	return Message{Role: role, Content: prefix + content}
}

// deriveRole implements spec §4.8 "Role derivation".
func deriveRole(e store.Entry, ctx Context) string {
	if e.Role != "" {
		return e.Role
	}
	if e.EffectiveSender() == ctx.ViewingAgentPubkey {
		return RoleAssistant
	}
	return RoleUser
}

// attributionPrefix implements spec §4.8 "Attribution prefix".
func attributionPrefix(e store.Entry, ctx Context) string {
	sender := e.EffectiveSender()
	if sender == ctx.ViewingAgentPubkey {
		return ""
	}
	if e.Role != "" {
		return ""
	}
	if len(e.TargetedPubkeys) > 0 && !containsPubkey(e.TargetedPubkeys, ctx.ViewingAgentPubkey) {
		return fmt.Sprintf("[@%s -> @%s] ", sender, e.TargetedPubkeys[0])
	}
	if ctx.AgentPubkeys != nil && ctx.AgentPubkeys[sender] {
		return fmt.Sprintf("[@%s] ", sender)
	}
	return ""
}

func (st *builderState) buildDelegationMessage(e store.Entry) (Message, error) {
	status := string(e.Status)
	if e.ParentConversationID == st.ctx.ConversationID {
		return st.buildDirectChildDelegationMessage(e, status)
	}
	return st.buildNestedDelegationReference(e, status), nil
}

func (st *builderState) buildDirectChildDelegationMessage(e store.Entry, status string) (Message, error) {
	var title string
	switch e.Status {
	case store.DelegationCompleted:
		title = "# DELEGATION COMPLETED"
	case store.DelegationAborted:
		title = "# DELEGATION ABORTED"
		if e.AbortReason != "" {
			title += ": " + e.AbortReason
		}
	default:
		title = "# DELEGATION IN PROGRESS"
	}

	var body string
	if st.ctx.GetDelegationMessages != nil {
		transcript, err := st.ctx.GetDelegationMessages(e.DelegationConversationID)
		if err != nil {
			return Message{}, fmt.Errorf("messagebuilder: fetch delegation transcript: %w", err)
		}
		var lines []string
		for _, te := range transcript {
			if te.Type != store.EntryText || len(te.TargetedPubkeys) == 0 {
				continue
			}
			lines = append(lines, fmt.Sprintf("[@%s -> @%s]: %s", te.EffectiveSender(), te.TargetedPubkeys[0], te.Content))
		}
		body = strings.Join(lines, "\n")
	}

	content := title
	if body != "" {
		content = title + "\n" + body
	}
	return Message{Role: RoleUser, Content: content}, nil
}

func (st *builderState) buildNestedDelegationReference(e store.Entry, status string) Message {
	short := e.DelegationConversationID
	if len(short) > 12 {
		short = short[:12]
	}
	line := fmt.Sprintf("[Delegation to @%s (conv: %s…) - %s", e.RecipientPubkey, short, status)
	if e.Status == store.DelegationAborted && e.AbortReason != "" {
		line += ": " + e.AbortReason
	}
	line += "]"
	return Message{Role: RoleUser, Content: line}
}

// finalizeOrphans inserts a synthetic tool-result for every still-pending
// tool-call, highest insertion index first so earlier insertions don't
// shift later ones, then flushes any remaining deferred messages.
func (st *builderState) finalizeOrphans() {
	if len(st.pending) == 0 {
		st.output = append(st.output, st.deferred...)
		st.deferred = nil
		return
	}

	type orphan struct {
		toolCallID string
		call       *pendingCall
	}
	var orphans []orphan
	for id, call := range st.pending {
		orphans = append(orphans, orphan{toolCallID: id, call: call})
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].call.insertIndex != orphans[j].call.insertIndex {
			return orphans[i].call.insertIndex > orphans[j].call.insertIndex
		}
		return orphans[i].toolCallID > orphans[j].toolCallID
	})

	for _, o := range orphans {
		msg := Message{Role: RoleTool, ToolCallID: o.toolCallID, Content: orphanToolResultMessage}
		idx := o.call.insertIndex
		if idx > len(st.output) {
			idx = len(st.output)
		}
		st.output = append(st.output, Message{})
		copy(st.output[idx+1:], st.output[idx:])
		st.output[idx] = msg
	}
	st.pending = make(map[string]*pendingCall)

	st.output = append(st.output, st.deferred...)
	st.deferred = nil
}
