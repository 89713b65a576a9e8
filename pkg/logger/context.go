// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const loggerContextKey contextKey = "tenex_logger"

// WithConversation returns a context carrying a logger pre-populated with
// the conversation id, agent pubkey, and run-attempt-loop number, so every
// log line emitted while handling one event is already attributed without
// each call site repeating them.
func WithConversation(ctx context.Context, conversationID, agentPubkey string, ral int) context.Context {
	l := GetLogger().With(
		"conversation_id", conversationID,
		"agent_pubkey", agentPubkey,
		"ral", ral,
	)
	return context.WithValue(ctx, loggerContextKey, l)
}

// FromContext returns the logger attached by WithConversation, or the
// package default logger if ctx carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return l
	}
	return GetLogger()
}
