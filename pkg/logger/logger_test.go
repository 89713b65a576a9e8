package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSimpleTextHandlerWritesLevelAndMessage(t *testing.T) {
	var buf bytes.Buffer
	h := &simpleTextHandler{handler: slog.NewTextHandler(&buf, nil), writer: &buf}
	l := slog.New(h)

	l.Info("conversation loaded", "conversation_id", "conv-1")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "conversation loaded")
	assert.Contains(t, out, "conversation_id=conv-1")
}

func TestWithConversationAttributesEveryLogLine(t *testing.T) {
	var buf bytes.Buffer
	defaultLogger = slog.New(&simpleTextHandler{handler: slog.NewTextHandler(&buf, nil), writer: &buf})

	ctx := WithConversation(context.Background(), "conv-42", "abc123", 3)
	FromContext(ctx).Warn("retrying delivery")

	out := buf.String()
	assert.True(t, strings.Contains(out, "conversation_id=conv-42"))
	assert.True(t, strings.Contains(out, "agent_pubkey=abc123"))
	assert.True(t, strings.Contains(out, "ral=3"))
}

func TestFromContextFallsBackToDefaultLogger(t *testing.T) {
	defaultLogger = nil
	l := FromContext(context.Background())
	assert.NotNil(t, l)
}
