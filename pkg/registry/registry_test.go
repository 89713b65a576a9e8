package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveProjectExplicitWins(t *testing.T) {
	r := New()
	r.RegisterProject("proj-a")
	id, ambiguous := r.ResolveProject(nil, "proj-explicit")
	assert.Equal(t, "proj-explicit", id)
	assert.False(t, ambiguous)
}

func TestResolveProjectAmbientContext(t *testing.T) {
	r := New()
	r.RegisterProject("proj-a")
	ctx := WithProject(context.Background(), "proj-ambient")
	id, ambiguous := r.ResolveProject(FromContext(ctx), "")
	assert.Equal(t, "proj-ambient", id)
	assert.False(t, ambiguous)
}

func TestResolveProjectLegacyFallbackWarnsOnMultiple(t *testing.T) {
	r := New()
	r.RegisterProject("proj-a")
	r.RegisterProject("proj-b")
	id, ambiguous := r.ResolveProject(nil, "")
	assert.Equal(t, "proj-b", id)
	assert.True(t, ambiguous)
}

func TestResolveShortIDSingleMatch(t *testing.T) {
	r := New()
	full := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef01234567"
	r.RegisterConversation(full, "proj-a")
	got, err := r.ResolveShortIDWith(full[:12], nil)
	require.NoError(t, err)
	assert.Equal(t, full, got)
}

func TestResolveShortIDAmbiguousWithoutDisambiguator(t *testing.T) {
	r := New()
	r.RegisterConversation("aaaa0000000000000000000000000000000000000000000000000000000001", "proj-a")
	r.RegisterConversation("aaaa0000000000000000000000000000000000000000000000000000000002", "proj-a")
	_, err := r.ResolveShortIDWith("aaaa0000", nil)
	assert.Error(t, err)
}

func TestResolveShortIDAmbiguousWithDisambiguator(t *testing.T) {
	r := New()
	r.RegisterConversation("aaaa0000000000000000000000000000000000000000000000000000000001", "proj-a")
	r.RegisterConversation("aaaa0000000000000000000000000000000000000000000000000000000002", "proj-a")
	got, err := r.ResolveShortIDWith("aaaa0000", func(prefix string, matches []string) (string, error) {
		return matches[len(matches)-1], nil
	})
	require.NoError(t, err)
	assert.Equal(t, "aaaa0000000000000000000000000000000000000000000000000000000002", got)
}

func TestMostRecentlyTouchedPicksLatestTouch(t *testing.T) {
	r := New()
	older := "aaaa0000000000000000000000000000000000000000000000000000000001"
	newer := "aaaa0000000000000000000000000000000000000000000000000000000002"
	r.RegisterConversation(older, "proj-a")
	r.RegisterConversation(newer, "proj-a")

	time.Sleep(time.Millisecond)
	r.Touch(older)

	got, err := r.ResolveShortIDWith("aaaa0000", MostRecentlyTouched(r))
	require.NoError(t, err)
	assert.Equal(t, older, got)
}

func TestIsAgent(t *testing.T) {
	r := New()
	r.RegisterAgent("pub1")
	assert.True(t, r.IsAgent("pub1"))
	assert.False(t, r.IsAgent("pub2"))
}
