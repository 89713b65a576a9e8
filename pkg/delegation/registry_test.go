package delegation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginStartsPending(t *testing.T) {
	r := New()
	rec := r.Begin("req1", "pm", "parent1", "child1", []string{"dev"})
	assert.Equal(t, Pending, rec.Status)
}

func TestRecordCompletionOrphanWarns(t *testing.T) {
	r := New()
	result := r.RecordCompletion("missing-req", "dev", "resp1")
	assert.True(t, result.Orphan)
}

func TestRecordCompletionSingleRecipientCompletes(t *testing.T) {
	r := New()
	r.Begin("req1", "pm", "parent1", "child1", []string{"dev"})
	result := r.RecordCompletion("req1", "dev", "resp1")
	assert.False(t, result.Orphan)
	assert.True(t, result.AllResponded)
	assert.Equal(t, Completed, result.Record.Status)
}

func TestRecordCompletionBlocksUntilAllRespond(t *testing.T) {
	r := New()
	r.Begin("req1", "pm", "parent1", "child1", []string{"dev", "qa"})

	result := r.RecordCompletion("req1", "dev", "resp1")
	assert.False(t, result.AllResponded)
	assert.Equal(t, Pending, result.Record.Status)

	result = r.RecordCompletion("req1", "qa", "resp2")
	assert.True(t, result.AllResponded)
	assert.Equal(t, Completed, result.Record.Status)
}

func TestPendingForReturnsOnlyPending(t *testing.T) {
	r := New()
	r.Begin("req1", "pm", "parent1", "child1", []string{"dev"})
	r.Begin("req2", "pm", "parent1", "child2", []string{"qa"})
	r.RecordCompletion("req1", "dev", "resp1")

	pending := r.PendingFor("pm")
	assert.Len(t, pending, 1)
	assert.Equal(t, "req2", pending[0].DelegationEventID)
}
