package execqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestExecutionGrantsWhenFree(t *testing.T) {
	q := New(time.Minute)
	grant := q.RequestExecution("conv1", "agentA")
	assert.True(t, grant.Granted)
}

func TestRequestExecutionQueuesWhenHeld(t *testing.T) {
	q := New(time.Minute)
	require.True(t, q.RequestExecution("conv1", "agentA").Granted)

	grant := q.RequestExecution("conv1", "agentB")
	assert.False(t, grant.Granted)
	assert.Equal(t, 1, grant.QueuePosition)
}

func TestReleaseExecutionGrantsNextWaiter(t *testing.T) {
	q := New(time.Minute)
	var events []Event
	q.OnEvent(func(e Event) { events = append(events, e) })

	q.RequestExecution("conv1", "agentA")
	q.RequestExecution("conv1", "agentB")

	q.ReleaseExecution("conv1", "done")

	status := q.GetStatus("conv1")
	assert.True(t, status.Locked)
	assert.Equal(t, "agentB", status.LockedBy)

	var sawAcquiredB bool
	for _, e := range events {
		if e.Type == "lock-acquired" && e.AgentPubkey == "agentB" {
			sawAcquiredB = true
		}
	}
	assert.True(t, sawAcquiredB)
}

func TestGetQueuePositionZeroWhenNotQueued(t *testing.T) {
	q := New(time.Minute)
	assert.Equal(t, 0, q.GetQueuePosition("unknown"))
}

func TestRemoveFromQueue(t *testing.T) {
	q := New(time.Minute)
	q.RequestExecution("conv1", "agentA")
	q.RequestExecution("conv1", "agentB")
	q.RemoveFromQueue("conv1")
	assert.Equal(t, 0, q.GetQueuePosition("conv1"))
}
