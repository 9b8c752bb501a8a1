package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/types"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// memoryQueue is an in-process queueBackend.
type memoryQueue struct {
	mu    sync.Mutex
	lists map[string][][]byte
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{lists: make(map[string][][]byte)}
}

func (m *memoryQueue) Push(ctx context.Context, queue string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[queue] = append(m.lists[queue], data)
	return nil
}

func (m *memoryQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[queue]
	if len(list) == 0 {
		return nil, nil
	}
	data := list[0]
	m.lists[queue] = list[1:]
	return data, nil
}

func TestSubmitAndReceiveRoundTrip(t *testing.T) {
	backend := newMemoryQueue()
	queue := &Queue{backend: backend}
	ctx := context.Background()

	payload := OrchestratePayload{NsID: "prod", ClusterID: "orders-db", Mode: types.OrchestrateModePeriodic}
	require.NoError(t, queue.Submit(ctx, QueueOrchestrate, payload))

	task, err := queue.receive(ctx, QueueOrchestrate, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, QueueOrchestrate, task.Queue)

	var got OrchestratePayload
	require.NoError(t, json.Unmarshal(task.Payload, &got))
	assert.Equal(t, payload, got)
}

func TestReceiveEmptyReturnsNil(t *testing.T) {
	queue := &Queue{backend: newMemoryQueue()}

	task, err := queue.receive(context.Background(), QueueOrchestrate, time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestQueueIsFIFO(t *testing.T) {
	queue := &Queue{backend: newMemoryQueue()}
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Submit(ctx, QueueOrchestrate, OrchestratePayload{ClusterID: id}))
	}

	for _, want := range []string{"a", "b", "c"} {
		task, err := queue.receive(ctx, QueueOrchestrate, time.Second)
		require.NoError(t, err)
		require.NotNil(t, task)

		var payload OrchestratePayload
		require.NoError(t, json.Unmarshal(task.Payload, &payload))
		assert.Equal(t, want, payload.ClusterID)
	}
}

func TestWorkerExecutesTasks(t *testing.T) {
	queue := &Queue{backend: newMemoryQueue()}
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	handler := func(ctx context.Context, task *Task) error {
		var payload OrchestratePayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, payload.ClusterID)
		mu.Unlock()
		return nil
	}

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Submit(ctx, QueueOrchestrate, OrchestratePayload{ClusterID: id}))
	}

	worker := NewWorker(queue, QueueOrchestrate, 2, handler, testLogger())
	worker.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 5*time.Second, 10*time.Millisecond)

	worker.Stop()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
}
