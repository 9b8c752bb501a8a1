package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keeldb/keel/pkg/metrics"
)

// QueueOrchestrate carries per-cluster orchestration requests.
const QueueOrchestrate = "orchestrate"

// OrchestratePayload is the payload of tasks on QueueOrchestrate.
type OrchestratePayload struct {
	NsID      string `json:"ns_id"`
	ClusterID string `json:"cluster_id"`
	Mode      string `json:"mode"`
}

// Task is one unit of queued background work.
type Task struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// queueBackend abstracts the list operations the queue needs, so tests can
// substitute an in-memory fake for Redis.
type queueBackend interface {
	Push(ctx context.Context, queue string, data []byte) error
	// Pop blocks up to timeout; it returns nil data when nothing arrived.
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// Queue submits and consumes background tasks over shared Redis lists,
// distributing work across all control-plane processes.
type Queue struct {
	backend queueBackend
}

// NewQueue creates a task queue on an established Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{backend: &redisQueue{client: client}}
}

// Submit enqueues a task carrying the given payload.
func (q *Queue) Submit(ctx context.Context, queue string, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}
	task := Task{
		ID:          uuid.New().String(),
		Queue:       queue,
		Payload:     encoded,
		SubmittedAt: time.Now(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := q.backend.Push(ctx, queue, data); err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}
	metrics.TasksSubmittedTotal.WithLabelValues(queue).Inc()
	return nil
}

// receive waits up to timeout for the next task on a queue.
func (q *Queue) receive(ctx context.Context, queue string, timeout time.Duration) (*Task, error) {
	data, err := q.backend.Pop(ctx, queue, timeout)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// redisQueue implements queueBackend on go-redis lists.
type redisQueue struct {
	client *redis.Client
}

func (r *redisQueue) Push(ctx context.Context, queue string, data []byte) error {
	return r.client.LPush(ctx, "keel:queue:"+queue, data).Err()
}

func (r *redisQueue) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := r.client.BRPop(ctx, timeout, "keel:queue:"+queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	return []byte(result[1]), nil
}
