package jobs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TaskPurge = "purge"
	TaskSweep = "sweep"
)

// Task is a maintenance message on the jobs stream. Key is set for purge tasks.
type Task struct {
	Type string
	Key  string
}

func (t Task) values() map[string]any {
	values := map[string]any{"type": t.Type}
	if t.Key != "" {
		values["key"] = t.Key
	}
	return values
}

// Queue publishes maintenance tasks to a Redis stream consumed by the worker.
type Queue struct {
	client *redis.Client
	stream string
}

func NewQueue(client *redis.Client, stream string) *Queue {
	return &Queue{client: client, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	if q == nil || q.client == nil {
		return nil
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: task.values(),
	}).Result(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return nil
}

// EnqueuePurge asks the worker to remove an object that could not be removed inline.
func (q *Queue) EnqueuePurge(ctx context.Context, key string) error {
	return q.Enqueue(ctx, Task{Type: TaskPurge, Key: key})
}
