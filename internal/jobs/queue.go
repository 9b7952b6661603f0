// Package jobs implements the JobManager of spec.md §4.10: three logical
// queues (autoscaler, launcher, sanity) carrying one job per group, a
// single-producer fan-out, and per-group-serialized consumption.
package jobs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Job is the payload every queue carries: the name of the group to act on.
type Job struct {
	Group string
}

// Queue is the contract both profiles satisfy: push one job, pop one job
// without blocking past the caller's context deadline. Pop returns
// ok=false (not an error) when the queue is empty.
type Queue interface {
	Push(ctx context.Context, job Job) error
	Pop(ctx context.Context) (Job, bool, error)
}

// InProcessQueue is the single-replica profile: a buffered channel.
// Deliberately stdlib-only -- a single process has no need for a
// network-visible queue (see DESIGN.md).
type InProcessQueue struct {
	ch chan Job
}

// NewInProcessQueue builds an in-process FIFO with room for capacity
// pending jobs; Push blocks (subject to ctx) once full, which in practice
// only happens if the consumer side is stuck, matching the "stalled jobs
// are reported, not re-driven" rule by backing up visibly.
func NewInProcessQueue(capacity int) *InProcessQueue {
	return &InProcessQueue{ch: make(chan Job, capacity)}
}

func (q *InProcessQueue) Push(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InProcessQueue) Pop(_ context.Context) (Job, bool, error) {
	select {
	case job := <-q.ch:
		return job, true, nil
	default:
		return Job{}, false, nil
	}
}

// RedisQueue is the shared, multi-replica profile: a Redis list used as a
// FIFO via LPUSH/RPOP, so every replica's consumer competes for the same
// jobs.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a Redis-list-backed queue named name.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, key: fmt.Sprintf("jobs:%s", name)}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	return q.client.LPush(ctx, q.key, job.Group).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, bool, error) {
	group, err := q.client.RPop(ctx, q.key).Result()
	if err == redis.Nil {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return Job{Group: group}, true, nil
}
