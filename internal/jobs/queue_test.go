package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessQueuePushPop(t *testing.T) {
	q := NewInProcessQueue(2)
	ctx := context.Background()

	_, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty queue pops nothing")

	require.NoError(t, q.Push(ctx, Job{Group: "recorders"}))

	job, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "recorders", job.Group)

	_, ok, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInProcessQueuePushBlocksUntilContextCancelled(t *testing.T) {
	q := NewInProcessQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Job{Group: "a"}))

	blockedCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Push(blockedCtx, Job{Group: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
