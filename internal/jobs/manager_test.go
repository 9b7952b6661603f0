package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *group.Manager) {
	t.Helper()

	st := store.NewLocalStore()
	groups := group.New(st)
	require.NoError(t, groups.Upsert(context.Background(), model.InstanceGroup{
		Name: "recorders",
		Type: model.InstanceTypeRecorder,
	}))

	locks := lock.NewInProcessManager(lock.Config{GroupLockTTL: time.Minute, JobCreationLockTTL: time.Minute})
	m := New(groups, locks, NewInProcessQueue(8), NewInProcessQueue(8), NewInProcessQueue(8), nil)
	return m, groups
}

func TestProducePushesOneAutoscalerAndOneLauncherJobPerGroup(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Produce(ctx, time.Hour))

	job, ok, err := m.Autoscaler.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "recorders", job.Group)

	job, ok, err = m.Launcher.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "recorders", job.Group)
}

func TestProduceIsGatedByGracePeriodAfterFirstPass(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Produce(ctx, time.Hour))
	// drain what the first pass produced
	_, _, _ = m.Autoscaler.Pop(ctx)
	_, _, _ = m.Launcher.Pop(ctx)

	require.NoError(t, m.Produce(ctx, time.Hour))

	_, ok, err := m.Autoscaler.Pop(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second pass within the grace period must not produce more jobs")
}

func TestProduceWithZeroGracePeriodStaysRepeatable(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Produce(ctx, 0))

		_, ok, err := m.Autoscaler.Pop(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "a zero grace period must never permanently close the gate (pass %d)", i)
		_, _, _ = m.Launcher.Pop(ctx)
	}
}

func TestProduceSanityPushesOneJobPerGroup(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ProduceSanity(ctx, time.Hour))

	job, ok, err := m.Sanity.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "recorders", job.Group)
}

func TestConsumeRunsHandlerAndDropsOnTimeout(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Autoscaler.Push(ctx, Job{Group: "recorders"}))

	err := m.Consume(ctx, m.Autoscaler, 20*time.Millisecond, func(jobCtx context.Context, g string) (bool, error) {
		<-jobCtx.Done()
		return false, jobCtx.Err()
	})
	require.NoError(t, err, "a stalled job is logged and dropped, never propagated as an error")
}

func TestConsumeOnEmptyQueueIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	called := false
	err := m.Consume(ctx, m.Autoscaler, time.Second, func(context.Context, string) (bool, error) {
		called = true
		return true, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
