package autoscaler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

func newTestProcessor(t *testing.T) (*Processor, store.InstanceStore, *group.Manager, *tracker.Tracker) {
	t.Helper()
	st := store.NewLocalStore()
	auditLog := audit.New(st, time.Hour)
	groups := group.New(st)
	shutdownMgr := shutdown.New(st, auditLog, time.Hour)
	reconfMgr := reconfigure.New(st, auditLog, time.Hour)
	ttl := store.TTLConfig{IdleTTL: time.Hour, ProvisioningTTL: time.Hour, ShutdownStatusTTL: time.Hour}
	trk := tracker.New(st, shutdownMgr, reconfMgr, auditLog, ttl, time.Hour)
	locks := lock.NewInProcessManager(lock.Config{GroupLockTTL: time.Minute})
	return New(groups, trk, auditLog, locks, nil), st, groups, trk
}

func seedRecorders(t *testing.T, st store.InstanceStore, trk *tracker.Tracker, count int, idle bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		id := "r-" + string(rune('a'+i))
		status := map[string]any{"busyStatus": "busy", "health": "healthy"}
		if idle {
			status = map[string]any{"busyStatus": "idle", "health": "healthy"}
		}
		require.NoError(t, trk.Stats(ctx, model.StatsReport{
			InstanceID:   id,
			InstanceType: model.InstanceTypeRecorder,
			Instance:     model.Metadata{Group: "recorders"},
			Stats:        status,
		}, false))
	}
	_ = st
}

func baseGroup() model.InstanceGroup {
	return model.InstanceGroup{
		Name:             "recorders",
		Type:             model.InstanceTypeRecorder,
		EnableAutoScale:  true,
		GracePeriodTTLSec: 60,
		ScalingOptions: model.ScalingOptions{
			MinDesired: 1, MaxDesired: 5, DesiredCount: 2,
			ScaleUpQuantity: 1, ScaleDownQuantity: 1,
			ScaleUpThreshold: 2, ScaleDownThreshold: 1,
			ScalePeriod: 60, ScaleUpPeriodsCount: 1, ScaleDownPeriodsCount: 1,
		},
	}
}

func TestProcessScalesUpWhenIdleBelowThreshold(t *testing.T) {
	p, st, groups, trk := newTestProcessor(t)
	ctx := context.Background()

	g := baseGroup()
	require.NoError(t, groups.Upsert(ctx, g))
	seedRecorders(t, st, trk, 2, false)

	progressed, err := p.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, progressed)

	stored, err := groups.Get(ctx, "recorders")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ScalingOptions.DesiredCount)
}

func TestProcessDisabledGroupIsNoop(t *testing.T) {
	p, st, groups, trk := newTestProcessor(t)
	ctx := context.Background()

	g := baseGroup()
	g.EnableAutoScale = false
	require.NoError(t, groups.Upsert(ctx, g))
	seedRecorders(t, st, trk, 2, true)

	progressed, err := p.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.False(t, progressed)

	stored, err := groups.Get(ctx, "recorders")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ScalingOptions.DesiredCount)
}

func TestProcessWaitsForLauncherWhenCountMismatchesDesired(t *testing.T) {
	p, st, groups, trk := newTestProcessor(t)
	ctx := context.Background()

	g := baseGroup()
	g.ScalingOptions.DesiredCount = 5
	require.NoError(t, groups.Upsert(ctx, g))
	seedRecorders(t, st, trk, 2, true)

	progressed, err := p.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, progressed)

	stored, err := groups.Get(ctx, "recorders")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ScalingOptions.DesiredCount)
}

func TestProcessNotFoundGroup(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	_, err := p.Process(context.Background(), "missing")
	require.Error(t, err)
}
