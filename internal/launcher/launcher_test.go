package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/cloud"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/promexport"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

type fakeCloud struct {
	launchCount int
	launched    []model.CloudInstance
	launchErr   error
}

func (f *fakeCloud) Launch(_ context.Context, _ model.InstanceGroup, count int) ([]model.CloudInstance, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launchCount = count
	out := make([]model.CloudInstance, 0, count)
	for i := 0; i < count; i++ {
		id := "new-" + string(rune('a'+i))
		out = append(out, model.CloudInstance{InstanceID: id, CloudStatus: model.CloudStatusProvisioning})
	}
	f.launched = out
	return out, nil
}

func (f *fakeCloud) Terminate(context.Context, model.InstanceGroup, string) error { return nil }

func (f *fakeCloud) Enumerate(context.Context, model.InstanceGroup) ([]model.CloudInstance, error) {
	return nil, nil
}

func newTestLauncher(t *testing.T, clouds map[string]cloud.Manager, cfg Config) (*Launcher, store.InstanceStore, *group.Manager, *tracker.Tracker) {
	t.Helper()
	st := store.NewLocalStore()
	auditLog := audit.New(st, time.Hour)
	groups := group.New(st)
	shutdownMgr := shutdown.New(st, auditLog, time.Hour)
	reconfMgr := reconfigure.New(st, auditLog, time.Hour)
	ttl := store.TTLConfig{IdleTTL: time.Hour, ProvisioningTTL: time.Hour, ShutdownStatusTTL: time.Hour}
	trk := tracker.New(st, shutdownMgr, reconfMgr, auditLog, ttl, time.Hour)
	locks := lock.NewInProcessManager(lock.Config{GroupLockTTL: time.Minute})
	exporter := promexport.New(prometheus.NewRegistry())
	return New(groups, trk, auditLog, shutdownMgr, st, locks, clouds, exporter, cfg, nil), st, groups, trk
}

func launcherBaseGroup() model.InstanceGroup {
	return model.InstanceGroup{
		Name:         "recorders",
		Type:         model.InstanceTypeRecorder,
		Cloud:        "aws",
		EnableLaunch: true,
		ScalingOptions: model.ScalingOptions{
			MinDesired: 1, MaxDesired: 5, DesiredCount: 3,
		},
	}
}

func TestProcessLaunchesUpToDesired(t *testing.T) {
	fc := &fakeCloud{}
	l, _, groups, _ := newTestLauncher(t, map[string]cloud.Manager{"aws": fc}, Config{MaxThrottleThreshold: 10})
	ctx := context.Background()

	g := launcherBaseGroup()
	require.NoError(t, groups.Upsert(ctx, g))

	progressed, err := l.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, progressed)
	assert.Equal(t, 3, fc.launchCount)
}

func TestProcessDisabledGroupIsNoop(t *testing.T) {
	fc := &fakeCloud{}
	l, _, groups, _ := newTestLauncher(t, map[string]cloud.Manager{"aws": fc}, Config{MaxThrottleThreshold: 10})
	ctx := context.Background()

	g := launcherBaseGroup()
	g.EnableLaunch = false
	require.NoError(t, groups.Upsert(ctx, g))

	progressed, err := l.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.False(t, progressed)
	assert.Equal(t, 0, fc.launchCount)
}

func TestProcessScalesDownMarksShutdownIntent(t *testing.T) {
	fc := &fakeCloud{}
	l, st, groups, trk := newTestLauncher(t, map[string]cloud.Manager{"aws": fc}, Config{MaxThrottleThreshold: 10})
	ctx := context.Background()

	g := launcherBaseGroup()
	g.ScalingOptions.DesiredCount = 1
	require.NoError(t, groups.Upsert(ctx, g))

	for _, id := range []string{"i-1", "i-2", "i-3"} {
		require.NoError(t, trk.Stats(ctx, model.StatsReport{
			InstanceID:   id,
			InstanceType: model.InstanceTypeRecorder,
			Instance:     model.Metadata{Group: "recorders"},
			Stats:        map[string]any{"busyStatus": "idle", "health": "healthy"},
		}, false))
	}

	progressed, err := l.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, progressed)

	marked := 0
	for _, id := range []string{"i-1", "i-2", "i-3"} {
		ok, err := st.GetShutdownStatus(ctx, id)
		require.NoError(t, err)
		if ok {
			marked++
		}
	}
	assert.Equal(t, 2, marked)
}

func TestProcessUntrackedThrottleRefusesLaunch(t *testing.T) {
	fc := &fakeCloud{}
	l, st, groups, _ := newTestLauncher(t, map[string]cloud.Manager{"aws": fc}, Config{MaxThrottleThreshold: 2})
	ctx := context.Background()

	g := launcherBaseGroup()
	g.EnableUntrackedThrottle = true
	require.NoError(t, groups.Upsert(ctx, g))
	require.NoError(t, st.SetValue(ctx, store.UntrackedCountKey("recorders"), "5", time.Hour))

	_, err := l.Process(ctx, "recorders")
	require.Error(t, err)
	assert.Equal(t, 0, fc.launchCount)
}

func TestProcessNotFoundGroup(t *testing.T) {
	l, _, _, _ := newTestLauncher(t, map[string]cloud.Manager{}, Config{MaxThrottleThreshold: 10})
	_, err := l.Process(context.Background(), "missing")
	require.Error(t, err)
}
