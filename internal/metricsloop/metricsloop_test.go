package metricsloop

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
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
	instances []model.CloudInstance
}

func (f *fakeCloud) Launch(context.Context, model.InstanceGroup, int) ([]model.CloudInstance, error) {
	return nil, nil
}
func (f *fakeCloud) Terminate(context.Context, model.InstanceGroup, string) error { return nil }
func (f *fakeCloud) Enumerate(context.Context, model.InstanceGroup) ([]model.CloudInstance, error) {
	return f.instances, nil
}

type harness struct {
	st       store.InstanceStore
	groups   *group.Manager
	tracker  *tracker.Tracker
	shutdown *shutdown.Manager
	reconf   *reconfigure.Manager
	clouds   map[string]cloud.Manager
	locks    lock.Manager
}

func newHarness(t *testing.T, cloudInstances []model.CloudInstance) *harness {
	t.Helper()
	st := store.NewLocalStore()
	auditLog := audit.New(st, time.Hour)
	groups := group.New(st)
	shutdownMgr := shutdown.New(st, auditLog, time.Hour)
	reconfMgr := reconfigure.New(st, auditLog, time.Hour)
	ttl := store.TTLConfig{IdleTTL: time.Hour, ProvisioningTTL: time.Hour, ShutdownStatusTTL: time.Hour}
	trk := tracker.New(st, shutdownMgr, reconfMgr, auditLog, ttl, time.Hour)

	require.NoError(t, groups.Upsert(context.Background(), model.InstanceGroup{
		Name: "recorders",
		Type: model.InstanceTypeRecorder,
		Cloud: "fake",
		ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 5, DesiredCount: 2},
	}))

	return &harness{
		st: st, groups: groups, tracker: trk, shutdown: shutdownMgr, reconf: reconfMgr,
		clouds: map[string]cloud.Manager{"fake": &fakeCloud{instances: cloudInstances}},
		locks:  lock.NewInProcessManager(lock.Config{GroupLockTTL: time.Hour, JobCreationLockTTL: time.Hour}),
	}
}

func TestMetricsLoopRefreshSetsGauges(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.tracker.Stats(ctx, model.StatsReport{
		InstanceID: "i-1", InstanceType: model.InstanceTypeRecorder,
		Instance: model.Metadata{Group: "recorders"},
		Stats:    map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, false))

	reg := prometheus.NewRegistry()
	exporter := promexport.New(reg)
	loop := New(h.groups, h.tracker, h.st, h.clouds, exporter, nil)

	require.NoError(t, loop.Refresh(ctx))

	assert.Equal(t, float64(1), testGaugeValue(t, exporter.GroupsManaged))
	assert.Equal(t, float64(2), testGaugeVecValue(t, exporter.DesiredCount, "recorders"))
	assert.Equal(t, float64(1), testGaugeVecValue(t, exporter.InstanceCount, "recorders"))
}

func TestSanityLoopCountsUntrackedCloudInstances(t *testing.T) {
	h := newHarness(t, []model.CloudInstance{
		{InstanceID: "i-1", CloudStatus: model.CloudStatusRunning},
		{InstanceID: "i-2", CloudStatus: model.CloudStatusRunning},
	})
	ctx := context.Background()

	require.NoError(t, h.tracker.Stats(ctx, model.StatsReport{
		InstanceID: "i-1", InstanceType: model.InstanceTypeRecorder,
		Instance: model.Metadata{Group: "recorders"},
		Stats:    map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, false))

	sanity := NewSanityLoop(h.groups, h.tracker, h.st, h.clouds, h.locks, time.Hour, nil)
	progressed, err := sanity.Process(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, progressed)

	val, ok, err := h.st.GetValue(ctx, store.UntrackedCountKey("recorders"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", val)
}

func TestGroupReportMergesTrackedAndUntrackedRows(t *testing.T) {
	h := newHarness(t, []model.CloudInstance{
		{InstanceID: "i-1", CloudStatus: model.CloudStatusRunning},
		{InstanceID: "ghost", CloudStatus: model.CloudStatusRunning},
	})
	ctx := context.Background()

	require.NoError(t, h.tracker.Stats(ctx, model.StatsReport{
		InstanceID: "i-1", InstanceType: model.InstanceTypeRecorder,
		Instance: model.Metadata{Group: "recorders"},
		Stats:    map[string]any{"busyStatus": "idle", "health": "healthy"},
	}, false))

	report := NewGroupReport(h.groups, h.tracker, h.shutdown, h.reconf, h.st, h.clouds)
	r, err := report.Generate(ctx, "recorders", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, r.UntrackedCount)
	assert.Equal(t, 1, r.AvailableCount)
	assert.Len(t, r.Rows, 2)
}

func TestGroupReportNotFound(t *testing.T) {
	h := newHarness(t, nil)
	report := NewGroupReport(h.groups, h.tracker, h.shutdown, h.reconf, h.st, h.clouds)
	_, err := report.Generate(context.Background(), "missing", nil)
	require.Error(t, err)
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func testGaugeVecValue(t *testing.T, v *prometheus.GaugeVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, v.WithLabelValues(label).Write(&m))
	return m.GetGauge().GetValue()
}
