package group

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

func TestUpsertClampsDesiredCount(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	g := model.InstanceGroup{
		Name: "recorders",
		Type: model.InstanceTypeRecorder,
		ScalingOptions: model.ScalingOptions{
			MinDesired: 2, MaxDesired: 10, DesiredCount: 100,
		},
	}
	require.NoError(t, m.Upsert(ctx, g))

	stored, err := m.Get(ctx, "recorders")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 10, stored.ScalingOptions.DesiredCount)
}

func TestSetDesiredNotFound(t *testing.T) {
	m := New(store.NewLocalStore())
	_, err := m.SetDesired(context.Background(), "missing", 5)
	require.Error(t, err)
}

func TestAutoscaleGraceGatesUntilArmed(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	allowed, err := m.IsAutoscalingAllowed(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, allowed, "peek must not arm the gate on its own")

	allowed, err = m.IsAutoscalingAllowed(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, allowed, "a second peek with no arm in between must still see the gate open")

	require.NoError(t, m.ArmAutoscaleGrace(ctx, "recorders", time.Hour))

	allowed, err = m.IsAutoscalingAllowed(ctx, "recorders")
	require.NoError(t, err)
	assert.False(t, allowed, "arming closes the gate until the grace period elapses")
}

func TestGroupProtection(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	protected, err := m.IsScaleDownProtected(ctx, "recorders")
	require.NoError(t, err)
	assert.False(t, protected)

	require.NoError(t, m.ProtectGroup(ctx, "recorders", time.Hour))

	protected, err = m.IsScaleDownProtected(ctx, "recorders")
	require.NoError(t, err)
	assert.True(t, protected)
}

func TestLaunchProtectedBumpsDesiredAndOverridesConfig(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, model.InstanceGroup{
		Name:                    "recorders",
		InstanceConfigurationID: "tpl-old",
		ScalingOptions:          model.ScalingOptions{MinDesired: 1, MaxDesired: 10, DesiredCount: 3},
	}))

	g, err := m.LaunchProtected(ctx, "recorders", 4, "tpl-new")
	require.NoError(t, err)
	assert.Equal(t, 7, g.ScalingOptions.DesiredCount)
	assert.Equal(t, "tpl-new", g.InstanceConfigurationID)

	g, err = m.LaunchProtected(ctx, "recorders", 100, "")
	require.NoError(t, err)
	assert.Equal(t, 10, g.ScalingOptions.DesiredCount, "bump clamps into [min,max]")
	assert.Equal(t, "tpl-new", g.InstanceConfigurationID, "empty override leaves the existing template")
}

func TestLaunchProtectedNotFound(t *testing.T) {
	m := New(store.NewLocalStore())
	_, err := m.LaunchProtected(context.Background(), "missing", 1, "")
	require.Error(t, err)
}

func TestSeedGroupsUpsertsUnconditionally(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, model.InstanceGroup{
		Name:           "recorders",
		ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 5, DesiredCount: 3},
	}))

	require.NoError(t, m.SeedGroups(ctx, []model.InstanceGroup{{
		Name:           "recorders",
		ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 5, DesiredCount: 1},
	}}))

	stored, err := m.Get(ctx, "recorders")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ScalingOptions.DesiredCount, "SeedGroups overwrites unconditionally; callers gate it on ExistsAtLeastOneGroup")
}

func TestResetGroupsPreservesDesiredCountButReappliesOtherFields(t *testing.T) {
	m := New(store.NewLocalStore())
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, model.InstanceGroup{
		Name:           "recorders",
		ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 5, DesiredCount: 3},
	}))

	require.NoError(t, m.ResetGroups(ctx, []model.InstanceGroup{
		{Name: "recorders", ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 20, DesiredCount: 1}},
		{Name: "bridges", Type: model.InstanceTypeBridge, ScalingOptions: model.ScalingOptions{MinDesired: 0, MaxDesired: 5, DesiredCount: 1}},
	}))

	stored, err := m.Get(ctx, "recorders")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ScalingOptions.DesiredCount, "ResetGroups must not clobber a live desiredCount")
	assert.Equal(t, 20, stored.ScalingOptions.MaxDesired, "ResetGroups must re-apply every other seed field")

	created, err := m.Get(ctx, "bridges")
	require.NoError(t, err)
	require.NotNil(t, created, "ResetGroups creates a seed group absent from the store")
}
