package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/config"
	"github.com/jitsi-contrib/autoscaler/internal/jobs"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

func TestNewStoreSelectsLocalProfileByDefault(t *testing.T) {
	st, err := newStore(config.Config{StoreProfile: "local"}, nil)
	require.NoError(t, err)
	_, ok := st.(*store.LocalStore)
	assert.True(t, ok)
}

func TestNewStoreRejectsUnknownProfile(t *testing.T) {
	_, err := newStore(config.Config{StoreProfile: "memcached"}, nil)
	require.Error(t, err)
}

func TestNewLockManagerSelectsInProcessProfileByDefault(t *testing.T) {
	m, err := newLockManager(config.Config{LockProfile: "local"}, nil)
	require.NoError(t, err)
	_, ok := m.(*lock.InProcessManager)
	assert.True(t, ok)
}

func TestNewLockManagerRejectsUnknownProfile(t *testing.T) {
	_, err := newLockManager(config.Config{LockProfile: "etcd"}, nil)
	require.Error(t, err)
}

func TestNewQueuesUsesInProcessWhenNeitherProfileIsRedis(t *testing.T) {
	a, l, s := newQueues(config.Config{StoreProfile: "local", LockProfile: "local"}, nil)
	_, ok := a.(*jobs.InProcessQueue)
	assert.True(t, ok)
	_, ok = l.(*jobs.InProcessQueue)
	assert.True(t, ok)
	_, ok = s.(*jobs.InProcessQueue)
	assert.True(t, ok)
}

func TestLoadSeedGroupsEmptyPathReturnsNil(t *testing.T) {
	groups, err := loadSeedGroups("")
	require.NoError(t, err)
	assert.Nil(t, groups)
}

func TestLoadSeedGroupsParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	seed := []model.InstanceGroup{
		{Name: "recorders", ScalingOptions: model.ScalingOptions{MinDesired: 1, MaxDesired: 5, DesiredCount: 2}},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	groups, err := loadSeedGroups(path)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "recorders", groups[0].Name)
}

func TestLoadSeedGroupsMissingFileErrors(t *testing.T) {
	_, err := loadSeedGroups(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
