package cloud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

type fakeResizer struct {
	pool      []model.CloudInstance
	nextID    int
	resizeErr error
}

func (f *fakeResizer) members(context.Context) ([]model.CloudInstance, error) {
	out := make([]model.CloudInstance, len(f.pool))
	copy(out, f.pool)
	return out, nil
}

func (f *fakeResizer) currentSize(context.Context) (int, error) { return len(f.pool), nil }

func (f *fakeResizer) resize(_ context.Context, newSize int) error {
	if f.resizeErr != nil {
		return f.resizeErr
	}
	for len(f.pool) < newSize {
		f.nextID++
		f.pool = append(f.pool, model.CloudInstance{
			InstanceID:  "vm-" + string(rune('a'+f.nextID)),
			CloudStatus: model.CloudStatusProvisioning,
		})
	}
	for len(f.pool) > newSize {
		f.pool = f.pool[:len(f.pool)-1]
	}
	return nil
}

func (f *fakeResizer) deleteMember(_ context.Context, instanceID string) error {
	for i, m := range f.pool {
		if m.InstanceID == instanceID {
			f.pool = append(f.pool[:i], f.pool[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestPoolAdapterLaunchReturnsOnlyNewMembers(t *testing.T) {
	resizer := &fakeResizer{pool: []model.CloudInstance{{InstanceID: "vm-existing"}}}
	adapter := &PoolAdapter{resizer: resizer}

	added, err := adapter.Launch(context.Background(), model.InstanceGroup{}, 2)
	require.NoError(t, err)
	require.Len(t, added, 2)
	for _, a := range added {
		assert.NotEqual(t, "vm-existing", a.InstanceID)
	}

	members, err := adapter.Enumerate(context.Background(), model.InstanceGroup{})
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestPoolAdapterLaunchZeroIsNoop(t *testing.T) {
	resizer := &fakeResizer{}
	adapter := &PoolAdapter{resizer: resizer}

	added, err := adapter.Launch(context.Background(), model.InstanceGroup{}, 0)
	require.NoError(t, err)
	assert.Nil(t, added)
}

func TestPoolAdapterTerminateRemovesMember(t *testing.T) {
	resizer := &fakeResizer{pool: []model.CloudInstance{{InstanceID: "vm-1"}, {InstanceID: "vm-2"}}}
	adapter := &PoolAdapter{resizer: resizer}

	require.NoError(t, adapter.Terminate(context.Background(), model.InstanceGroup{}, "vm-1"))

	members, err := adapter.Enumerate(context.Background(), model.InstanceGroup{})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "vm-2", members[0].InstanceID)
}
