package lock

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	rediscli "github.com/redis/go-redis/v9"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
)

// RedsyncManager is the durable-KV lock profile: a KV-based compare-and-swap
// lock with a server-side TTL (the lock is never renewed; it lapses after
// its TTL unless released first), built on go-redsync so many control-plane
// replicas can safely contend for the same group/job-creation lock.
type RedsyncManager struct {
	rs  *redsync.Redsync
	cfg Config
}

// NewRedsyncManager builds the distributed lock profile over an existing
// Redis client (the same client the durable InstanceStore profile uses).
func NewRedsyncManager(client rediscli.UniversalClient, cfg Config) *RedsyncManager {
	pool := goredis.NewPool(client)
	return &RedsyncManager{rs: redsync.New(pool), cfg: cfg}
}

func (m *RedsyncManager) LockGroup(ctx context.Context, group string) (Lock, error) {
	return m.acquire(ctx, groupLockKey(group), m.cfg.GroupLockTTL)
}

func (m *RedsyncManager) LockJobCreation(ctx context.Context) (Lock, error) {
	return m.acquire(ctx, jobCreationLockKey, m.cfg.JobCreationLockTTL)
}

func (m *RedsyncManager) acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	mutex := m.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrLockUnavailable, err)
	}
	return &redsyncLock{mutex: mutex}, nil
}

type redsyncLock struct {
	mutex *redsync.Mutex
}

func (l *redsyncLock) Release(ctx context.Context) error {
	_, err := l.mutex.UnlockContext(ctx)
	return err
}

var _ Manager = (*RedsyncManager)(nil)
