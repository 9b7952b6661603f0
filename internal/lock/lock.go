// Package lock implements the LockManager contract (spec.md §4.2): a
// distributed mutex for per-group processing and for job-creation fan-out.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
)

// Lock is an acquired mutex; Release must be idempotent-safe to call once.
type Lock interface {
	Release(ctx context.Context) error
}

// Manager is the distributed-lock capability consumed by the job consumers.
// Acquisition failures must be wrapped in autoscalererr.ErrLockUnavailable so
// callers can treat them as "skip this cycle" rather than fatal.
type Manager interface {
	LockGroup(ctx context.Context, group string) (Lock, error)
	LockJobCreation(ctx context.Context) (Lock, error)
}

// Config carries the two lock TTLs named in spec.md §6.
type Config struct {
	GroupLockTTL      time.Duration
	JobCreationLockTTL time.Duration
}

const jobCreationLockKey = "job-creation"

func groupLockKey(group string) string { return fmt.Sprintf("group-lock:%s", group) }

// InProcessManager is the single-replica lock profile: plain mutexes keyed
// by name, TTL-bounded via a timer so a crashed holder can't wedge the
// process forever. No third-party library improves on sync.Mutex for a
// single OS process (see DESIGN.md) -- this profile is deliberately
// stdlib-only; the networked profile lives in RedsyncManager.
type InProcessManager struct {
	cfg Config

	mu    sync.Mutex
	held  map[string]struct{}
}

// NewInProcessManager builds the in-process lock profile.
func NewInProcessManager(cfg Config) *InProcessManager {
	return &InProcessManager{cfg: cfg, held: make(map[string]struct{})}
}

func (m *InProcessManager) LockGroup(ctx context.Context, group string) (Lock, error) {
	return m.acquire(ctx, groupLockKey(group), m.cfg.GroupLockTTL)
}

func (m *InProcessManager) LockJobCreation(ctx context.Context) (Lock, error) {
	return m.acquire(ctx, jobCreationLockKey, m.cfg.JobCreationLockTTL)
}

func (m *InProcessManager) acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, autoscalererr.Wrap(autoscalererr.ErrLockUnavailable, fmt.Errorf("%s is held", key))
	}

	m.held[key] = struct{}{}
	l := &inProcessLock{manager: m, key: key}

	if ttl > 0 {
		l.timer = time.AfterFunc(ttl, func() { l.Release(context.Background()) })
	}
	return l, nil
}

type inProcessLock struct {
	manager *InProcessManager
	key     string
	timer   *time.Timer

	once sync.Once
}

func (l *inProcessLock) Release(_ context.Context) error {
	l.once.Do(func() {
		if l.timer != nil {
			l.timer.Stop()
		}
		l.manager.mu.Lock()
		delete(l.manager.held, l.key)
		l.manager.mu.Unlock()
	})
	return nil
}

var _ Manager = (*InProcessManager)(nil)
