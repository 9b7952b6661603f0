package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
)

// Handler runs one job for a group, reporting whether the job made
// progress (the same contract autoscaler.Processor.Process and
// launcher.Launcher.Process already expose).
type Handler func(ctx context.Context, group string) (bool, error)

// Manager owns the three logical queues and the grace-gated producer that
// fans work out to them.
type Manager struct {
	groups *group.Manager
	locks  lock.Manager
	log    *slog.Logger

	Autoscaler Queue
	Launcher   Queue
	Sanity     Queue
}

// New builds a job Manager over the three named queues.
func New(groups *group.Manager, locks lock.Manager, autoscalerQ, launcherQ, sanityQ Queue, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{groups: groups, locks: locks, Autoscaler: autoscalerQ, Launcher: launcherQ, Sanity: sanityQ, log: log}
}

// Produce runs one pass of the job-production loop (spec.md §4.10,
// steps 1-5): gated by the job-creation lock and the group-jobs grace
// period, it enumerates every group and pushes one autoscaler and one
// launcher job per group, then re-arms the grace period.
func (m *Manager) Produce(ctx context.Context, gracePeriod time.Duration) error {
	allowed, err := m.groups.IsGroupJobsCreationAllowed(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	l, err := m.locks.LockJobCreation(ctx)
	if err != nil {
		m.log.Debug("job creation lock unavailable, skipping this pass")
		return nil
	}
	defer func() { _ = l.Release(ctx) }()

	allowed, err = m.groups.IsGroupJobsCreationAllowed(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	names, err := m.groups.List(ctx)
	if err != nil {
		return err
	}
	for _, g := range names {
		if err := m.Autoscaler.Push(ctx, Job{Group: g.Name}); err != nil {
			return err
		}
		if err := m.Launcher.Push(ctx, Job{Group: g.Name}); err != nil {
			return err
		}
	}
	return m.groups.ArmGroupJobsCreationGrace(ctx, gracePeriod)
}

// ProduceSanity runs one pass of the sanity-job production loop, governed
// by its own grace period as spec.md §4.10 requires ("a parallel producer
// governed by sanityJobsCreationGracePeriod").
func (m *Manager) ProduceSanity(ctx context.Context, gracePeriod time.Duration) error {
	allowed, err := m.groups.IsSanityJobsCreationAllowed(ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return nil
	}

	names, err := m.groups.List(ctx)
	if err != nil {
		return err
	}
	for _, g := range names {
		if err := m.Sanity.Push(ctx, Job{Group: g.Name}); err != nil {
			return err
		}
	}
	return m.groups.ArmSanityJobsCreationGrace(ctx, gracePeriod)
}

// Consume pops and runs at most one job from q, bounding the handler's run
// time to timeout. Consume itself takes no lock: per-group work is
// serialized by the handlers, which each acquire lockGroup internally. A stalled (timed-out) job is logged and dropped -- the next
// producer cycle creates a fresh one, per spec.md §4.10.
func (m *Manager) Consume(ctx context.Context, q Queue, timeout time.Duration, handler Handler) error {
	job, ok, err := q.Pop(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	log := m.log.With("job.group", job.Group)

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = handler(jobCtx, job.Group)
	if err != nil {
		if jobCtx.Err() != nil {
			log.Error("job timed out", "error", jobCtx.Err())
			return nil
		}
		log.Error("job failed", "error", err)
		return nil
	}
	return nil
}
