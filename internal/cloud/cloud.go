// Package cloud implements the CloudInstanceManager of spec.md §4.6: one
// adapter per cloud, all satisfying the same launch/terminate/enumerate
// contract so the launcher never branches on cloud provider.
package cloud

import (
	"context"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// Manager launches, terminates and enumerates the cloud-visible instances
// of one group. Implementations never touch the control-plane store --
// reconciling cloud reality against tracked state is the launcher's job.
type Manager interface {
	Launch(ctx context.Context, group model.InstanceGroup, count int) ([]model.CloudInstance, error)
	Terminate(ctx context.Context, group model.InstanceGroup, instanceID string) error
	Enumerate(ctx context.Context, group model.InstanceGroup) ([]model.CloudInstance, error)
}

// RetryStrategy bounds how long a cloud adapter will retry a transient API
// error (e.g. Azure/GCP long-running operation polling) before giving up.
type RetryStrategy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryStrategy matches what the teacher's cloud controllers used as
// an implicit constant before every poller loop.
var DefaultRetryStrategy = RetryStrategy{MaxAttempts: 5, Backoff: 2 * time.Second}
