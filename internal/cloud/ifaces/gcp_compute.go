package ifaces

import (
	"context"

	"cloud.google.com/go/compute/apiv1/computepb"
)

// GCPCompute is the subset of the GCP Compute Engine client the GCP adapter
// uses to operate on an Instance Group Manager.
//
//go:generate mockery --output ./ --name GCPCompute --filename mock_gcp_compute.go --outpkg ifaces --structname MockGCPCompute
type GCPCompute interface {
	GetInstanceGroupManager(ctx context.Context, project, location, name string) (*computepb.InstanceGroupManager, error)
	ListManagedInstances(ctx context.Context, project, location, name string) ([]*computepb.ManagedInstance, error)
	ResizeIGM(ctx context.Context, project, location, name string, newSize int64) error
	DeleteInstance(ctx context.Context, project, location, igmName, instanceURL string) error
	Close() error
}
