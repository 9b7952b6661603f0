package ifaces

import (
	"context"

	"cloud.google.com/go/compute/apiv1/computepb"
)

// GCPInstances is the subset of the GCP Compute Engine Instances client
// used to enrich a managed instance with its zonal instance details.
//
//go:generate mockery --output ./ --name GCPInstances --filename mock_gcp_instances.go --outpkg ifaces --structname MockGCPInstances
type GCPInstances interface {
	GetInstance(ctx context.Context, project, zone, instanceName string) (*computepb.Instance, error)
	Close() error
}
