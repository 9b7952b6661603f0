package cloud

import (
	"context"
	"fmt"
	"strings"

	computeapi "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/option"

	"github.com/jitsi-contrib/autoscaler/internal/cloud/ifaces"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// GCPManager is the Instance Group Manager adapter, built on PoolAdapter for
// the same reason as Azure: ResizeIGM does not hand back new instance names.
type GCPManager struct {
	PoolAdapter
}

type gcpResizer struct {
	igm       ifaces.GCPCompute
	instances ifaces.GCPInstances
	project   string
	location  string
	igmName   string
}

// NewGCPManager builds an IGM-backed Manager for the one Instance Group
// Manager named by project, location and igmName. The bootstrap passes the
// process-wide GCP_PROJECT, GCP_LOCATION and GCP_IGM_NAME settings, so every
// group on this cloud resizes that same IGM; the group's own fields are not
// read.
func NewGCPManager(ctx context.Context, project, location, igmName string) (*GCPManager, error) {
	igmClient, err := computeapi.NewInstanceGroupManagersRESTClient(ctx, option.WithScopes(computeapi.DefaultAuthScopes()...))
	if err != nil {
		return nil, fmt.Errorf("could not create GCP instance group managers client: %w", err)
	}
	instancesClient, err := computeapi.NewInstancesRESTClient(ctx, option.WithScopes(computeapi.DefaultAuthScopes()...))
	if err != nil {
		return nil, fmt.Errorf("could not create GCP instances client: %w", err)
	}

	resizer := &gcpResizer{
		igm:       &gcpComputeClient{client: igmClient},
		instances: &gcpInstancesClient{client: instancesClient},
		project:   project,
		location:  location,
		igmName:   igmName,
	}
	return &GCPManager{PoolAdapter: PoolAdapter{resizer: resizer}}, nil
}

func (r *gcpResizer) members(ctx context.Context) ([]model.CloudInstance, error) {
	managed, err := r.igm.ListManagedInstances(ctx, r.project, r.location, r.igmName)
	if err != nil {
		return nil, fmt.Errorf("could not list managed instances: %w", err)
	}

	instances := make([]model.CloudInstance, 0, len(managed))
	for _, m := range managed {
		name := instanceNameFromURL(m.GetInstance())
		instances = append(instances, model.CloudInstance{
			InstanceID:  name,
			DisplayName: r.displayName(ctx, name),
			CloudStatus: gcpInstanceStatusToCloudStatus(m.GetInstanceStatus()),
		})
	}
	return instances, nil
}

// displayName enriches a managed instance's bare name with its hostname,
// when the instances client can resolve it; it falls back to name on error
// since display quality is best-effort.
func (r *gcpResizer) displayName(ctx context.Context, name string) string {
	inst, err := r.instances.GetInstance(ctx, r.project, r.location, name)
	if err != nil || inst.GetHostname() == "" {
		return name
	}
	return inst.GetHostname()
}

func (r *gcpResizer) currentSize(ctx context.Context) (int, error) {
	igm, err := r.igm.GetInstanceGroupManager(ctx, r.project, r.location, r.igmName)
	if err != nil {
		return 0, fmt.Errorf("could not get instance group manager: %w", err)
	}
	return int(igm.GetTargetSize()), nil
}

func (r *gcpResizer) resize(ctx context.Context, newSize int) error {
	if err := r.igm.ResizeIGM(ctx, r.project, r.location, r.igmName, int64(newSize)); err != nil {
		return fmt.Errorf("could not resize instance group manager: %w", err)
	}
	return nil
}

func (r *gcpResizer) deleteMember(ctx context.Context, instanceID string) error {
	instanceURL := fmt.Sprintf("zones/%s/instances/%s", r.location, instanceID)
	if err := r.igm.DeleteInstance(ctx, r.project, r.location, r.igmName, instanceURL); err != nil {
		return fmt.Errorf("could not delete managed instance: %w", err)
	}
	return nil
}

func instanceNameFromURL(url string) string {
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

func gcpInstanceStatusToCloudStatus(status string) string {
	switch status {
	case "RUNNING":
		return model.CloudStatusRunning
	case "STOPPING", "TERMINATED", "DELETING":
		return model.CloudStatusTerminated
	default:
		return model.CloudStatusProvisioning
	}
}

// gcpComputeClient wraps the GCP Compute SDK's IGM client to implement
// ifaces.GCPCompute.
type gcpComputeClient struct {
	client *computeapi.InstanceGroupManagersClient
}

func (c *gcpComputeClient) GetInstanceGroupManager(ctx context.Context, project, location, name string) (*computepb.InstanceGroupManager, error) {
	return c.client.Get(ctx, &computepb.GetInstanceGroupManagerRequest{
		Project:              project,
		Zone:                 location,
		InstanceGroupManager: name,
	})
}

func (c *gcpComputeClient) ListManagedInstances(ctx context.Context, project, location, name string) ([]*computepb.ManagedInstance, error) {
	it := c.client.ListManagedInstances(ctx, &computepb.ListManagedInstancesInstanceGroupManagersRequest{
		Project:              project,
		Zone:                 location,
		InstanceGroupManager: name,
	})

	var out []*computepb.ManagedInstance
	for {
		instance, err := it.Next()
		if err != nil {
			break
		}
		out = append(out, instance)
	}
	return out, nil
}

func (c *gcpComputeClient) ResizeIGM(ctx context.Context, project, location, name string, newSize int64) error {
	op, err := c.client.Resize(ctx, &computepb.ResizeInstanceGroupManagerRequest{
		Project:              project,
		Zone:                 location,
		InstanceGroupManager: name,
		Size:                 int32(newSize),
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (c *gcpComputeClient) DeleteInstance(ctx context.Context, project, location, igmName, instanceURL string) error {
	op, err := c.client.DeleteInstances(ctx, &computepb.DeleteInstancesInstanceGroupManagerRequest{
		Project:              project,
		Zone:                 location,
		InstanceGroupManager: igmName,
		InstanceGroupManagersDeleteInstancesRequestResource: &computepb.InstanceGroupManagersDeleteInstancesRequest{
			Instances: []string{instanceURL},
		},
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (c *gcpComputeClient) Close() error { return c.client.Close() }

// gcpInstancesClient wraps the GCP Compute SDK's Instances client to
// implement ifaces.GCPInstances.
type gcpInstancesClient struct {
	client *computeapi.InstancesClient
}

func (c *gcpInstancesClient) GetInstance(ctx context.Context, project, zone, instanceName string) (*computepb.Instance, error) {
	return c.client.Get(ctx, &computepb.GetInstanceRequest{
		Project:  project,
		Zone:     zone,
		Instance: instanceName,
	})
}

func (c *gcpInstancesClient) Close() error { return c.client.Close() }

var _ ifaces.GCPCompute = (*gcpComputeClient)(nil)
var _ ifaces.GCPInstances = (*gcpInstancesClient)(nil)
var _ Manager = (*GCPManager)(nil)
