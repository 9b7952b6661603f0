package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/jitsi-contrib/autoscaler/internal/cloud/ifaces"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

const groupTagKey = "autoscaler-group"

// AWSManager is the EC2 adapter: unlike Azure/GCP's capacity-based pools,
// RunInstances hands back instance IDs directly, so it implements Manager
// without going through PoolAdapter (spec.md §4.6).
type AWSManager struct {
	client ifaces.EC2
}

// NewAWSManager builds an EC2-backed Manager for region.
func NewAWSManager(ctx context.Context, region string) (*AWSManager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("could not load AWS configuration: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &AWSManager{client: ec2.NewFromConfig(cfg)}, nil
}

func (m *AWSManager) Launch(ctx context.Context, group model.InstanceGroup, count int) ([]model.CloudInstance, error) {
	if count <= 0 {
		return nil, nil
	}

	out, err := m.client.RunInstances(ctx, &ec2.RunInstancesInput{
		MinCount: aws.Int32(int32(count)),
		MaxCount: aws.Int32(int32(count)),
		LaunchTemplate: &types.LaunchTemplateSpecification{
			LaunchTemplateId: aws.String(group.InstanceConfigurationID),
		},
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags: []types.Tag{
				{Key: aws.String(groupTagKey), Value: aws.String(group.Name)},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch instances: %w", err)
	}

	instances := make([]model.CloudInstance, 0, len(out.Instances))
	for _, inst := range out.Instances {
		instances = append(instances, model.CloudInstance{
			InstanceID:  aws.ToString(inst.InstanceId),
			DisplayName: aws.ToString(inst.InstanceId),
			CloudStatus: model.CloudStatusProvisioning,
		})
	}
	return instances, nil
}

func (m *AWSManager) Terminate(ctx context.Context, _ model.InstanceGroup, instanceID string) error {
	_, err := m.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("could not terminate instance %s: %w", instanceID, err)
	}
	return nil
}

func (m *AWSManager) Enumerate(ctx context.Context, group model.InstanceGroup) ([]model.CloudInstance, error) {
	out, err := m.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + groupTagKey), Values: []string{group.Name}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "shutting-down", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not describe instances for group %s: %w", group.Name, err)
	}

	var instances []model.CloudInstance
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			instances = append(instances, model.CloudInstance{
				InstanceID:  aws.ToString(inst.InstanceId),
				DisplayName: aws.ToString(inst.InstanceId),
				CloudStatus: ec2StatusToCloudStatus(inst.State),
			})
		}
	}
	return instances, nil
}

func ec2StatusToCloudStatus(state *types.InstanceState) string {
	if state == nil {
		return model.CloudStatusProvisioning
	}
	switch state.Name {
	case types.InstanceStateNameRunning:
		return model.CloudStatusRunning
	case types.InstanceStateNameTerminated, types.InstanceStateNameShuttingDown:
		return model.CloudStatusTerminated
	default:
		return model.CloudStatusProvisioning
	}
}

var _ Manager = (*AWSManager)(nil)
