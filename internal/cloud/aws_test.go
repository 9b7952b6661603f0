package cloud

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jitsi-contrib/autoscaler/internal/cloud/ifaces"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

func TestAWSManagerLaunch(t *testing.T) {
	mockEC2 := &ifaces.MockEC2{}
	m := &AWSManager{client: mockEC2}

	mockEC2.On("RunInstances", mock.Anything, mock.MatchedBy(func(in *ec2.RunInstancesInput) bool {
		return aws.ToInt32(in.MinCount) == 2 && *in.LaunchTemplate.LaunchTemplateId == "lt-1"
	})).Return(&ec2.RunInstancesOutput{
		Instances: []types.Instance{
			{InstanceId: aws.String("i-1")},
			{InstanceId: aws.String("i-2")},
		},
	}, nil)

	group := model.InstanceGroup{Name: "recorders", InstanceConfigurationID: "lt-1"}
	instances, err := m.Launch(context.Background(), group, 2)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	require.Equal(t, model.CloudStatusProvisioning, instances[0].CloudStatus)
	mockEC2.AssertExpectations(t)
}

func TestAWSManagerLaunchZeroCountIsNoop(t *testing.T) {
	mockEC2 := &ifaces.MockEC2{}
	m := &AWSManager{client: mockEC2}

	instances, err := m.Launch(context.Background(), model.InstanceGroup{}, 0)
	require.NoError(t, err)
	require.Nil(t, instances)
	mockEC2.AssertNotCalled(t, "RunInstances", mock.Anything, mock.Anything)
}

func TestAWSManagerTerminate(t *testing.T) {
	mockEC2 := &ifaces.MockEC2{}
	m := &AWSManager{client: mockEC2}

	mockEC2.On("TerminateInstances", mock.Anything, &ec2.TerminateInstancesInput{InstanceIds: []string{"i-1"}}).
		Return(&ec2.TerminateInstancesOutput{}, nil)

	require.NoError(t, m.Terminate(context.Background(), model.InstanceGroup{}, "i-1"))
	mockEC2.AssertExpectations(t)
}

func TestAWSManagerEnumerate(t *testing.T) {
	mockEC2 := &ifaces.MockEC2{}
	m := &AWSManager{client: mockEC2}

	mockEC2.On("DescribeInstances", mock.Anything, mock.Anything).Return(&ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{
			Instances: []types.Instance{
				{InstanceId: aws.String("i-1"), State: &types.InstanceState{Name: types.InstanceStateNameRunning}},
			},
		}},
	}, nil)

	instances, err := m.Enumerate(context.Background(), model.InstanceGroup{Name: "recorders"})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, model.CloudStatusRunning, instances[0].CloudStatus)
	mockEC2.AssertExpectations(t)
}
