// Package ifaces mocks the subset of each cloud SDK client the cloud
// adapters use, the same way the rest of this codebase isolates SDK
// clients behind narrow interfaces for testability.
package ifaces

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2 is the subset of the EC2 client the AWS adapter uses.
//
//go:generate mockery --inpackage --name EC2 --filename mock_ec2.go
type EC2 interface {
	RunInstances(context.Context, *ec2.RunInstancesInput, ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(context.Context, *ec2.TerminateInstancesInput, ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstances(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}
