package ifaces

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
)

// AzureCompute is the subset of the Azure Compute client the Azure adapter
// uses.
//
//go:generate mockery --output ./ --name AzureCompute --filename mock_azure_compute.go --outpkg ifaces --structname MockAzureCompute
type AzureCompute interface {
	GetVMScaleSet(ctx context.Context, resourceGroupName, vmScaleSetName string) (*armcompute.VirtualMachineScaleSet, error)
	ListVMScaleSetVMs(ctx context.Context, resourceGroupName, vmScaleSetName string) ([]*armcompute.VirtualMachineScaleSetVM, error)
	UpdateVMScaleSetCapacity(ctx context.Context, resourceGroupName, vmScaleSetName string, capacity int64) error
	DeleteVMScaleSetVM(ctx context.Context, resourceGroupName, vmScaleSetName, instanceID string) error
}
