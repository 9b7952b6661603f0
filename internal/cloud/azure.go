package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v6"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"

	"github.com/jitsi-contrib/autoscaler/internal/cloud/ifaces"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// AzureManager is the VMSS adapter, built on PoolAdapter because VMSS scales
// by capacity rather than by explicit per-instance launch calls.
type AzureManager struct {
	PoolAdapter
}

type azureResizer struct {
	compute           ifaces.AzureCompute
	resourceGroupName string
	vmssName          string
}

// NewAzureManager builds a VMSS-backed Manager for the one scale set named
// by vmssResourceID, expected in Azure resource-ID form. The bootstrap
// passes the process-wide AZURE_VMSS_RESOURCE_ID setting, so every group on
// this cloud resizes that same scale set.
func NewAzureManager(ctx context.Context, vmssResourceID string) (*AzureManager, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure credential: %w", err)
	}

	resourceID, err := arm.ParseResourceID(vmssResourceID)
	if err != nil {
		return nil, fmt.Errorf("could not parse Azure VMSS resource ID: %w", err)
	}
	if resourceID.SubscriptionID == "" || resourceID.ResourceGroupName == "" || resourceID.Name == "" {
		return nil, errors.New("could not parse Azure VMSS resource ID: missing subscription, resource group or name")
	}

	if err := checkForConflictingAutoscaleSettings(ctx, resourceID.SubscriptionID, resourceID.ResourceGroupName, vmssResourceID, cred); err != nil {
		return nil, err
	}

	vmssClient, err := armcompute.NewVirtualMachineScaleSetsClient(resourceID.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure VMSS client: %w", err)
	}
	vmClient, err := armcompute.NewVirtualMachineScaleSetVMsClient(resourceID.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure VMSS VM client: %w", err)
	}

	compute := &azureComputeClient{vmssClient: vmssClient, vmClient: vmClient}

	resizer := &azureResizer{
		compute:           compute,
		resourceGroupName: resourceID.ResourceGroupName,
		vmssName:          resourceID.Name,
	}
	return &AzureManager{PoolAdapter: PoolAdapter{resizer: resizer}}, nil
}

// checkForConflictingAutoscaleSettings fails adapter construction if the
// VMSS already has an enabled Azure Monitor autoscale setting targeting it
// -- Azure's own autoscaler and this control plane fighting over the same
// VMSS capacity would otherwise flap indefinitely.
func checkForConflictingAutoscaleSettings(ctx context.Context, subscriptionID, resourceGroupName, vmssResourceID string, cred *azidentity.DefaultAzureCredential) error {
	client, err := armmonitor.NewAutoscaleSettingsClient(subscriptionID, cred, nil)
	if err != nil {
		return fmt.Errorf("could not create Azure Monitor autoscale client: %w", err)
	}

	var conflicting []string
	pager := client.NewListByResourceGroupPager(resourceGroupName, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("could not list Azure Monitor autoscale settings: %w", err)
		}
		for _, setting := range page.Value {
			if setting.Properties == nil || setting.Properties.TargetResourceURI == nil {
				continue
			}
			if !strings.EqualFold(*setting.Properties.TargetResourceURI, vmssResourceID) {
				continue
			}
			if setting.Properties.Enabled != nil && *setting.Properties.Enabled {
				name := "unknown"
				if setting.Name != nil {
					name = *setting.Name
				}
				conflicting = append(conflicting, name)
			}
		}
	}

	if len(conflicting) > 0 {
		return fmt.Errorf("VMSS %q has Azure autoscale settings enabled (%s), which conflicts with this control plane managing its capacity",
			vmssResourceID, strings.Join(conflicting, ", "))
	}
	return nil
}

func (r *azureResizer) members(ctx context.Context) ([]model.CloudInstance, error) {
	vms, err := r.compute.ListVMScaleSetVMs(ctx, r.resourceGroupName, r.vmssName)
	if err != nil {
		return nil, fmt.Errorf("could not list VMSS VM instances: %w", err)
	}

	instances := make([]model.CloudInstance, 0, len(vms))
	for _, vm := range vms {
		if vm.InstanceID == nil {
			continue
		}
		instances = append(instances, model.CloudInstance{
			InstanceID:  *vm.InstanceID,
			DisplayName: derefStr(vm.Name),
			CloudStatus: vmssProvisioningStateToCloudStatus(vm),
		})
	}
	return instances, nil
}

func (r *azureResizer) currentSize(ctx context.Context) (int, error) {
	vmss, err := r.compute.GetVMScaleSet(ctx, r.resourceGroupName, r.vmssName)
	if err != nil {
		return 0, fmt.Errorf("could not get VMSS details: %w", err)
	}
	if vmss.SKU == nil || vmss.SKU.Capacity == nil {
		return 0, nil
	}
	return int(*vmss.SKU.Capacity), nil
}

func (r *azureResizer) resize(ctx context.Context, newSize int) error {
	if err := r.compute.UpdateVMScaleSetCapacity(ctx, r.resourceGroupName, r.vmssName, int64(newSize)); err != nil {
		return fmt.Errorf("could not update VMSS capacity: %w", err)
	}
	return nil
}

func (r *azureResizer) deleteMember(ctx context.Context, instanceID string) error {
	if err := r.compute.DeleteVMScaleSetVM(ctx, r.resourceGroupName, r.vmssName, instanceID); err != nil {
		return fmt.Errorf("could not delete VMSS VM instance: %w", err)
	}
	return nil
}

func vmssProvisioningStateToCloudStatus(vm *armcompute.VirtualMachineScaleSetVM) string {
	if vm.Properties == nil || vm.Properties.ProvisioningState == nil {
		return model.CloudStatusProvisioning
	}
	switch *vm.Properties.ProvisioningState {
	case "Succeeded":
		return model.CloudStatusRunning
	case "Deleting":
		return model.CloudStatusTerminated
	default:
		return model.CloudStatusProvisioning
	}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// azureComputeClient wraps the Azure Compute SDK clients to implement
// ifaces.AzureCompute.
type azureComputeClient struct {
	vmssClient *armcompute.VirtualMachineScaleSetsClient
	vmClient   *armcompute.VirtualMachineScaleSetVMsClient
}

func (c *azureComputeClient) GetVMScaleSet(ctx context.Context, resourceGroupName, vmScaleSetName string) (*armcompute.VirtualMachineScaleSet, error) {
	resp, err := c.vmssClient.Get(ctx, resourceGroupName, vmScaleSetName, nil)
	if err != nil {
		return nil, err
	}
	return &resp.VirtualMachineScaleSet, nil
}

func (c *azureComputeClient) ListVMScaleSetVMs(ctx context.Context, resourceGroupName, vmScaleSetName string) ([]*armcompute.VirtualMachineScaleSetVM, error) {
	pager := c.vmClient.NewListPager(resourceGroupName, vmScaleSetName, nil)
	var vms []*armcompute.VirtualMachineScaleSetVM
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		vms = append(vms, page.Value...)
	}
	return vms, nil
}

func (c *azureComputeClient) UpdateVMScaleSetCapacity(ctx context.Context, resourceGroupName, vmScaleSetName string, capacity int64) error {
	vmss, err := c.GetVMScaleSet(ctx, resourceGroupName, vmScaleSetName)
	if err != nil {
		return err
	}
	vmss.SKU.Capacity = &capacity

	poller, err := c.vmssClient.BeginCreateOrUpdate(ctx, resourceGroupName, vmScaleSetName, *vmss, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *azureComputeClient) DeleteVMScaleSetVM(ctx context.Context, resourceGroupName, vmScaleSetName, instanceID string) error {
	poller, err := c.vmClient.BeginDelete(ctx, resourceGroupName, vmScaleSetName, instanceID, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

var _ ifaces.AzureCompute = (*azureComputeClient)(nil)
var _ Manager = (*AzureManager)(nil)
