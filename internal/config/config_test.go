package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c := &Config{}
	require.NoError(t, c.Parse())

	assert.Equal(t, 30, c.AutoscalerIntervalSec)
	assert.Equal(t, 40, c.MaxThrottleThreshold)
	assert.Equal(t, []string{"aws"}, c.CloudProviders)
	assert.Equal(t, "local", c.StoreProfile)
}

func TestParseHonorsCloudProvidersOverride(t *testing.T) {
	t.Setenv("CLOUD_PROVIDERS", "aws,azure")
	t.Setenv("AZURE_VMSS_RESOURCE_ID", "/subscriptions/x/resourceGroups/y/providers/Microsoft.Compute/virtualMachineScaleSets/z")
	t.Setenv("AZURE_KEY_VAULT_NAME", "my-vault")

	c := &Config{}
	require.NoError(t, c.Parse())

	assert.ElementsMatch(t, []string{"aws", "azure"}, c.CloudProviders)
	assert.Equal(t, "my-vault", c.AzureKeyVaultName)
}
