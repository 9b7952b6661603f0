package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSharedSecretPrefersExplicitOverride(t *testing.T) {
	c := Config{AdminSharedSecret: "s3cr3t", CloudProviders: []string{"aws"}}
	secret, err := c.ResolveSharedSecret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", secret)
}

func TestResolveSharedSecretErrorsWithNoOverrideOrSupportedCloud(t *testing.T) {
	c := Config{CloudProviders: []string{"unknown"}}
	_, err := c.ResolveSharedSecret(context.Background())
	require.Error(t, err)
}

func TestFetchGCPSecretRequiresProjectAndSecretName(t *testing.T) {
	c := Config{CloudProviders: []string{"gcp"}}
	_, err := c.FetchGCPSecret(context.Background())
	require.Error(t, err)
}
