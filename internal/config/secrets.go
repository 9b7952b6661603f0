package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"
)

// tracedHTTPClient wraps the standard transport in otelhttp so every
// outbound secret-fetch call gets a client span (spec.md's tracing note).
func tracedHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// FetchAWSSecret retrieves c.AWSSecretName from SSM Parameter Store,
// mirroring the teacher's Spacelift-API-key-from-SSM boot sequence.
func (c Config) FetchAWSSecret(ctx context.Context) (string, error) {
	if c.AWSSecretName == "" {
		return "", errors.New("AWS_SECRET_NAME is required when cloudProviders includes aws")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion), awsconfig.WithHTTPClient(tracedHTTPClient()))
	if err != nil {
		return "", fmt.Errorf("could not load AWS configuration: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	client := ssm.NewFromConfig(awsCfg)
	output, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.AWSSecretName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not get secret %q from SSM: %w", c.AWSSecretName, err)
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %q has no value", c.AWSSecretName)
	}
	return *output.Parameter.Value, nil
}

// FetchAzureSecret retrieves c.AzureSecretName from the configured Key
// Vault, mirroring the teacher's azureKeyVaultClient boot sequence.
func (c Config) FetchAzureSecret(ctx context.Context) (string, error) {
	if c.AzureKeyVaultName == "" {
		return "", errors.New("AZURE_KEY_VAULT_NAME is required when cloudProviders includes azure")
	}
	if c.AzureSecretName == "" {
		return "", errors.New("AZURE_SECRET_NAME is required when cloudProviders includes azure")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return "", fmt.Errorf("could not create Azure credential: %w", err)
	}

	vaultURL := fmt.Sprintf("https://%s.vault.azure.net", c.AzureKeyVaultName)
	client, err := azsecrets.NewClient(vaultURL, cred, &azsecrets.ClientOptions{
		ClientOptions: policy.ClientOptions{Transport: tracedHTTPClient()},
	})
	if err != nil {
		return "", fmt.Errorf("could not create Azure Key Vault client: %w", err)
	}

	resp, err := client.GetSecret(ctx, c.AzureSecretName, "", nil)
	if err != nil {
		return "", fmt.Errorf("could not get secret %q from Key Vault %q: %w", c.AzureSecretName, c.AzureKeyVaultName, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("Key Vault secret %q has no value", c.AzureSecretName)
	}
	return *resp.Value, nil
}

// FetchGCPSecret retrieves the latest version of c.GCPSecretName from
// Secret Manager, mirroring FetchAWSSecret/FetchAzureSecret's shape for the
// third cloud.
func (c Config) FetchGCPSecret(ctx context.Context) (string, error) {
	if c.GCPProject == "" {
		return "", errors.New("GCP_PROJECT is required when cloudProviders includes gcp")
	}
	if c.GCPSecretName == "" {
		return "", errors.New("GCP_SECRET_NAME is required when cloudProviders includes gcp")
	}

	client, err := secretmanager.NewClient(ctx, option.WithHTTPClient(tracedHTTPClient()))
	if err != nil {
		return "", fmt.Errorf("could not create Secret Manager client: %w", err)
	}
	defer client.Close()

	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.GCPSecretName)
	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("could not access secret %q: %w", name, err)
	}
	if resp.Payload == nil {
		return "", fmt.Errorf("secret %q has no payload", name)
	}
	return string(resp.Payload.Data), nil
}

// ResolveSharedSecret picks the side-car/admin authentication secret: an
// explicit AdminSharedSecret override first, then the first configured
// cloud's secret store (spec.md's architecture note gives this package the
// out-of-scope request-auth concern no further shape than "fetched at
// boot").
func (c Config) ResolveSharedSecret(ctx context.Context) (string, error) {
	if c.AdminSharedSecret != "" {
		return c.AdminSharedSecret, nil
	}
	for _, provider := range c.CloudProviders {
		switch provider {
		case "aws":
			return c.FetchAWSSecret(ctx)
		case "azure":
			return c.FetchAzureSecret(ctx)
		case "gcp":
			return c.FetchGCPSecret(ctx)
		}
	}
	return "", errors.New("no ADMIN_SHARED_SECRET set and no supported cloud secret store configured")
}
