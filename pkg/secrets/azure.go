package secrets

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// AzureManager reads secrets from Azure Key Vault.
type AzureManager struct {
	client *azsecrets.Client
}

// NewAzure authenticates with the default Azure credential chain.
func NewAzure(vaultURL string) (*AzureManager, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault client: %w", err)
	}
	return &AzureManager{client: client}, nil
}

// Get reads the latest version of the named secret.
func (m *AzureManager) Get(ctx context.Context, key string) (string, error) {
	resp, err := m.client.GetSecret(ctx, key, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from azure: %w", err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %s has no value", key)
	}
	return *resp.Value, nil
}
