package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSManager reads secrets from AWS Secrets Manager.
type AWSManager struct {
	client *secretsmanager.Client
}

// NewAWS builds a client from the default AWS credential chain.
func NewAWS(ctx context.Context, region string) (*AWSManager, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &AWSManager{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (m *AWSManager) Get(ctx context.Context, key string) (string, error) {
	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret from aws: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", key)
	}
	return *out.SecretString, nil
}
