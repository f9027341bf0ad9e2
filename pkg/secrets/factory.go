package secrets

import (
	"context"
	"fmt"
)

// Config selects and configures the secret backend.
type Config struct {
	Type    string      `yaml:"type" json:"type"` // "", "env", "vault", "openbao", "aws" or "azure"
	Vault   KVConfig    `yaml:"vault" json:"vault"`
	OpenBao KVConfig    `yaml:"openbao" json:"openbao"`
	AWS     AWSConfig   `yaml:"aws" json:"aws"`
	Azure   AzureConfig `yaml:"azure" json:"azure"`
	Env     EnvConfig   `yaml:"env" json:"env"`
}

// KVConfig covers Vault and OpenBao, which share a wire protocol.
type KVConfig struct {
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token" json:"token"`
	Mount   string `yaml:"mount" json:"mount"`
}

type AWSConfig struct {
	Region string `yaml:"region" json:"region"`
}

type AzureConfig struct {
	VaultURL string `yaml:"vault_url" json:"vault_url"`
}

type EnvConfig struct {
	Prefix string `yaml:"prefix" json:"prefix"`
}

// NewManager builds the configured backend. An empty type yields a nil
// Manager, which disables external resolution.
func NewManager(ctx context.Context, cfg Config) (Manager, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "env":
		return &EnvManager{Prefix: cfg.Env.Prefix}, nil
	case "vault":
		return NewVault(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Mount)
	case "openbao":
		return NewOpenBao(cfg.OpenBao.Address, cfg.OpenBao.Token, cfg.OpenBao.Mount)
	case "aws":
		return NewAWS(ctx, cfg.AWS.Region)
	case "azure":
		return NewAzure(cfg.Azure.VaultURL)
	default:
		return nil, fmt.Errorf("unsupported secret backend: %s", cfg.Type)
	}
}
