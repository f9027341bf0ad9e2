// Package secrets resolves external secret references in credential
// values. A value stored as "secret:db/prod:password" is swapped for
// the live secret at execution time, so the engine's own store only
// ever holds the pointer. Backends cover environment variables,
// HashiCorp Vault, OpenBao, AWS Secrets Manager and Azure Key Vault.
package secrets

import (
	"context"
	"os"
	"strings"
)

// Manager reads a named secret from a backend.
type Manager interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvManager resolves secrets from environment variables, trying the
// prefixed name first and the bare name as a fallback.
type EnvManager struct {
	Prefix string
}

func (m *EnvManager) Get(ctx context.Context, key string) (string, error) {
	if val := os.Getenv(m.Prefix + key); val != "" {
		return val, nil
	}
	return os.Getenv(key), nil
}

// CombinedManager tries each manager in order and returns the first
// non-empty value.
type CombinedManager struct {
	Managers []Manager
}

func (m *CombinedManager) Get(ctx context.Context, key string) (string, error) {
	for _, mgr := range m.Managers {
		if val, err := mgr.Get(ctx, key); err == nil && val != "" {
			return val, nil
		}
	}
	return "", nil
}

// Prefix marks a credential value as a reference into the secret
// backend rather than a literal.
const Prefix = "secret:"

// Resolve swaps a "secret:" reference for the value behind it. Literal
// values and references the backend cannot serve come back unchanged,
// leaving the failure to whatever consumes the credential.
func Resolve(ctx context.Context, mgr Manager, value string) string {
	if mgr == nil || !strings.HasPrefix(value, Prefix) {
		return value
	}
	if val, err := mgr.Get(ctx, strings.TrimPrefix(value, Prefix)); err == nil && val != "" {
		return val
	}
	return value
}
