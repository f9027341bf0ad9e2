package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

// KVManager reads from a KV v2 mount. OpenBao kept Vault's wire
// protocol, so both backends share this client and differ only in the
// name used for error messages.
type KVManager struct {
	client  *api.Client
	mount   string
	backend string
}

// NewVault connects to a HashiCorp Vault server.
func NewVault(address, token, mount string) (*KVManager, error) {
	return newKV("vault", address, token, mount)
}

// NewOpenBao connects to an OpenBao server.
func NewOpenBao(address, token, mount string) (*KVManager, error) {
	return newKV("openbao", address, token, mount)
}

func newKV(backend, address, token, mount string) (*KVManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", backend, err)
	}
	client.SetToken(token)

	if mount == "" {
		mount = "secret"
	}
	return &KVManager{client: client, mount: mount, backend: backend}, nil
}

// Get reads a secret. Keys take the form "path/to/secret" or
// "path/to/secret:field"; the field defaults to "value".
func (m *KVManager) Get(ctx context.Context, key string) (string, error) {
	path, field := key, "value"
	if i := strings.Index(key, ":"); i >= 0 {
		path, field = key[:i], key[i+1:]
	}

	// KV v2 inserts /data/ between the mount and the secret path.
	sec, err := m.client.Logical().ReadWithContext(ctx, fmt.Sprintf("%s/data/%s", m.mount, path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from %s: %w", m.backend, err)
	}
	if sec == nil || sec.Data == nil {
		return "", fmt.Errorf("secret not found: %s", path)
	}

	data, ok := sec.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected secret payload for %s", path)
	}
	val, ok := data[field]
	if !ok {
		return "", fmt.Errorf("field %s not present in secret %s", field, path)
	}
	return fmt.Sprintf("%v", val), nil
}
