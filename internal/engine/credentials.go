package engine

import (
	"context"

	"github.com/user/verdandi"
	"github.com/user/verdandi/internal/storage"
	"github.com/user/verdandi/pkg/secrets"
)

type storeCredentials struct {
	s   storage.Storage
	mgr secrets.Manager
}

// NewCredentialResolver resolves node credentials from the storage-backed
// credential store, keyed by (owner, provider, name).
func NewCredentialResolver(s storage.Storage) verdandi.CredentialResolver {
	return NewCredentialResolverWithSecrets(s, nil)
}

// NewCredentialResolverWithSecrets additionally swaps "secret:" values
// for the live secret from mgr after the stored data is decrypted.
func NewCredentialResolverWithSecrets(s storage.Storage, mgr secrets.Manager) verdandi.CredentialResolver {
	return &storeCredentials{s: s, mgr: mgr}
}

func (c *storeCredentials) Resolve(ctx context.Context, owner, provider, name string) (map[string]string, error) {
	cred, err := c.s.GetCredential(ctx, owner, provider, name)
	if err != nil {
		return nil, err
	}
	if c.mgr == nil {
		return cred.Data, nil
	}
	out := make(map[string]string, len(cred.Data))
	for k, v := range cred.Data {
		out[k] = secrets.Resolve(ctx, c.mgr, v)
	}
	return out, nil
}
