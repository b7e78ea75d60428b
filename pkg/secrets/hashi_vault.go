package secrets

import (
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// HashiVaultProvider reads secrets from one kv v2 path of HashiCorp Vault. The path is read once,
// on the first Get, and all keys are served from that copy.
type HashiVaultProvider struct {
	client *api.Client
	path   string

	once sync.Once
	data map[string]any
	err  error
}

// NewHashiVaultProvider makes the provider, path is the full data path, e.g. secret/data/rowbatch.
func NewHashiVaultProvider(addr, path, token string) (*HashiVaultProvider, error) {
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("can't make vault client: %w", err)
	}
	client.SetToken(token)
	return &HashiVaultProvider{client: client, path: path}, nil
}

// Get returns the value of key. Numbers and booleans are formatted, "name#field" reads a field
// of a nested or json value.
func (p *HashiVaultProvider) Get(key string) (string, error) {
	p.once.Do(func() { p.data, p.err = p.load() })
	if p.err != nil {
		return "", p.err
	}
	return lookup(p.data, key)
}

func (p *HashiVaultProvider) load() (map[string]any, error) {
	secret, err := p.client.Logical().Read(p.path)
	if err != nil {
		return nil, fmt.Errorf("can't read vault path %s: %w", p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault path %s %w", p.path, ErrNotFound)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("vault path %s is not a kv v2 secret", p.path)
	}
	return data, nil
}
