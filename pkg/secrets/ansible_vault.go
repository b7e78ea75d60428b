package secrets

import (
	"fmt"
	"log"

	"github.com/go-pkgz/fileutils"
	vault "github.com/sosedoff/ansible-vault-go"
	"gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads secrets from an ansible-vault encrypted yaml file
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts the vault file with the given password
func NewAnsibleVaultProvider(vaultPath, password string) (*AnsibleVaultProvider, error) {
	if !fileutils.IsFile(vaultPath) {
		return nil, fmt.Errorf("%s is not a regular file", vaultPath)
	}
	decrypted, err := vault.DecryptFile(vaultPath, password)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt file %s: %w", vaultPath, err)
	}
	log.Printf("[INFO] ansible vault file %s decrypted", vaultPath)

	m := make(map[string]any)
	if err = yaml.Unmarshal([]byte(decrypted), &m); err != nil {
		return nil, fmt.Errorf("can't unmarshal vault %s: %w", vaultPath, err)
	}
	return &AnsibleVaultProvider{data: m}, nil
}

// Get returns the value of a top-level key, "name#field" reads a field of a nested map.
func (p *AnsibleVaultProvider) Get(key string) (string, error) {
	return lookup(p.data, key)
}
