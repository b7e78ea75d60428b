package secrets

import (
	"path/filepath"
	"testing"

	vault "github.com/sosedoff/ansible-vault-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnsibleVaultProvider(t *testing.T) {
	dir := t.TempDir()
	vaultFile := filepath.Join(dir, "secrets.yml")
	require.NoError(t, vault.EncryptFile(vaultFile, "pg_password: test-secret-data\nport: 5432\npg:\n  user: app\n  password: nested\n", "password"))
	badYaml := filepath.Join(dir, "bad.yml")
	require.NoError(t, vault.EncryptFile(badYaml, "- just\n- a list\n", "password"))

	t.Run("secret found", func(t *testing.T) {
		p, err := NewAnsibleVaultProvider(vaultFile, "password")
		require.NoError(t, err)
		val, err := p.Get("pg_password")
		require.NoError(t, err)
		assert.Equal(t, "test-secret-data", val)
		val, err = p.Get("port")
		require.NoError(t, err)
		assert.Equal(t, "5432", val)
		val, err = p.Get("pg#password")
		require.NoError(t, err)
		assert.Equal(t, "nested", val)
		_, err = p.Get("secret-2")
		require.EqualError(t, err, `secret "secret-2" not found`)
	})

	t.Run("vault file not found", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(filepath.Join(dir, "nope.yml"), "password")
		require.ErrorContains(t, err, "is not a regular file")
	})

	t.Run("vault is a directory", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(dir, "password")
		require.ErrorContains(t, err, "is not a regular file")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(vaultFile, "password0")
		require.ErrorContains(t, err, "can't decrypt file")
	})

	t.Run("not a map", func(t *testing.T) {
		_, err := NewAnsibleVaultProvider(badYaml, "password")
		require.ErrorContains(t, err, "can't unmarshal vault")
	})
}
