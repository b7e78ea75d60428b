package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProvider_Get(t *testing.T) {
	m := NewMemoryProvider(map[string]string{"pg_password": "val1", "mysql": `{"user":"root","pass":"val2"}`})

	t.Run("get existing secret", func(t *testing.T) {
		val, err := m.Get("pg_password")
		require.NoError(t, err)
		assert.Equal(t, "val1", val)
	})

	t.Run("get json field", func(t *testing.T) {
		val, err := m.Get("mysql#pass")
		require.NoError(t, err)
		assert.Equal(t, "val2", val)
	})

	t.Run("get non-existing secret", func(t *testing.T) {
		_, err := m.Get("sqlite_key")
		assert.EqualError(t, err, `secret "sqlite_key" not found`)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = m.Get("mysql#host")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestNoOp_Get(t *testing.T) {
	p := &NoOpProvider{}
	_, err := p.Get("test_key")
	assert.Error(t, err)
}
