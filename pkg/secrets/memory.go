package secrets

// MemoryProvider serves secrets from a map, used in tests and for values given on the command line.
// A "name#field" key reads a field of a json value.
type MemoryProvider struct {
	secrets map[string]string
}

// NewMemoryProvider makes the provider over secrets, the map is not copied.
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	return &MemoryProvider{secrets: secrets}
}

// Get returns the secret for key.
func (m *MemoryProvider) Get(key string) (string, error) {
	name, field := splitField(key)
	val, ok := m.secrets[name]
	if !ok {
		return "", notFound(key)
	}
	if field == "" {
		return val, nil
	}
	return pickField(key, val, field)
}
