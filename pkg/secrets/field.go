package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is wrapped by every provider for a key it doesn't have.
var ErrNotFound = errors.New("not found")

func notFound(key string) error {
	return fmt.Errorf("secret %q %w", key, ErrNotFound)
}

// splitField separates a json field selector from a key: "rds/prod#password" is ("rds/prod", "password").
// Credentials are often kept as one json document per database, the selector picks a part of it.
func splitField(key string) (name, field string) {
	name, field, _ = strings.Cut(key, "#")
	return name, field
}

// pickField returns field of the json document doc, field is a gjson path like "password" or "db.port".
func pickField(key, doc, field string) (string, error) {
	if !gjson.Valid(doc) {
		return "", fmt.Errorf("secret %q is not a json document", key)
	}
	res := gjson.Get(doc, field)
	if !res.Exists() {
		return "", notFound(key)
	}
	if res.IsObject() || res.IsArray() {
		return "", fmt.Errorf("secret %q is not a scalar value", key)
	}
	return res.String(), nil
}

// lookup resolves key in a decoded document, used by providers returning structured data.
func lookup(data map[string]any, key string) (string, error) {
	name, field := splitField(key)
	raw, ok := data[name]
	if !ok || raw == nil {
		return "", notFound(key)
	}
	if field == "" {
		return scalar(key, raw)
	}
	if s, ok := raw.(string); ok {
		return pickField(key, s, field)
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("can't encode secret %q: %w", key, err)
	}
	return pickField(key, string(doc), field)
}

// scalar formats a decoded value, ports and flags are accepted along with strings
func scalar(key string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	return "", fmt.Errorf("unexpected value format of secret %q: %T", key, v)
}
