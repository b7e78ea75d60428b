package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Book defines the top-level query book: a default connection string, a default batch size and a list
// of named statements.
type Book struct {
	DSN     string  `yaml:"dsn" toml:"dsn"`       // default connection string
	Batch   int     `yaml:"batch" toml:"batch"`   // default rows per fetch
	Queries []Query `yaml:"queries" toml:"queries"` // list of queries

	overrides       *Overrides
	secrets         map[string]string // all resolved secrets, by key
	secretsProvider SecretsProvider
}

// Query is a named statement. Empty DSN and zero Batch inherit the book values.
type Query struct {
	Name  string `yaml:"name" toml:"name"`
	SQL   string `yaml:"sql" toml:"sql"`
	Batch int    `yaml:"batch" toml:"batch"`
	DSN   string `yaml:"dsn" toml:"dsn"`
}

// SecretsProvider defines interface for secrets providers
type SecretsProvider interface {
	Get(key string) (string, error)
}

// Overrides defines values passed from cli, they take precedence over the book
type Overrides struct {
	DSN        string
	Batch      int
	AdHocQuery string
	Vars       map[string]string // substituted for ${name} in connection strings
}

// AdHocName is the name of the query made from an ad-hoc statement
const AdHocName = "ad-hoc"

const defaultBatch = 100

var placeholderRe = regexp.MustCompile(`\$\{(secret:)?([A-Za-z0-9_.\-/#]+)\}`)

// New loads the query book from fname. If the file does not exist and an ad-hoc query is set in overrides,
// a book with the single ad-hoc query is made. Connection strings are expanded with the cli vars and the
// secrets from secProvider, batch sizes are resolved per query.
func New(fname string, overrides *Overrides, secProvider SecretsProvider) (*Book, error) {
	log.Printf("[DEBUG] request to load query book %q", fname)
	if overrides == nil {
		overrides = &Overrides{}
	}
	res := &Book{overrides: overrides, secretsProvider: secProvider, secrets: map[string]string{}}

	switch {
	case fname != "" && fileutils.IsFile(fname):
		data, err := os.ReadFile(fname) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't read query book %s: %w", fname, err)
		}
		if err = unmarshalBook(fname, data, res); err != nil {
			return nil, err
		}
		if overrides.AdHocQuery != "" {
			res.Queries = []Query{{Name: AdHocName, SQL: overrides.AdHocQuery}}
		}
	case overrides.AdHocQuery != "":
		log.Printf("[DEBUG] no query book file %q, ad-hoc query only", fname)
		res.Queries = []Query{{Name: AdHocName, SQL: overrides.AdHocQuery}}
	default:
		return nil, fmt.Errorf("query book %q not found and no ad-hoc query set", fname)
	}

	if overrides.DSN != "" {
		res.DSN = overrides.DSN
	}
	if overrides.Batch > 0 {
		res.Batch = overrides.Batch
	}
	if res.Batch == 0 {
		res.Batch = defaultBatch
	}

	if err := res.checkConfig(); err != nil {
		return nil, fmt.Errorf("query book %s is invalid: %w", fname, err)
	}

	for i := range res.Queries {
		q := &res.Queries[i]
		if q.DSN == "" {
			q.DSN = res.DSN
		}
		if q.Batch == 0 || overrides.Batch > 0 {
			q.Batch = res.Batch
		}
		dsn, err := res.expand(q.DSN)
		if err != nil {
			return nil, fmt.Errorf("can't expand connection string of query %q: %w", q.Name, err)
		}
		q.DSN = dsn
		log.Printf("[DEBUG] load query %q, batch %d", q.Name, q.Batch)
	}
	log.Printf("[INFO] query book loaded with %d queries", len(res.Queries))
	return res, nil
}

func unmarshalBook(fname string, data []byte, res *Book) error {
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err := yamlDecoder.Decode(res); err != nil {
			return fmt.Errorf("can't unmarshal yaml query book %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err := toml.Unmarshal(data, res); err != nil {
			return fmt.Errorf("can't unmarshal toml query book %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown query book format %s", fname)
	}
	return nil
}

// checkConfig reports all problems at once
func (b *Book) checkConfig() error {
	errs := new(multierror.Error)
	if len(b.Queries) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no queries defined"))
	}
	if b.Batch < 0 {
		errs = multierror.Append(errs, fmt.Errorf("batch must be positive, got %d", b.Batch))
	}

	names := make(map[string]bool)
	for i, q := range b.Queries {
		if stringutils.IsBlank(q.Name) {
			errs = multierror.Append(errs, fmt.Errorf("query #%d has no name", i+1))
			continue
		}
		if names[q.Name] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate query name %q", q.Name))
		}
		names[q.Name] = true
		if stringutils.IsBlank(q.SQL) {
			errs = multierror.Append(errs, fmt.Errorf("query %q has no sql", q.Name))
		}
		if q.Batch < 0 {
			errs = multierror.Append(errs, fmt.Errorf("query %q: batch must be positive, got %d", q.Name, q.Batch))
		}
		if q.DSN == "" && b.DSN == "" {
			errs = multierror.Append(errs, fmt.Errorf("query %q has no connection string", q.Name))
		}
	}
	return errs.ErrorOrNil()
}

// expand substitutes ${secret:key} with the secret value and ${name} with the cli var
func (b *Book) expand(s string) (string, error) {
	errs := new(multierror.Error)
	res := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholderRe.FindStringSubmatch(m)
		key := parts[2]
		if parts[1] == "" { // plain var
			if v, ok := b.overrides.Vars[key]; ok {
				return v
			}
			errs = multierror.Append(errs, fmt.Errorf("undefined variable %q", key))
			return m
		}
		if v, ok := b.secrets[key]; ok {
			return v
		}
		if b.secretsProvider == nil {
			errs = multierror.Append(errs, fmt.Errorf("secret %q is used, but secrets provider is not set", key))
			return m
		}
		v, err := b.secretsProvider.Get(key)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't get secret %q: %w", key, err))
			return m
		}
		b.secrets[key] = v
		return v
	})
	return res, errs.ErrorOrNil()
}

// Query returns the query with the given name
func (b *Book) Query(name string) (*Query, error) {
	for i := range b.Queries {
		if b.Queries[i].Name == name {
			return &b.Queries[i], nil
		}
	}
	return nil, fmt.Errorf("query %q not found", name)
}

// Select returns the queries with the given names in the requested order, all queries if names is empty.
func (b *Book) Select(names ...string) ([]Query, error) {
	if len(names) == 0 {
		return b.Queries, nil
	}
	res := make([]Query, 0, len(names))
	for _, name := range names {
		q, err := b.Query(name)
		if err != nil {
			return nil, err
		}
		res = append(res, *q)
	}
	return res, nil
}

// AllSecretValues returns all resolved secret values and cli vars. It is used to mask them in logs.
func (b *Book) AllSecretValues() []string {
	res := make([]string, 0, len(b.secrets)+len(b.overrides.Vars))
	for _, v := range b.secrets {
		res = append(res, v)
	}
	for _, v := range b.overrides.Vars {
		if v != "" {
			res = append(res, v)
		}
	}
	return res
}
