package secrets

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/umputun/rowbatch/pkg/backend/sqldb"
)

// StoreProvider keeps secrets encrypted in a database table. Supported databases: sqlite, postgres, mysql,
// the connection string follows the same rules as query book DSNs.
type StoreProvider struct {
	db      *sql.DB
	key     []byte
	dialect string
}

const (
	saltSize  = 16
	nonceSize = 24
)

// NewStoreProvider opens the secrets database and makes sure the table exists.
func NewStoreProvider(conn string, key []byte) (*StoreProvider, error) {
	if len(key) == 0 {
		return nil, errors.New("secrets key is empty")
	}
	dialect, err := sqldb.Dialect(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}
	db, err := sql.Open(dialect, conn)
	if err != nil {
		return nil, fmt.Errorf("can't open secrets database: %w", err)
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS rowbatch_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create secrets table: %w", err)
	}
	log.Printf("[INFO] secrets store: using %s database", dialect)
	return &StoreProvider{db: db, key: key, dialect: dialect}, nil
}

// Close closes the secrets database.
func (p *StoreProvider) Close() error { return p.db.Close() }

// Get loads and decrypts a secret, "name#field" reads a field of a json secret.
func (p *StoreProvider) Get(key string) (string, error) {
	name, field := splitField(key)
	var sealed string
	err := p.db.QueryRow(p.bind("SELECT sval FROM rowbatch_secrets WHERE skey = ?"), name).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(key)
	}
	if err != nil {
		return "", fmt.Errorf("can't load secret %q: %w", name, err)
	}
	res, err := p.decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("can't get secret for %s: %w", name, err)
	}
	if field == "" {
		return res, nil
	}
	return pickField(key, res, field)
}

// Set encrypts and stores a secret, replacing the existing value.
func (p *StoreProvider) Set(key, value string) error {
	sealed, err := p.encrypt(value)
	if err != nil {
		return fmt.Errorf("can't set secret for %s: %w", key, err)
	}

	var upsert string
	switch p.dialect {
	case "sqlite":
		upsert = "INSERT OR REPLACE INTO rowbatch_secrets (skey, sval) VALUES ($1, $2)"
	case "postgres":
		upsert = "INSERT INTO rowbatch_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = $2"
	default:
		upsert = "REPLACE INTO rowbatch_secrets (skey, sval) VALUES (?, ?)"
	}
	if _, err = p.db.Exec(upsert, key, sealed); err != nil {
		return fmt.Errorf("can't store secret %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret.
func (p *StoreProvider) Delete(key string) error {
	res, err := p.db.Exec(p.bind("DELETE FROM rowbatch_secrets WHERE skey = ?"), key)
	if err != nil {
		return fmt.Errorf("can't delete secret %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't check affected rows: %w", err)
	}
	if affected == 0 {
		return notFound(key)
	}
	return nil
}

// List returns the stored keys starting with prefix, all keys for "" or "*".
func (p *StoreProvider) List(prefix string) ([]string, error) {
	var rows *sql.Rows
	var err error
	if prefix == "" || prefix == "*" {
		rows, err = p.db.Query("SELECT skey FROM rowbatch_secrets ORDER BY skey")
	} else {
		rows, err = p.db.Query(p.bind("SELECT skey FROM rowbatch_secrets WHERE skey LIKE ? ORDER BY skey"), prefix+"%")
	}
	if err != nil {
		return nil, fmt.Errorf("can't list secrets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("can't scan secret key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read secret keys: %w", err)
	}
	return keys, nil
}

// bind rewrites the single placeholder for postgres
func (p *StoreProvider) bind(q string) string {
	if p.dialect != "postgres" {
		return q
	}
	for i, n := 0, 1; i < len(q); i++ {
		if q[i] == '?' {
			q = q[:i] + fmt.Sprintf("$%d", n) + q[i+1:]
			n++
		}
	}
	return q
}

// encrypt seals data with secretbox. The stored value is base64 of nonce, salt and the sealed box,
// the box key is derived from the store key and the salt.
func (p *StoreProvider) encrypt(data string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	nonce := new([nonceSize]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	out := make([]byte, nonceSize+saltSize)
	copy(out, nonce[:])
	copy(out[nonceSize:], salt)
	sealed := secretbox.Seal(out, []byte(data), nonce, deriveKey(p.key, salt))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (p *StoreProvider) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("sealed secret too short")
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], sealed[:nonceSize])
	salt := sealed[nonceSize : nonceSize+saltSize]

	res, ok := secretbox.Open(nil, sealed[nonceSize+saltSize:], nonce, deriveKey(p.key, salt))
	if !ok {
		return "", errors.New("failed to decrypt")
	}
	return string(res), nil
}

// deriveKey makes the secretbox key with argon2id, 64MiB and 4 threads
func deriveKey(key, salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(key, salt, 1, 64*1024, 4, 32))
	return res
}

// NoOpProvider is a provider that does nothing.
type NoOpProvider struct{}

// Get returns an error on every key.
func (p *NoOpProvider) Get(_ string) (string, error) {
	return "", errors.New("secrets provider is not configured")
}
