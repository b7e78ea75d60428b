package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runArgs(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var opts options
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	_, err := p.ParseArgs(args)
	require.NoError(t, err)
	out := bytes.Buffer{}
	err = run(p, opts, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestSecrets(t *testing.T) {
	conn := filepath.Join(t.TempDir(), "secrets.db")
	base := []string{"--key", "secretkey", "--conn", conn}

	tbl := []struct {
		name    string
		args    []string
		stdin   string
		wantOut string
		wantErr string
	}{
		{name: "set", args: []string{"set", "key1", "value1"}},
		{name: "set no value", args: []string{"set", "key1"}, wantErr: `can't set empty secret for key "key1"`},
		{name: "set bad key", args: []string{"set", "rds#password", "v"},
			wantErr: `invalid key "rds#password", allowed are letters, digits and _.-/`},
		{name: "set from stdin", args: []string{"set", "rds/prod", "-"}, stdin: "{\"user\":\"app\",\"password\":\"pa55\"}\nignored\n"},
		{name: "set empty stdin", args: []string{"set", "key3", "-"}, wantErr: `can't set empty secret for key "key3"`},
		{name: "get", args: []string{"get", "key1"}, wantOut: "value1\n"},
		{name: "get field", args: []string{"get", "rds/prod#password"}, wantOut: "pa55\n"},
		{name: "get missing", args: []string{"get", "key2"}, wantErr: `can't get secret for key "key2": secret "key2" not found`},
		{name: "list", args: []string{"list"}, wantOut: "key1\nrds/prod\n"},
		{name: "del", args: []string{"del", "key1"}},
		{name: "del missing", args: []string{"del", "key1"}, wantErr: `can't delete secret: secret "key1" not found`},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runArgs(t, tt.stdin, append(base, tt.args...)...)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestSecrets_WrongKey(t *testing.T) {
	conn := filepath.Join(t.TempDir(), "secrets.db")
	_, err := runArgs(t, "", "--key", "k1", "--conn", conn, "set", "pg_password", "s3cret")
	require.NoError(t, err)
	_, err = runArgs(t, "", "--key", "k2", "--conn", conn, "get", "pg_password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestSecrets_ListWithPrefix(t *testing.T) {
	conn := filepath.Join(t.TempDir(), "secrets.db")
	for _, k := range []string{"key1", "key2", "prefix_key5", "prefix_key6"} {
		_, err := runArgs(t, "", "--key", "secretkey", "--conn", conn, "set", k, "value-"+k)
		require.NoError(t, err)
	}

	out, err := runArgs(t, "", "--key", "secretkey", "--conn", conn, "list")
	require.NoError(t, err)
	assert.Equal(t, "key1\nkey2\nprefix_key5\nprefix_key6\n", out)

	out, err = runArgs(t, "", "--key", "secretkey", "--conn", conn, "list", "prefix")
	require.NoError(t, err)
	assert.Equal(t, "prefix_key5\nprefix_key6\n", out)
}

func TestSecrets_Check(t *testing.T) {
	dir := t.TempDir()
	conn := filepath.Join(dir, "secrets.db")
	book := filepath.Join(dir, "book.yml")
	require.NoError(t, os.WriteFile(book, []byte(`dsn: "postgres://${user}:${secret:rds/prod#password}@db/app"
queries:
  - name: users
    sql: SELECT id FROM users
  - name: events
    sql: SELECT id FROM events
    dsn: "mysql://root:${secret:mysql_password}@tcp(db)/app"
`), 0o600))
	base := []string{"--key", "secretkey", "--conn", conn}

	_, err := runArgs(t, `{"password":"pa55"}`, append(base, "set", "rds/prod", "-")...)
	require.NoError(t, err)

	_, err = runArgs(t, "", append(base, "check", "--book", book, "--var", "user:app")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `secret "mysql_password" not found`)

	_, err = runArgs(t, "", append(base, "set", "mysql_password", "s3cret")...)
	require.NoError(t, err)
	out, err := runArgs(t, "", append(base, "check", "--book", book, "--var", "user:app")...)
	require.NoError(t, err)
	assert.Equal(t, book+": 2 queries, all secrets resolved\n", out)
}

func TestSecrets_BadConn(t *testing.T) {
	_, err := runArgs(t, "", "--key", "secretkey", "--conn", "mongodb://localhost", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't create secrets provider")
}
