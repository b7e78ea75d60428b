package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	values map[string]*secretsmanager.GetSecretValueOutput
	calls  map[string]int
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls[*params.SecretId]++
	if v, ok := f.values[*params.SecretId]; ok {
		return v, nil
	}
	return nil, errors.New("error 123")
}

func strPtr(s string) *string { return &s }

func TestAWSSecretsProvider_Get(t *testing.T) {
	p, err := NewAWSSecretsProvider("key", "secret", "us-east-1")
	require.NoError(t, err)
	fake := &fakeSecretsManager{calls: map[string]int{}, values: map[string]*secretsmanager.GetSecretValueOutput{
		"pg_password": {SecretString: strPtr("test-secret")},
		"rds/prod":    {SecretString: strPtr(`{"username":"app","password":"pa$$","port":5432}`)},
		"binary":      {SecretBinary: []byte("raw-bytes")},
		"empty":       {},
	}}
	p.client = fake

	tbl := []struct {
		key     string
		want    string
		wantErr string
	}{
		{key: "pg_password", want: "test-secret"},
		{key: "rds/prod#password", want: "pa$$"},
		{key: "rds/prod#port", want: "5432"},
		{key: "rds/prod#host", wantErr: `secret "rds/prod#host" not found`},
		{key: "pg_password#user", wantErr: `secret "pg_password#user" is not a json document`},
		{key: "binary", want: "raw-bytes"},
		{key: "empty", wantErr: `aws secret "empty" is empty`},
		{key: "mysql_password", wantErr: `can't read aws secret "mysql_password": error 123`},
	}
	for _, tt := range tbl {
		t.Run(tt.key, func(t *testing.T) {
			val, err := p.Get(tt.key)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, val)
		})
	}

	assert.Equal(t, 1, fake.calls["rds/prod"], "secret fetched once for all fields")
	assert.Equal(t, 1, fake.calls["pg_password"])
	_, err = p.Get("rds/prod#host")
	assert.ErrorIs(t, err, ErrNotFound)
}
