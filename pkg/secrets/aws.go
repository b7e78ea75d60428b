package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSSecretsProvider reads secrets from AWS Secrets Manager. The key is the secret id, "id#field" reads
// a field of a json secret, the way RDS keeps its credentials. Each secret is fetched once.
type AWSSecretsProvider struct {
	client  secretsManagerClient
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]string // secret id to its value
}

type secretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewAWSSecretsProvider makes the provider with static credentials
func NewAWSSecretsProvider(accessKeyID, secretAccessKey, region string) (*AWSSecretsProvider, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	if err != nil {
		return nil, fmt.Errorf("can't make aws config: %w", err)
	}
	return &AWSSecretsProvider{client: secretsmanager.NewFromConfig(cfg), timeout: 30 * time.Second,
		cache: map[string]string{}}, nil
}

// Get returns the value of a secret or of one of its json fields. Binary secrets are returned as is.
func (p *AWSSecretsProvider) Get(key string) (string, error) {
	id, field := splitField(key)
	val, err := p.secret(id)
	if err != nil {
		return "", err
	}
	if field == "" {
		return val, nil
	}
	return pickField(key, val, field)
}

func (p *AWSSecretsProvider) secret(id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.cache[id]; ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	res, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &id})
	if err != nil {
		return "", fmt.Errorf("can't read aws secret %q: %w", id, err)
	}
	var val string
	switch {
	case res.SecretString != nil:
		val = *res.SecretString
	case len(res.SecretBinary) > 0:
		val = string(res.SecretBinary)
	default:
		return "", fmt.Errorf("aws secret %q is empty", id)
	}
	p.cache[id] = val
	return val, nil
}
