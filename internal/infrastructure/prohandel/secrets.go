package prohandel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ErrEmptySecret is returned when the secret has no string payload
var ErrEmptySecret = errors.New("prohandel: secret has no string value")

// SecretsManagerAPI is the subset of the Secrets Manager client used here
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerCredentials reads a {"apiKey","secret"} JSON secret from
// AWS Secrets Manager. The first successful read is cached for the life of
// the process.
type SecretsManagerCredentials struct {
	client   SecretsManagerAPI
	secretID string

	mu     sync.Mutex
	cached *Credentials
}

// NewSecretsManagerCredentials creates a provider over an existing client
func NewSecretsManagerCredentials(client SecretsManagerAPI, secretID string) *SecretsManagerCredentials {
	return &SecretsManagerCredentials{client: client, secretID: secretID}
}

// LoadSecretsManagerCredentials builds a Secrets Manager client from the
// default AWS credential chain (env, shared config, instance role).
func LoadSecretsManagerCredentials(ctx context.Context, secretID string) (*SecretsManagerCredentials, error) {
	if secretID == "" {
		return nil, errors.New("prohandel: secret id is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}
	return NewSecretsManagerCredentials(secretsmanager.NewFromConfig(awsCfg), secretID), nil
}

// Credentials implements CredentialsProvider
func (s *SecretsManagerCredentials) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("prohandel: failed to read secret %s: %w", s.secretID, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return Credentials{}, ErrEmptySecret
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return Credentials{}, fmt.Errorf("prohandel: secret %s is not valid JSON: %w", s.secretID, err)
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}

	s.cached = &creds
	return creds, nil
}
