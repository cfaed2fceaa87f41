package prohandel

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned when an API key or secret is empty
var ErrMissingCredentials = errors.New("prohandel: api key and secret are required")

// Credentials is the key pair exchanged for a bearer token
type Credentials struct {
	APIKey string `json:"apiKey"`
	Secret string `json:"secret"`
}

// Validate reports whether both halves of the pair are present
func (c Credentials) Validate() error {
	if c.APIKey == "" || c.Secret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// CredentialsProvider supplies the key pair used by Authenticate
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials serves a fixed key pair, typically from config or env
type StaticCredentials struct {
	APIKey string
	Secret string
}

// Credentials implements CredentialsProvider
func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	creds := Credentials{APIKey: s.APIKey, Secret: s.Secret}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
