package prohandel

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultAuthURL is the production token endpoint base
	DefaultAuthURL = "https://auth.prohandel.cloud/api/v4"
	// DefaultAPIURL is the production data API base
	DefaultAPIURL = "https://linde.prohandel.de/api/v2"
	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 1000
	// DefaultTimeout bounds every HTTP request
	DefaultTimeout = 30 * time.Second
	// DefaultTokenSafetyMargin is subtracted from the advertised token lifetime
	DefaultTokenSafetyMargin = 300 * time.Second
)

// Errors for client configuration
var (
	ErrConfigMissingAuthURL = errors.New("prohandel: auth URL is required")
	ErrConfigMissingAPIURL  = errors.New("prohandel: API URL is required")
	ErrConfigInvalidPage    = errors.New("prohandel: page size must be positive")
)

// Config holds the endpoints and request tuning of the ProHandel client
type Config struct {
	// AuthURL is the base URL of the token service; the client posts to {AuthURL}/token
	AuthURL string
	// APIURL is the base URL of the data endpoints
	APIURL string
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
	// PageSize is the default page size for FetchAllPages
	PageSize int
	// TokenSafetyMargin is subtracted from expires_in when caching a token
	TokenSafetyMargin time.Duration
}

// NewConfig creates a client configuration with defaults
func NewConfig(authURL, apiURL string) *Config {
	return &Config{
		AuthURL:           authURL,
		APIURL:            apiURL,
		Timeout:           DefaultTimeout,
		PageSize:          DefaultPageSize,
		TokenSafetyMargin: DefaultTokenSafetyMargin,
	}
}

// Validate checks required fields and fills zero values with defaults
func (c *Config) Validate() error {
	c.AuthURL = strings.TrimRight(c.AuthURL, "/")
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.AuthURL == "" {
		return ErrConfigMissingAuthURL
	}
	if c.APIURL == "" {
		return ErrConfigMissingAPIURL
	}
	if c.PageSize < 0 {
		return ErrConfigInvalidPage
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TokenSafetyMargin < 0 {
		c.TokenSafetyMargin = 0
	}
	return nil
}
