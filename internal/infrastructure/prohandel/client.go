// Package prohandel implements the authenticated, paginated client for the
// ProHandel retail API.
package prohandel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/domain/etl"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/telemetry"
)

// maxResponseSize caps how much of a response body is read (64MB)
const maxResponseSize = 64 * 1024 * 1024

// maxMessageLen truncates response bodies quoted in error messages
const maxMessageLen = 256

// Client talks to the ProHandel API with a cached bearer token.
// It is safe for concurrent use; concurrent callers share one token.
type Client struct {
	config      *Config
	credentials CredentialsProvider
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *telemetry.ETLMetrics
	now         func() time.Time

	mu     sync.Mutex // Protects token and expiry
	token  string
	expiry time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records page requests on m
func WithMetrics(m *telemetry.ETLMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the clock used for token expiry
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a ProHandel client
func NewClient(cfg *Config, credentials CredentialsProvider, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("prohandel: configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if credentials == nil {
		return nil, ErrMissingCredentials
	}

	c := &Client{
		config:      cfg,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("prohandel")
	return c, nil
}

// tokenResponse mirrors the token service body {"token":{"token":{...}}}
type tokenResponse struct {
	Token struct {
		Token struct {
			Value     string `json:"value"`
			ExpiresIn int64  `json:"expires_in"`
		} `json:"token"`
	} `json:"token"`
}

// Authenticate exchanges the credentials for a new bearer token
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.authenticateLocked(ctx)
	return err
}

func (c *Client) authenticateLocked(ctx context.Context) (string, error) {
	const op = "authenticate"

	creds, err := c.credentials.Credentials(ctx)
	if err != nil {
		return "", etl.NewAuthenticationError(op, err)
	}
	payload, err := json.Marshal(creds)
	if err != nil {
		return "", etl.NewAuthenticationError(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AuthURL+"/token", bytes.NewReader(payload))
	if err != nil {
		return "", etl.NewAuthenticationError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Authentication failed", zap.Error(err))
		return "", etl.NewAuthenticationError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", etl.NewAuthenticationError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Authentication rejected", zap.Int("status", resp.StatusCode))
		return "", etl.NewAuthenticationError(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, responseMessage(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", etl.NewAuthenticationError(op, fmt.Errorf("invalid token response: %w", err))
	}
	if tr.Token.Token.Value == "" {
		return "", etl.NewAuthenticationError(op, errors.New("token response carries no token"))
	}

	lifetime := time.Duration(tr.Token.Token.ExpiresIn)*time.Second - c.config.TokenSafetyMargin
	if lifetime < 0 {
		lifetime = 0
	}
	c.token = tr.Token.Token.Value
	c.expiry = c.now().Add(lifetime)

	c.logger.Info("Authenticated with ProHandel API", zap.Time("refresh_at", c.expiry))
	return c.token, nil
}

// currentToken returns a valid token, authenticating when absent or expired
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

// refresh re-authenticates after stale was rejected, unless another caller
// already replaced it.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.token != stale && c.now().Before(c.expiry) {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

// FetchPage requests one page from endpoint. A 401 triggers exactly one
// re-authentication and retry of the same request.
func (c *Client) FetchPage(ctx context.Context, endpoint string, query url.Values, page, pageSize int) ([]etl.RawRecord, error) {
	op := "fetch " + endpoint

	params := url.Values{}
	for k, vs := range query {
		params[k] = append([]string(nil), vs...)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("pagesize", strconv.Itoa(pageSize))

	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.get(ctx, op, endpoint, params, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Info("Token rejected, re-authenticating", zap.String("endpoint", endpoint))
		if token, err = c.refresh(ctx, token); err != nil {
			return nil, err
		}
		if status, body, err = c.get(ctx, op, endpoint, params, token); err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, etl.NewAuthenticationError(op, errors.New("HTTP 401 after token refresh"))
		}
	}
	if status >= 400 {
		var cause error
		if msg := responseMessage(body); msg != "" {
			cause = errors.New(msg)
		}
		return nil, etl.NewTransientNetworkError(op, fmt.Sprintf("HTTP %d", status), cause)
	}

	return c.decodePage(op, endpoint, body)
}

func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return 0, nil, etl.NewTransientNetworkError(op, "request failed", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordPageRequest(ctx, endpoint, resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, etl.NewTransientNetworkError(op, "failed to read response", err)
	}
	return resp.StatusCode, body, nil
}

// decodePage turns a JSON array body into records. Any other JSON value is
// an empty page. A non-object item becomes a nil record so the page keeps
// its length and the transformer rejects it.
func (c *Client) decodePage(op, endpoint string, body []byte) ([]etl.RawRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, etl.NewTransientNetworkError(op, "invalid JSON body", err)
	}

	items, ok := v.([]any)
	if !ok {
		c.logger.Debug("Response is not an array, treating as empty page", zap.String("endpoint", endpoint))
		return nil, nil
	}

	records := make([]etl.RawRecord, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			c.logger.Warn("Non-object record in page", zap.String("endpoint", endpoint), zap.Int("index", i))
		}
		records = append(records, etl.RawRecord(m))
	}
	return records, nil
}

// PageOption configures FetchAllPages
type PageOption func(*pageOptions)

type pageOptions struct {
	pageSize int
	maxPages int
}

// WithPageSize overrides the configured page size
func WithPageSize(n int) PageOption {
	return func(o *pageOptions) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithMaxPages stops after n pages; zero means unlimited
func WithMaxPages(n int) PageOption {
	return func(o *pageOptions) {
		if n > 0 {
			o.maxPages = n
		}
	}
}

// FetchAllPages walks pages 1..n sequentially until an empty page, a short
// page, or the page limit.
func (c *Client) FetchAllPages(ctx context.Context, endpoint string, query url.Values, opts ...PageOption) ([]etl.RawRecord, error) {
	o := pageOptions{pageSize: c.config.PageSize}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := telemetry.StartSpan(ctx, "prohandel.fetch_all_pages",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrEndpoint, endpoint),
		telemetry.WithAttribute(telemetry.SpanAttrPageSize, o.pageSize),
	)
	defer span.End()

	var all []etl.RawRecord
	pages := 0
	for page := 1; o.maxPages == 0 || page <= o.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		records, err := c.FetchPage(ctx, endpoint, query, page, o.pageSize)
		if err != nil {
			c.logger.Error("Error fetching page",
				zap.String("endpoint", endpoint),
				zap.Int("page", page),
				zap.Error(err),
			)
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		pages++
		all = append(all, records...)
		c.logger.Info("Fetched page",
			zap.String("endpoint", endpoint),
			zap.Int("page", page),
			zap.Int("records", len(records)),
		)

		if len(records) < o.pageSize {
			break
		}
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrPages, pages)
	telemetry.SetAttribute(span, telemetry.SpanAttrRecords, len(all))
	telemetry.SetOK(span)
	return all, nil
}

// responseMessage extracts a human readable message from an error body
func responseMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return truncateMessage(string(bytes.TrimSpace(body)))
}

// truncateMessage cuts msg to at most maxMessageLen bytes on a rune boundary
func truncateMessage(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
