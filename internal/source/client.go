package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/resilience"
)

// ClientOptions configures the provider HTTP client.
type ClientOptions struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	Timeout    time.Duration
	Retry      resilience.RetryConfig
	HTTPClient *http.Client
}

// Client is a thin JSON-over-HTTP provider client with bearer auth and
// transient-error retry. Auth rejections surface as ErrSourceDisabled so
// the caller can stop hammering a source whose key is dead.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	retry     resilience.RetryConfig
	http      *http.Client
}

// NewClient creates a provider client.
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "esg-pipeline/1.0"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		http:      httpClient,
	}
}

// GetJSON fetches path with the given query params and decodes the JSON
// object response. Transient failures are retried per the client's retry
// config; 401/403 return ErrSourceDisabled.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (map[string]any, error) {
		return c.getOnce(ctx, path, params)
	})
}

func (c *Client) getOnce(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "source: parse base url")
	}
	u = u.JoinPath(path)
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "source: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "source: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, eris.Wrapf(ErrSourceDisabled, "source: http %d from %s", resp.StatusCode, u.Host)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("source: http %d from %s", resp.StatusCode, u.Host), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("source: http %d from %s", resp.StatusCode, u.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "source: read body"), 0)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "source: decode payload")
	}
	return payload, nil
}
