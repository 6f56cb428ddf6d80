package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	apiKeyHeader     = "X-MICROCMS-API-KEY"
	defaultPageSize  = 100
	defaultPageDelay = time.Second
	maxErrorBodySize = 512
)

// ErrMissingAPIKey is returned when a client is used without credentials
var ErrMissingAPIKey = errors.New("missing CMS API key")

// Client lists the content of a CMS endpoint
type Client interface {
	GetAllContents(ctx context.Context, endpoint string) ([]Entry, error)
}

// ListResponse is one page of a list endpoint
type ListResponse struct {
	Contents   []Entry `json:"contents"`
	TotalCount int     `json:"totalCount"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

// APIError is returned when the CMS answers with a non-2xx status
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CMS endpoint %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// HTTPClient talks to the microCMS REST API of a single service domain
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pageSize   int
	pageDelay  time.Duration
}

// Option customizes an HTTPClient
type Option func(*HTTPClient)

// WithBaseURL overrides the API base URL derived from the service domain
func WithBaseURL(baseURL string) Option {
	return func(c *HTTPClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *HTTPClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithPageSize sets the number of entries requested per page
func WithPageSize(size int) Option {
	return func(c *HTTPClient) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithPageDelay sets the pause between consecutive page requests
func WithPageDelay(delay time.Duration) Option {
	return func(c *HTTPClient) {
		if delay >= 0 {
			c.pageDelay = delay
		}
	}
}

// NewClient creates a client for https://<serviceDomain>.microcms.io/api/v1
func NewClient(serviceDomain, apiKey string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    fmt.Sprintf("https://%s.microcms.io/api/v1", serviceDomain),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		pageSize:   defaultPageSize,
		pageDelay:  defaultPageDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetList fetches a single page of an endpoint
func (c *HTTPClient) GetList(ctx context.Context, endpoint string, limit, offset int) (*ListResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(endpoint), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close CMS response body", "endpoint", endpoint, "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response of %s: %w", endpoint, err)
	}
	return &page, nil
}

// GetAllContents reads the total count of an endpoint and then pages through
// it until every entry has been collected. Entries keep the order the API
// returned them in.
func (c *HTTPClient) GetAllContents(ctx context.Context, endpoint string) ([]Entry, error) {
	head, err := c.GetList(ctx, endpoint, 0, 0)
	if err != nil {
		return nil, err
	}

	total := head.TotalCount
	contents := make([]Entry, 0, total)
	slog.Debug("listing CMS endpoint", "endpoint", endpoint, "total_count", total)

	offset := 0
	for len(contents) < total {
		page, err := c.GetList(ctx, endpoint, c.pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page.Contents) == 0 {
			// The endpoint shrank while paging
			break
		}
		contents = append(contents, page.Contents...)
		offset += c.pageSize

		if len(contents) < total && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}

	return contents, nil
}
