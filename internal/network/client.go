// File: internal/network/client.go
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Client performs single GET exchanges for the fetcher. It owns no retry
// policy; a transport failure or a timeout is returned as an error and every
// HTTP status, including 4xx and 5xx, comes back as a response.
//
// This client is safe for concurrent use by multiple goroutines.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	maxBytes  int64
	logger    *zap.Logger
}

var _ schemas.HTTPFetcher = (*Client)(nil)

// NewClient creates a Client from config, nil meaning defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := config.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &Client{
		http:      NewHTTPClient(config),
		userAgent: config.UserAgent,
		headers:   config.DefaultHeaders,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Get issues a GET to rawURL with params merged into its query string. A
// positive timeout bounds the whole exchange including the body read.
func (c *Client) Get(ctx context.Context, rawURL string, params, headers map[string]string, timeout time.Duration) (*schemas.HTTPResponse, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := target.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.5")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		c.logger.Warn("Response body truncated",
			zap.String("host", target.Host),
			zap.Int64("limit", c.maxBytes))
		body = body[:c.maxBytes]
	}

	return &schemas.HTTPResponse{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		RetryAfter:  parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}, nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
