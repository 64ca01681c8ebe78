package portal

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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
)

const maxErrorBody = 4096

// HTTPError is a non-2xx response from the data portal. 4xx responses
// surface immediately; 5xx responses are retried first and returned
// only after the retry budget is spent.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("portal returned %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("portal returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsNotFound reports whether err is an HTTP 404 from the portal
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Config holds the portal client settings
type Config struct {
	// BaseURL is the portal API base, e.g. https://cloudnet.fmi.fi/api
	// without the /api suffix; paths passed to the client include it.
	BaseURL string

	// Username and Password authenticate mutating requests (Basic auth).
	Username string
	Password string

	// Timeout bounds a single HTTP attempt. Zero means 2 minutes.
	Timeout time.Duration

	// MaxRetries caps retries after the first attempt. Zero means 5.
	MaxRetries uint64

	// RetryInterval is the initial backoff delay. Zero means 500ms.
	RetryInterval time.Duration
}

// Client is the sole HTTP speaker to the data portal. All metadata and
// queue operations of the engine route through it.
type Client struct {
	baseURL       string
	username      string
	password      string
	http          *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	logger        zerolog.Logger
}

// NewClient creates a portal client with a pooled transport and bounded
// exponential retry on transient failures.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   cfg.Timeout,
		},
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		logger:        log.WithComponent("portal"),
	}
}

// Get performs a GET and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, query, nil, out, false)
	return err
}

// Post performs an authenticated POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	_, err := c.do(ctx, http.MethodPost, path, nil, body, out, true)
	return err
}

// Put performs an authenticated PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	_, err := c.do(ctx, http.MethodPut, path, nil, body, out, true)
	return err
}

// Delete performs an authenticated DELETE
func (c *Client) Delete(ctx context.Context, path string, query url.Values) error {
	_, err := c.do(ctx, http.MethodDelete, path, query, nil, nil, true)
	return err
}

// do runs one request with retries and returns the final status code.
// The body is marshalled once so retries resend identical bytes. 5xx
// and transport errors retry with exponential backoff; 4xx are
// permanent. A 204 response skips decoding.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, auth bool) (int, error) {
	reqURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var status int
	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth && c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		timer := metrics.NewTimer()
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.PortalRequests.WithLabelValues(method, "error").Inc()
			return fmt.Errorf("portal request failed: %w", err)
		}
		defer resp.Body.Close()
		timer.ObserveDurationVec(metrics.PortalRequestDuration, method)
		metrics.PortalRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

		status = resp.StatusCode
		if resp.StatusCode >= http.StatusBadRequest {
			httpErr := c.readError(resp, reqURL)
			if resp.StatusCode >= http.StatusInternalServerError {
				c.logger.Warn().Int("status", resp.StatusCode).Str("url", reqURL).Msg("Portal request failed, retrying")
				return httpErr
			}
			return backoff.Permanent(httpErr)
		}

		if out != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode portal response from %s: %w", reqURL, err))
			}
			return nil
		}
		// Drain so the pooled connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	return status, err
}

func (c *Client) readError(resp *http.Response, reqURL string) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		URL:        reqURL,
		Body:       strings.TrimSpace(string(body)),
	}
}
