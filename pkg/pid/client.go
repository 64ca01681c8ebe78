package pid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/ncdf"
)

// testHandlePrefix mints recognizable fakes outside production
const testHandlePrefix = "https://hdl.handle.net/21.T12995/test."

// Config holds the PID service client settings
type Config struct {
	// ServiceURL is the handle-minting service base URL. May be empty
	// in test environments.
	ServiceURL string

	// PublicURL is the public portal base for landing pages,
	// e.g. https://cloudnet.fmi.fi
	PublicURL string

	// TestEnv mints deterministic fake handles instead of calling the
	// PID service.
	TestEnv bool

	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// Client mints persistent identifiers and stamps them into NetCDF
// global attributes.
type Client struct {
	serviceURL    string
	publicURL     string
	testEnv       bool
	http          *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	logger        zerolog.Logger
}

// Result is the identity triple of a finalized file
type Result struct {
	UUID       string
	PID        string
	LandingURL string
}

// NewClient creates a PID client
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
		serviceURL: strings.TrimSuffix(cfg.ServiceURL, "/"),
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
		testEnv:    cfg.TestEnv,
		http: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   cfg.Timeout,
		},
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		logger:        log.WithComponent("pid"),
	}
}

// AddPIDToFile reads the file's uuid, resolves a PID for it and writes
// the PID back as a global attribute. A non-empty existingPID is reused
// verbatim, which keeps MINOR patches and freeze re-runs idempotent;
// otherwise a handle is minted (or faked in test environments). The PID
// service returns the same handle for repeated (uuid, url) pairs, so
// the whole operation is idempotent.
func (c *Client) AddPIDToFile(ctx context.Context, path, existingPID string) (*Result, error) {
	ds, err := ncdf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	uuid, ok := ds.AttrString("file_uuid")
	if !ok || uuid == "" {
		return nil, fmt.Errorf("%s has no file_uuid attribute", path)
	}
	landingURL := c.LandingURL(uuid)

	pid := existingPID
	if pid == "" {
		pid, err = c.MintPID(ctx, uuid, landingURL)
		if err != nil {
			return nil, err
		}
	}

	ds.SetAttr("pid", pid)
	if err := ncdf.WriteFile(path, ds); err != nil {
		return nil, fmt.Errorf("failed to write pid into %s: %w", path, err)
	}
	return &Result{UUID: uuid, PID: pid, LandingURL: landingURL}, nil
}

// LandingURL returns the public landing page of a file uuid
func (c *Client) LandingURL(uuid string) string {
	return c.publicURL + "/file/" + uuid
}

// MintPID obtains a handle for (uuid, url). In test environments the
// handle is synthesized locally.
func (c *Client) MintPID(ctx context.Context, uuid, landingURL string) (string, error) {
	if c.testEnv {
		pid := testHandlePrefix + shortUUID(uuid)
		c.logger.Debug().Str("pid", pid).Msg("Minted fake test PID")
		metrics.PidsMinted.Inc()
		return pid, nil
	}
	if c.serviceURL == "" {
		return "", fmt.Errorf("PID_SERVICE_URL is not set and not running in test environment")
	}

	payload, err := json.Marshal(map[string]string{
		"type": "file",
		"uuid": uuid,
		"url":  landingURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode PID request: %w", err)
	}

	reqURL := c.serviceURL + "/pid/"
	var resp struct {
		PID string `json:"pid"`
	}
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("PID service request failed: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
			err := fmt.Errorf("PID service returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
			if res.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode PID response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return "", fmt.Errorf("failed to mint PID for %s: %w", uuid, err)
	}
	if resp.PID == "" {
		return "", fmt.Errorf("PID service returned an empty handle for %s", uuid)
	}
	metrics.PidsMinted.Inc()
	return resp.PID, nil
}

func shortUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}
