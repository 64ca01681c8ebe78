package dvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// complianceCutoff splits legacy from associated data: measurements
// before this date predate the ACTRIS data policy.
var complianceCutoff = types.NewDate(2023, time.January, 1)

// Config holds the DVAS federation client settings
type Config struct {
	// PortalURL is the DVAS metadata portal base URL.
	PortalURL string

	// AccessToken is the bearer token for Metadata/add.
	AccessToken string

	// Username and Password authenticate deletions (Basic auth).
	Username string
	Password string

	// PublicURL is the CLU public portal base for landing links.
	PublicURL string

	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// Client mirrors frozen product metadata to the ACTRIS DVAS federation
type Client struct {
	cfg    Config
	portal *portal.Client
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a DVAS client. The portal client is used to keep
// the CLU side's dvasId bookkeeping in sync with the federation.
func NewClient(cfg Config, portalClient *portal.Client) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	cfg.PortalURL = strings.TrimSuffix(cfg.PortalURL, "/")
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	return &Client{
		cfg:    cfg,
		portal: portalClient,
		http: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
			Timeout:   cfg.Timeout,
		},
		logger: log.WithComponent("dvas"),
	}
}

// Upload mirrors one frozen file to DVAS and records the returned
// dvasId on the portal. Files that are not federation material surface
// as skips, not failures. Any previous DVAS version of the same CLU
// uuid is deleted first so the federation holds exactly one record per
// file.
func (c *Client) Upload(ctx context.Context, file *types.ProductFile, variables []types.ProductVariable) error {
	if file.Volatile {
		return types.SkipTask("not uploading a volatile file to DVAS")
	}
	if file.Site.DvasID == nil {
		return types.SkipTask("site %s has no DVAS identifier", file.Site.ID)
	}
	if file.Product.ID == types.ProductCategorize || file.Product.ID == types.ProductCategorizeVoodo {
		return types.SkipTask("not uploading %s files to DVAS", file.Product.ID)
	}
	if !file.Product.IsGeophysical() {
		return types.SkipTask("not uploading non-geophysical product %s to DVAS", file.Product.ID)
	}
	if file.PID == nil {
		return fmt.Errorf("frozen file %s has no PID", file.UUID)
	}

	if file.DvasID != nil {
		if err := c.deleteByID(ctx, *file.DvasID); err != nil {
			return fmt.Errorf("failed to delete previous DVAS version: %w", err)
		}
		if err := c.portal.ClearDvasInfo(ctx, file.UUID); err != nil {
			return err
		}
	}

	doc := c.buildMetadata(file, variables)
	dvasID, err := c.add(ctx, doc)
	if err != nil {
		metrics.DvasUploads.WithLabelValues("failed").Inc()
		return err
	}
	metrics.DvasUploads.WithLabelValues("published").Inc()

	if err := c.portal.UpdateDvasInfo(ctx, file.UUID, time.Now().UTC(), dvasID); err != nil {
		return err
	}
	c.logger.Info().Str("uuid", file.UUID).Int64("dvas_id", dvasID).Msg("Uploaded metadata to DVAS")
	return nil
}

// Delete removes the file's federation record and clears the portal's
// dvasId bookkeeping.
func (c *Client) Delete(ctx context.Context, file *types.ProductFile) error {
	if file.DvasID == nil {
		return fmt.Errorf("file %s has no DVAS id", file.UUID)
	}
	if err := c.deleteByID(ctx, *file.DvasID); err != nil {
		return err
	}
	return c.portal.ClearDvasInfo(ctx, file.UUID)
}

// DeleteAll purges the full CLU provider namespace from the
// federation. Operator action; the portal's dvasId fields are left for
// the next upload round to rewrite.
func (c *Client) DeleteAll(ctx context.Context) error {
	return c.request(ctx, http.MethodDelete, c.cfg.PortalURL+"/Metadata/delete/all", nil, basicAuth, nil)
}

func (c *Client) deleteByID(ctx context.Context, id int64) error {
	url := fmt.Sprintf("%s/Metadata/delete/%d", c.cfg.PortalURL, id)
	return c.request(ctx, http.MethodDelete, url, nil, basicAuth, nil)
}

// add POSTs the metadata document and parses the created record's id
// off the Location header.
func (c *Client) add(ctx context.Context, doc *Metadata) (int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode DVAS metadata: %w", err)
	}

	var location string
	err = c.request(ctx, http.MethodPost, c.cfg.PortalURL+"/Metadata/add", payload, bearerAuth,
		func(resp *http.Response) error {
			location = resp.Header.Get("Location")
			return nil
		})
	if err != nil {
		return 0, err
	}
	if location == "" {
		return 0, fmt.Errorf("DVAS response has no Location header")
	}
	idStr := location[strings.LastIndex(location, "/")+1:]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse DVAS id from Location %q: %w", location, err)
	}
	return id, nil
}

type authMode int

const (
	bearerAuth authMode = iota
	basicAuth
)

func (c *Client) request(ctx context.Context, method, url string, payload []byte, auth authMode, onSuccess func(*http.Response) error) error {
	operation := func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		switch auth {
		case bearerAuth:
			req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		case basicAuth:
			req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("DVAS request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("DVAS returned %d for %s: %s", resp.StatusCode, url, strings.TrimSpace(string(body)))
			if resp.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}
		if onSuccess != nil {
			if err := onSuccess(resp); err != nil {
				return backoff.Permanent(err)
			}
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
}
