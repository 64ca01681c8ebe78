package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

// Bucket names of the object store facade
const (
	BucketProduct         = "cloudnet-product"
	BucketProductVolatile = "cloudnet-product-volatile"
	BucketUpload          = "cloudnet-upload"
	BucketImg             = "cloudnet-img"
)

// downloadConcurrency bounds parallel multi-file downloads
const downloadConcurrency = 4

// ProductBucket selects the bucket by volatility
func ProductBucket(volatile bool) string {
	if volatile {
		return BucketProductVolatile
	}
	return BucketProduct
}

type apiError struct {
	status int
	url    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("object store returned %d for %s", e.status, e.url)
}

// Config holds the object store client settings
type Config struct {
	BaseURL  string
	Username string
	Password string

	// Timeout bounds a single HTTP attempt. Zero means 5 minutes;
	// product files run to hundreds of megabytes.
	Timeout time.Duration

	// MaxRetries caps retries after the first attempt. Zero means 5.
	MaxRetries uint64

	// RetryInterval is the initial backoff delay. Zero means 500ms.
	RetryInterval time.Duration

	// ChecksumGrace is the window after a file's metadata update during
	// which a download digest mismatch is tolerated with a warning. The
	// backend checksum may lag for just-uploaded files. Outside the
	// window a mismatch fails the download.
	ChecksumGrace time.Duration
}

// Client performs content-addressed blob I/O against the S3-compatible
// store facade. Uploads carry a Content-MD5 header; downloads verify
// size and checksum against the portal metadata.
type Client struct {
	baseURL       string
	username      string
	password      string
	http          *http.Client
	maxRetries    uint64
	retryInterval time.Duration
	checksumGrace time.Duration
	logger        zerolog.Logger
}

// UploadResult is the facade's response to a PUT
type UploadResult struct {
	Size    int64  `json:"size"`
	Version string `json:"version,omitempty"`
}

// RawDownload is the result of a raw-file batch download. The slices
// are aligned with the requested metadata list.
type RawDownload struct {
	Paths          []string
	UUIDs          []string
	InstrumentPIDs []string
}

// NewClient creates an object store client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
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
		checksumGrace: cfg.ChecksumGrace,
		logger:        log.WithComponent("storage"),
	}
}

// UploadProduct streams a product file into the bucket selected by
// volatility and returns the facade's size and version id.
func (c *Client) UploadProduct(ctx context.Context, localPath, s3key string, volatile bool) (*UploadResult, error) {
	return c.put(ctx, ProductBucket(volatile), s3key, localPath)
}

// UploadImage uploads a rendered plot to the image bucket
func (c *Client) UploadImage(ctx context.Context, localPath, s3key string) error {
	_, err := c.put(ctx, BucketImg, s3key, localPath)
	return err
}

// DownloadProduct fetches a product file into dir, verifying its size
// and SHA-256 digest against the portal metadata. Returns the local
// path.
func (c *Client) DownloadProduct(ctx context.Context, file *types.ProductFile, dir string) (string, error) {
	dest := filepath.Join(dir, file.Filename)
	size, sha, _, err := c.get(ctx, ProductBucket(file.Volatile), file.Filename, dest)
	if err != nil {
		return "", err
	}
	if size == file.Size && sha == file.Checksum {
		return dest, nil
	}

	metrics.ChecksumMismatches.Inc()
	if c.recentlyUpdated(file.UpdatedAt) {
		c.logger.Warn().
			Str("filename", file.Filename).
			Int64("size", size).
			Int64("expected_size", file.Size).
			Msg("Downloaded product does not match metadata yet, backend checksum may lag")
		return dest, nil
	}
	_ = os.Remove(dest)
	return "", fmt.Errorf("downloaded %s does not match metadata: size %d/%d, sha256 %s/%s",
		file.Filename, size, file.Size, sha, file.Checksum)
}

// DownloadProducts fetches several product files in parallel
func (c *Client) DownloadProducts(ctx context.Context, files []types.ProductFile, dir string) ([]string, error) {
	paths := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i := range files {
		g.Go(func() error {
			path, err := c.DownloadProduct(gctx, &files[i], dir)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// DownloadRawData fetches raw uploads into dir, verifying each file's
// MD5 digest. Raw objects are immutable, so a mismatch always fails.
func (c *Client) DownloadRawData(ctx context.Context, files []types.RawFile, dir string) (*RawDownload, error) {
	result := &RawDownload{
		Paths:          make([]string, len(files)),
		UUIDs:          make([]string, len(files)),
		InstrumentPIDs: make([]string, len(files)),
	}
	dests := rawDestinations(files, dir)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for i := range files {
		g.Go(func() error {
			file := &files[i]
			dest := dests[i]
			size, _, md5sum, err := c.get(gctx, BucketUpload, file.S3Key, dest)
			if err != nil {
				return err
			}
			if size != file.Size || md5sum != file.Checksum {
				metrics.ChecksumMismatches.Inc()
				_ = os.Remove(dest)
				return fmt.Errorf("downloaded raw file %s does not match metadata: size %d/%d, md5 %s/%s",
					file.Filename, size, file.Size, md5sum, file.Checksum)
			}
			result.Paths[i] = dest
			result.UUIDs[i] = file.UUID
			if file.InstrumentInfo != nil {
				result.InstrumentPIDs[i] = file.InstrumentInfo.PID
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// rawDestinations maps each raw file onto a unique local path. Raw
// filenames can repeat across instruments on the same day, so repeats
// get a uuid prefix. Computed up front to keep the parallel downloads
// free of filesystem probing.
func rawDestinations(files []types.RawFile, dir string) []string {
	dests := make([]string, len(files))
	seen := make(map[string]bool, len(files))
	for i := range files {
		name := files[i].Filename
		if seen[name] {
			prefix := files[i].UUID
			if len(prefix) > 8 {
				prefix = prefix[:8]
			}
			name = prefix + "_" + name
		}
		seen[name] = true
		dests[i] = filepath.Join(dir, name)
	}
	return dests
}

// DeleteVolatileProduct removes a volatile object after a freeze moved
// its contents to the stable bucket. A 404 is tolerated so a re-run of
// an interrupted freeze can finish.
func (c *Client) DeleteVolatileProduct(ctx context.Context, s3key string) error {
	reqURL := c.objectURL(BucketProductVolatile, s3key)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setAuth(req)
		resp, err := c.http.Do(req)
		if err != nil {
			metrics.StorageRequests.WithLabelValues("delete", "error").Inc()
			return fmt.Errorf("object store request failed: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.StorageRequests.WithLabelValues("delete", strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			c.logger.Warn().Str("s3key", s3key).Msg("Volatile object already gone")
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return &apiError{status: resp.StatusCode, url: reqURL}
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(&apiError{status: resp.StatusCode, url: reqURL})
		}
		return nil
	}
	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		return fmt.Errorf("failed to delete volatile object %s: %w", s3key, err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, bucket, key, localPath string) (*UploadResult, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	digest := md5.New()
	if _, err := io.Copy(digest, file); err != nil {
		return nil, fmt.Errorf("failed to checksum %s: %w", localPath, err)
	}
	contentMD5 := base64.StdEncoding.EncodeToString(digest.Sum(nil))

	reqURL := c.objectURL(bucket, key)
	var result UploadResult
	operation := func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to rewind %s: %w", localPath, err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, file)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.ContentLength = info.Size()
		req.Header.Set("Content-MD5", contentMD5)
		c.setAuth(req)

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.StorageRequests.WithLabelValues("upload", "error").Inc()
			return fmt.Errorf("object store request failed: %w", err)
		}
		defer resp.Body.Close()
		metrics.StorageRequests.WithLabelValues("upload", strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return &apiError{status: resp.StatusCode, url: reqURL}
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(&apiError{status: resp.StatusCode, url: reqURL})
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode upload response: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to upload %s to %s/%s: %w", localPath, bucket, key, err)
	}

	if result.Size != info.Size() {
		return nil, fmt.Errorf("object store stored %d bytes of %s, expected %d", result.Size, key, info.Size())
	}
	metrics.StorageUploadBytes.WithLabelValues(bucket).Add(float64(info.Size()))
	return &result, nil
}

// get streams an object to destPath and returns the byte count plus
// hex SHA-256 and MD5 digests. Each retry restarts the file from zero.
func (c *Client) get(ctx context.Context, bucket, key, destPath string) (int64, string, string, error) {
	reqURL := c.objectURL(bucket, key)
	var (
		written int64
		shaHex  string
		md5Hex  string
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setAuth(req)

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.StorageRequests.WithLabelValues("download", "error").Inc()
			return fmt.Errorf("object store request failed: %w", err)
		}
		defer resp.Body.Close()
		metrics.StorageRequests.WithLabelValues("download", strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return &apiError{status: resp.StatusCode, url: reqURL}
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(&apiError{status: resp.StatusCode, url: reqURL})
		}

		dest, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create %s: %w", destPath, err))
		}
		defer dest.Close()

		sha := sha256.New()
		sum := md5.New()
		written, err = io.Copy(io.MultiWriter(dest, sha, sum), resp.Body)
		if err != nil {
			return fmt.Errorf("failed to stream %s: %w", key, err)
		}
		shaHex = digestHex(sha)
		md5Hex = digestHex(sum)
		return nil
	}
	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		return 0, "", "", fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	metrics.StorageDownloadBytes.WithLabelValues(bucket).Add(float64(written))
	return written, shaHex, md5Hex, nil
}

func (c *Client) objectURL(bucket, key string) string {
	return c.baseURL + "/" + bucket + "/" + strings.TrimPrefix(key, "/")
}

func (c *Client) setAuth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) backoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)
}

func (c *Client) recentlyUpdated(updatedAt time.Time) bool {
	if c.checksumGrace <= 0 {
		return false
	}
	// Without a timestamp we cannot date the mismatch, so tolerate it
	if updatedAt.IsZero() {
		return true
	}
	return time.Since(updatedAt) < c.checksumGrace
}

func digestHex(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
