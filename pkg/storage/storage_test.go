package storage

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/types"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// fakeStore is an in-memory object store facade
type fakeStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	putHeaders map[string]http.Header
	putLengths map[string]int64
	failures   int // pending 503 responses
	sizeOffset int64
	srv        *httptest.Server
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	f := &fakeStore{
		objects:    make(map[string][]byte),
		putHeaders: make(map[string]http.Header),
		putLengths: make(map[string]int64),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[key] = body
		f.putHeaders[key] = r.Header.Clone()
		f.putLengths[key] = r.ContentLength
		resp := UploadResult{Size: int64(len(body)) + f.sizeOffset, Version: "v1"}
		json.NewEncoder(w).Encode(resp)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(body)
	case http.MethodDelete:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.objects, key)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeStore) set(bucket, key string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = body
}

func (f *fakeStore) object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[bucket+"/"+key]
	return body, ok
}

func (f *fakeStore) header(bucket, key string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putHeaders[bucket+"/"+key]
}

func (f *fakeStore) length(bucket, key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putLengths[bucket+"/"+key]
}

func (f *fakeStore) client() *Client {
	return NewClient(Config{
		BaseURL:       f.srv.URL,
		Username:      "cloudnet",
		Password:      "hunter2",
		RetryInterval: time.Millisecond,
		ChecksumGrace: 15 * time.Minute,
	})
}

func writeTemp(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, body, 0644))
	return path
}

func TestProductBucket(t *testing.T) {
	assert.Equal(t, "cloudnet-product-volatile", ProductBucket(true))
	assert.Equal(t, "cloudnet-product", ProductBucket(false))
}

func TestUploadProduct(t *testing.T) {
	fake := newFakeStore(t)
	body := []byte("netcdf bytes for radar")
	path := writeTemp(t, "20201022_bucharest_radar_abcd1234.nc", body)

	result, err := fake.client().UploadProduct(context.Background(), path,
		"20201022_bucharest_radar_abcd1234.nc", true)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), result.Size)
	assert.Equal(t, "v1", result.Version)

	stored, ok := fake.object("cloudnet-product-volatile", "20201022_bucharest_radar_abcd1234.nc")
	require.True(t, ok)
	assert.Equal(t, body, stored)

	headers := fake.header("cloudnet-product-volatile", "20201022_bucharest_radar_abcd1234.nc")
	assert.NotEmpty(t, headers.Get("Content-MD5"))
	assert.NotEmpty(t, headers.Get("Authorization"))
	assert.Equal(t, int64(len(body)),
		fake.length("cloudnet-product-volatile", "20201022_bucharest_radar_abcd1234.nc"),
		"uploads must declare their length instead of chunking")
}

func TestUploadProductStableBucket(t *testing.T) {
	fake := newFakeStore(t)
	path := writeTemp(t, "frozen.nc", []byte("frozen contents"))

	_, err := fake.client().UploadProduct(context.Background(), path, "frozen.nc", false)
	require.NoError(t, err)
	_, ok := fake.object("cloudnet-product", "frozen.nc")
	assert.True(t, ok)
}

func TestUploadSizeEchoMismatch(t *testing.T) {
	fake := newFakeStore(t)
	fake.sizeOffset = 1
	path := writeTemp(t, "short.nc", []byte("contents"))

	_, err := fake.client().UploadProduct(context.Background(), path, "short.nc", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected")
}

func TestUploadRetriesTransientErrors(t *testing.T) {
	fake := newFakeStore(t)
	fake.failures = 2
	body := []byte("retried upload")
	path := writeTemp(t, "retry.nc", body)

	result, err := fake.client().UploadProduct(context.Background(), path, "retry.nc", true)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), result.Size)
	stored, _ := fake.object("cloudnet-product-volatile", "retry.nc")
	assert.Equal(t, body, stored, "retried attempts must resend the full body")
}

func TestDownloadProduct(t *testing.T) {
	fake := newFakeStore(t)
	body := []byte("stored product bytes")
	fake.set("cloudnet-product-volatile", "file.nc", body)

	file := &types.ProductFile{
		Filename:  "file.nc",
		Checksum:  sha256Hex(body),
		Size:      int64(len(body)),
		Volatile:  true,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	dir := t.TempDir()
	path, err := fake.client().DownloadProduct(context.Background(), file, dir)
	require.NoError(t, err)

	downloaded, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, downloaded)
}

func TestDownloadProductMismatchWithinGrace(t *testing.T) {
	fake := newFakeStore(t)
	body := []byte("fresh bytes the portal has not hashed yet")
	fake.set("cloudnet-product-volatile", "fresh.nc", body)

	file := &types.ProductFile{
		Filename:  "fresh.nc",
		Checksum:  "0000000000000000000000000000000000000000000000000000000000000000",
		Size:      int64(len(body)),
		Volatile:  true,
		UpdatedAt: time.Now(),
	}
	path, err := fake.client().DownloadProduct(context.Background(), file, t.TempDir())
	require.NoError(t, err, "mismatch on a just-updated file is tolerated")
	assert.FileExists(t, path)
}

func TestDownloadProductMismatchOutsideGrace(t *testing.T) {
	fake := newFakeStore(t)
	body := []byte("stale bytes")
	fake.set("cloudnet-product", "stale.nc", body)

	file := &types.ProductFile{
		Filename:  "stale.nc",
		Checksum:  "0000000000000000000000000000000000000000000000000000000000000000",
		Size:      int64(len(body)),
		Volatile:  false,
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}
	dir := t.TempDir()
	_, err := fake.client().DownloadProduct(context.Background(), file, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match metadata")
	assert.NoFileExists(t, filepath.Join(dir, "stale.nc"), "mismatched download must not linger")
}

func TestDownloadProducts(t *testing.T) {
	fake := newFakeStore(t)
	files := make([]types.ProductFile, 3)
	for i := range files {
		body := []byte(fmt.Sprintf("product body %d", i))
		name := fmt.Sprintf("file-%d.nc", i)
		fake.set("cloudnet-product", name, body)
		files[i] = types.ProductFile{
			Filename:  name,
			Checksum:  sha256Hex(body),
			Size:      int64(len(body)),
			UpdatedAt: time.Now().Add(-time.Hour),
		}
	}

	paths, err := fake.client().DownloadProducts(context.Background(), files, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for i, path := range paths {
		assert.Equal(t, files[i].Filename, filepath.Base(path), "paths stay aligned with metadata")
	}
}

func TestDownloadRawData(t *testing.T) {
	fake := newFakeStore(t)
	bodyA := []byte("201022.LV1 contents")
	bodyB := []byte("201022_2.LV1 contents")
	fake.set("cloudnet-upload", "bucharest/raw-a/201022.LV1", bodyA)
	fake.set("cloudnet-upload", "bucharest/raw-b/201022_2.LV1", bodyB)

	files := []types.RawFile{
		{
			UUID: "raw-aaaa-1111", Filename: "201022.LV1",
			Checksum: md5Hex(bodyA), Size: int64(len(bodyA)),
			S3Key:          "bucharest/raw-a/201022.LV1",
			InstrumentInfo: &types.InstrumentInfo{PID: "https://hdl.handle.net/123/b.1"},
		},
		{
			UUID: "raw-bbbb-2222", Filename: "201022_2.LV1",
			Checksum: md5Hex(bodyB), Size: int64(len(bodyB)),
			S3Key:          "bucharest/raw-b/201022_2.LV1",
			InstrumentInfo: &types.InstrumentInfo{PID: "https://hdl.handle.net/123/b.1"},
		},
	}

	result, err := fake.client().DownloadRawData(context.Background(), files, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw-aaaa-1111", "raw-bbbb-2222"}, result.UUIDs)
	assert.Equal(t, []string{"https://hdl.handle.net/123/b.1", "https://hdl.handle.net/123/b.1"},
		result.InstrumentPIDs)
	for i, path := range result.Paths {
		body, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, md5Hex(body), files[i].Checksum)
	}
}

func TestDownloadRawDataDuplicateFilenames(t *testing.T) {
	fake := newFakeStore(t)
	bodyA := []byte("first upload")
	bodyB := []byte("second upload, same name")
	fake.set("cloudnet-upload", "site/a/data.nc", bodyA)
	fake.set("cloudnet-upload", "site/b/data.nc", bodyB)

	files := []types.RawFile{
		{UUID: "aaaaaaaa-1", Filename: "data.nc", Checksum: md5Hex(bodyA),
			Size: int64(len(bodyA)), S3Key: "site/a/data.nc"},
		{UUID: "bbbbbbbb-2", Filename: "data.nc", Checksum: md5Hex(bodyB),
			Size: int64(len(bodyB)), S3Key: "site/b/data.nc"},
	}

	dir := t.TempDir()
	dl, err := fake.client().DownloadRawData(context.Background(), files, dir)
	require.NoError(t, err)
	require.Len(t, dl.Paths, 2)

	// The first occurrence keeps its name; the repeat gets a uuid prefix.
	assert.Equal(t, filepath.Join(dir, "data.nc"), dl.Paths[0])
	assert.Equal(t, filepath.Join(dir, "bbbbbbbb_data.nc"), dl.Paths[1])

	gotA, err := os.ReadFile(dl.Paths[0])
	require.NoError(t, err)
	assert.Equal(t, bodyA, gotA)
	gotB, err := os.ReadFile(dl.Paths[1])
	require.NoError(t, err)
	assert.Equal(t, bodyB, gotB)
}

func TestDownloadRawDataChecksumMismatch(t *testing.T) {
	fake := newFakeStore(t)
	fake.set("cloudnet-upload", "site/raw/file.lv1", []byte("tampered"))

	files := []types.RawFile{{
		UUID: "raw-1", Filename: "file.lv1",
		Checksum: md5Hex([]byte("original")), Size: 8,
		S3Key: "site/raw/file.lv1",
	}}
	_, err := fake.client().DownloadRawData(context.Background(), files, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match metadata")
}

func TestDeleteVolatileProduct(t *testing.T) {
	fake := newFakeStore(t)
	fake.set("cloudnet-product-volatile", "old.nc", []byte("volatile"))

	client := fake.client()
	require.NoError(t, client.DeleteVolatileProduct(context.Background(), "old.nc"))
	_, ok := fake.object("cloudnet-product-volatile", "old.nc")
	assert.False(t, ok)

	// Idempotent: a second delete finds nothing and still succeeds
	require.NoError(t, client.DeleteVolatileProduct(context.Background(), "old.nc"))
}

func TestUploadImage(t *testing.T) {
	fake := newFakeStore(t)
	body := []byte("png bytes")
	path := writeTemp(t, "plot.png", body)

	err := fake.client().UploadImage(context.Background(), path, "20201022_bucharest_radar-abcd1234-Zh.png")
	require.NoError(t, err)
	stored, _ := fake.object("cloudnet-img", "20201022_bucharest_radar-abcd1234-Zh.png")
	assert.Equal(t, body, stored)
}
