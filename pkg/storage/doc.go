/*
Package storage provides the object store client for product, raw and
image blobs.

The engine's artifacts live in an S3-compatible store behind a small
HTTP facade. The client performs content-addressed uploads (Content-MD5
header, size echo check) and verified downloads (size + digest against
the portal metadata). Bucket selection is a pure function of the
artifact class and volatility.

# Architecture

	┌─────────────────── OBJECT STORE ────────────────────┐
	│                                                      │
	│  Buckets                                             │
	│    cloudnet-product           frozen products        │
	│    cloudnet-product-volatile  volatile products      │
	│    cloudnet-upload            raw instrument/model   │
	│    cloudnet-img               rendered plots         │
	│                                                      │
	│  PUT  {bucket}/{key}  Content-MD5  → {size,version}  │
	│  GET  {bucket}/{key}  stream + SHA-256/MD5 verify    │
	│  DELETE cloudnet-product-volatile/{key}   (freeze)   │
	│                                                      │
	│  Retries: exponential backoff on 5xx and transport   │
	│  errors; digest mismatches never retry.              │
	│                                                      │
	└──────────────────────────────────────────────────────┘

# Usage

	client := storage.NewClient(storage.Config{
		BaseURL:       cfg.StorageServiceURL,
		Username:      cfg.StorageServiceUser,
		Password:      cfg.StorageServicePassword,
		ChecksumGrace: cfg.Tunables.ChecksumGrace,
	})

	result, err := client.UploadProduct(ctx, localPath, filename, true)
	...
	path, err := client.DownloadProduct(ctx, &file, tempDir)

# Checksum Verification

Downloads recompute digests while streaming. Product files verify
SHA-256, raw files MD5. A product mismatch within ChecksumGrace of the
file's last metadata update logs a warning and keeps the file (the
backend checksum lags for just-uploaded objects); outside the window it
fails. Raw objects are immutable, so their mismatches always fail.

# Integration Points

  - pkg/processor: product uploads/downloads, image uploads
  - pkg/worker: raw-data downloads, freeze re-upload + volatile delete
  - pkg/metrics: request counters, byte counters, mismatch counter

# Thread Safety

The client is immutable after construction and safe for concurrent
use. DownloadProducts and DownloadRawData fan out internally with a
bounded worker group.
*/
package storage
