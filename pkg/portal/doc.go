/*
Package portal provides the typed HTTP client for the Cloudnet data
portal: metadata lookups, product and raw-file queries, mutations, and
the task queue operations.

The portal is the single source of truth for sites, instruments,
products, file records and tasks. Every component of the engine that
needs any of those goes through this client; nothing else in the
codebase speaks HTTP to the portal.

# Architecture

	┌──────────────────── PORTAL CLIENT ────────────────────┐
	│                                                        │
	│  Typed operations (metadata.go, queue.go)              │
	│      Sites/Products/Models/Instruments  (reference)    │
	│      Files/ModelFiles/RawFiles          (queries)      │
	│      PutFile/PutVisualization/Quality   (mutations)    │
	│      ReceiveTask/Complete/Fail/Publish  (queue)        │
	│              │                                         │
	│              ▼                                         │
	│  do() ── JSON encode ─→ HTTP ─→ decode                 │
	│     │                                                  │
	│     ├─ pooled transport (cleanhttp)                    │
	│     ├─ exponential backoff on 5xx / transport errors   │
	│     ├─ 4xx surface immediately as *HTTPError           │
	│     └─ Basic auth on mutating requests                 │
	│                                                        │
	└────────────────────────────────────────────────────────┘

# Usage

	client := portal.NewClient(portal.Config{
		BaseURL:  cfg.DataportalURL,
		Username: cfg.DataSubmissionUsername,
		Password: cfg.DataSubmissionPassword,
	})

	task, err := client.ReceiveTask(ctx)
	if err != nil {
		return err
	}
	if task == nil {
		// queue empty, poll again later
	}

Queries use zero-value-omitting structs instead of raw url.Values:

	volatile := true
	files, err := client.Files(ctx, portal.FileQuery{
		Site:     "bucharest",
		Date:     &date,
		Product:  "radar",
		Volatile: &volatile,
	})

# Error Handling

Transport errors and HTTP 5xx are retried with bounded exponential
backoff; what ultimately comes back is the last *HTTPError or transport
error. HTTP 4xx never retry. Lookups where absence is a legitimate
answer (NominalInstrument, Calibration) translate 404 to (nil, nil);
everywhere else a 404 is an error for the caller to classify.

# Integration Points

  - pkg/processor: metadata lookups, file queries, mutations
  - pkg/worker: queue receive/complete/fail, follow-up publish
  - pkg/cron: freeze and QC candidate queries, task publish
  - pkg/dvas: dvasId bookkeeping via UpdateDvasInfo/ClearDvasInfo
  - pkg/api: Ping for the readiness probe
  - pkg/metrics: request counters and latency histograms

# Thread Safety

The client is immutable after construction and safe for concurrent use.
*/
package portal
