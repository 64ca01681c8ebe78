/*
Package metrics provides Prometheus metrics for the processing engine.

All metrics are package-level collectors registered in init() and
served by pkg/api on /metrics. Clients (portal, storage, pid, dvas)
instrument their own requests directly; task lifecycle counts come from
the Recorder, which subscribes to the event broker so the worker loop
itself stays free of metric calls.

# Metric Catalog

Task lifecycle:

	cloudnet_tasks_total{type,outcome}        handled tasks (completed/skipped/failed)
	cloudnet_task_duration_seconds{type}      wall time per task
	cloudnet_tasks_published_total{type}      follow-up and cron enqueues
	cloudnet_queue_empty_polls_total          receives that returned no task

Collaborator traffic:

	cloudnet_portal_requests_total{method,status}
	cloudnet_portal_request_duration_seconds{method}
	cloudnet_storage_requests_total{operation,status}
	cloudnet_storage_upload_bytes_total{bucket}
	cloudnet_storage_download_bytes_total{bucket}
	cloudnet_storage_checksum_mismatches_total
	cloudnet_pids_minted_total
	cloudnet_dvas_uploads_total{outcome}

Science toolbox:

	cloudnet_transform_duration_seconds{product}

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.TransformDuration, productID)

Lifecycle counting via the broker:

	recorder := metrics.NewRecorder(broker)
	recorder.Start()
	defer recorder.Stop()

# Integration Points

  - pkg/portal, pkg/storage, pkg/pid, pkg/dvas: direct instrumentation
  - pkg/events: Recorder subscription
  - pkg/api: Handler() on /metrics
*/
package metrics
