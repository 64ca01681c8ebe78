package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_tasks_total",
			Help: "Total number of handled tasks by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudnet_task_duration_seconds",
			Help:    "Task handling duration in seconds by task type",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	TasksPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_tasks_published_total",
			Help: "Total number of published follow-up and cron tasks by type",
		},
		[]string{"type"},
	)

	QueueEmptyPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudnet_queue_empty_polls_total",
			Help: "Total number of queue receives that returned no task",
		},
	)

	// Portal metrics
	PortalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_portal_requests_total",
			Help: "Total number of data portal API requests by method and status",
		},
		[]string{"method", "status"},
	)

	PortalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudnet_portal_request_duration_seconds",
			Help:    "Data portal request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Object store metrics
	StorageRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_storage_requests_total",
			Help: "Total number of object store requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	StorageUploadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_storage_upload_bytes_total",
			Help: "Total bytes uploaded to the object store by bucket",
		},
		[]string{"bucket"},
	)

	StorageDownloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_storage_download_bytes_total",
			Help: "Total bytes downloaded from the object store by bucket",
		},
		[]string{"bucket"},
	)

	ChecksumMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudnet_storage_checksum_mismatches_total",
			Help: "Total number of downloads whose checksum differed from metadata",
		},
	)

	// Collaborator metrics
	PidsMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudnet_pids_minted_total",
			Help: "Total number of persistent identifiers minted",
		},
	)

	DvasUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudnet_dvas_uploads_total",
			Help: "Total number of DVAS federation uploads by outcome",
		},
		[]string{"outcome"},
	)

	// Science toolbox metrics
	TransformDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudnet_transform_duration_seconds",
			Help:    "Scientific transform duration in seconds by product",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"product"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(TasksPublished)
	prometheus.MustRegister(QueueEmptyPolls)
	prometheus.MustRegister(PortalRequests)
	prometheus.MustRegister(PortalRequestDuration)
	prometheus.MustRegister(StorageRequests)
	prometheus.MustRegister(StorageUploadBytes)
	prometheus.MustRegister(StorageDownloadBytes)
	prometheus.MustRegister(ChecksumMismatches)
	prometheus.MustRegister(PidsMinted)
	prometheus.MustRegister(DvasUploads)
	prometheus.MustRegister(TransformDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
