package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rf2_release_build_info",
			Help: "Build information of the RF2 release engine",
		},
		[]string{"version", "commit", "date"},
	)

	RowsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf2_release_rows_ingested_total",
			Help: "Total number of rows stored, by backend",
		},
		[]string{"backend"},
	)

	RowsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf2_release_rows_skipped_total",
			Help: "Total number of rows skipped during ingestion, by reason",
		},
		[]string{"backend", "reason"},
	)

	RowsExportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf2_release_rows_exported_total",
			Help: "Total number of rows written, by output",
		},
		[]string{"output"},
	)

	RowsExcludedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rf2_release_rows_excluded_total",
			Help: "Total number of rows dropped by exclusion rules",
		},
	)

	IdentifierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf2_release_identifier_requests_total",
			Help: "Total number of identifier service calls",
		},
		[]string{"operation", "status"},
	)

	IdentifierCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rf2_release_identifier_cache_hits_total",
			Help: "Total number of identifier lookups served from the build cache",
		},
	)

	IdentifierRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rf2_release_identifier_request_duration_seconds",
			Help:    "Duration of identifier service calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"operation"},
	)

	TransformErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rf2_release_transform_errors_total",
			Help: "Total number of lines that failed transformation",
		},
	)

	FileBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rf2_release_file_builds_total",
			Help: "Total number of file builds",
		},
		[]string{"status"},
	)

	FileBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rf2_release_file_build_duration_seconds",
			Help:    "Duration of file builds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~27 minutes
		},
	)
)
