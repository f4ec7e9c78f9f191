package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportRequestsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "requests_published_total",
			Help:      "Total number of export requests handed to the broker.",
		},
		[]string{"status"}, // success, invalid, broker_error
	)

	exportMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "messages_received_total",
			Help:      "Total number of export messages delivered by the broker.",
		},
		[]string{"redelivered"},
	)

	exportJobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "jobs_processed_total",
			Help:      "Total number of export jobs processed.",
		},
		[]string{"status"}, // acked, malformed, catalog_error, render_error, mail_error
	)

	exportJobProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "export",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of export job processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	exportedRowsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "rows_exported_total",
			Help:      "Total number of movie rows exported.",
		},
	)

	exportConsumerAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "export",
			Name:      "consumer_available",
			Help:      "1 when the export consumer started at boot, 0 otherwise.",
		},
	)
)
