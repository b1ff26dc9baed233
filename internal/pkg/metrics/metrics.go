package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Device gateway metrics
	DeviceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_device_operations_total",
			Help: "Total device gateway operations by device and outcome",
		},
		[]string{"device", "operation", "outcome"}, // outcome: "success", "failure", "rejected"
	)

	DeviceOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_device_operation_duration_seconds",
			Help:    "Duration of device gateway operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"device", "operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attendance_device_circuit_breaker_state",
			Help: "Circuit breaker state per device (0=closed, 1=half-open, 2=open)",
		},
		[]string{"device"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_device_circuit_breaker_trips_total",
			Help: "Total circuit breaker open transitions per device",
		},
		[]string{"device"},
	)

	// Sync job metrics
	SyncJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_sync_jobs_total",
			Help: "Total sync jobs by terminal status",
		},
		[]string{"status"},
	)

	SyncJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_sync_job_duration_seconds",
			Help:    "End-to-end sync job duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_records_processed_total",
			Help: "Validated records by classification",
		},
		[]string{"classification"}, // "valid", "invalid", "duplicate", "conflict", "mapping_issue"
	)

	// Identity resolver metrics
	IdentityCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_identity_cache_lookups_total",
			Help: "Identity cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "expired"
	)
)
