package syncjob

import (
	"context"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
)

// Orchestrator owns the sync job lifecycle: it executes jobs device by device,
// aggregates machine results, persists status transitions, and exposes
// health and metrics for the monitoring layer.
type Orchestrator interface {
	// CreateJob records a new PENDING job from a trigger.
	CreateJob(ctx context.Context, req CreateJobRequest) (SyncJob, error)

	// ExecuteJob runs a job to completion. A job id already in flight fails
	// immediately with ErrJobAlreadyRunning.
	ExecuteJob(ctx context.Context, jobID string) (SyncJob, error)

	// CancelJob removes an in-flight job from the in-flight set and marks it
	// CANCELLED. It does not interrupt an in-progress device call.
	CancelJob(ctx context.Context, jobID string) error

	GetJob(ctx context.Context, jobID string) (SyncJob, error)
	ListJobs(ctx context.Context, filter JobFilter) (ListJobsResult, error)

	GetMetrics() ExecutionMetrics
	GetHealthStatus() HealthStatus

	// TestConnection and GetDeviceInfo are the device test surface used by
	// the dashboard against an arbitrary device config.
	TestConnection(ctx context.Context, cfg device.Config) ConnectionTestResult
	GetDeviceInfo(ctx context.Context, cfg device.Config) (device.Info, error)
}
