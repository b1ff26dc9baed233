package syncjob

import (
	"context"
)

// Repository persists job records and their status transitions.
type Repository interface {
	Create(ctx context.Context, job SyncJob) (SyncJob, error)
	GetByID(ctx context.Context, id string) (SyncJob, error)
	List(ctx context.Context, filter JobFilter) (ListJobsResult, error)

	// MarkRunning transitions PENDING -> RUNNING and stamps started_at.
	MarkRunning(ctx context.Context, id string) error

	// MarkCompleted stores the aggregated result and stamps completed_at.
	MarkCompleted(ctx context.Context, id string, result SyncResult) error

	// MarkFailed stores the orchestration-level error and stamps completed_at.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	MarkCancelled(ctx context.Context, id string) error

	// IncrementRetry requeues a running job whose execution faulted: bumps
	// retry_count and returns the job to PENDING while retries remain.
	IncrementRetry(ctx context.Context, id string) error
}
