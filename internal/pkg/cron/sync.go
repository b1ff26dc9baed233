package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
)

// SyncJobs wires the scheduled attendance sync trigger into the scheduler.
type SyncJobs struct {
	orchestrator syncjob.Orchestrator
	interval     time.Duration
	lookback     time.Duration
	maxRetries   int
}

func NewSyncJobs(orchestrator syncjob.Orchestrator, interval time.Duration, lookbackHours, maxRetries int) *SyncJobs {
	return &SyncJobs{
		orchestrator: orchestrator,
		interval:     interval,
		lookback:     time.Duration(lookbackHours) * time.Hour,
		maxRetries:   maxRetries,
	}
}

func (j *SyncJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("scheduled_attendance_sync", j.interval, j.RunScheduledSync)
	scheduler.AddJob("retry_pending_sync_jobs", j.interval, j.RetryPendingJobs)
}

// RunScheduledSync creates and executes one sync job over every enabled
// device for the configured lookback window.
func (j *SyncJobs) RunScheduledSync(ctx context.Context) error {
	now := time.Now()
	job, err := j.orchestrator.CreateJob(ctx, syncjob.CreateJobRequest{
		Type: syncjob.TypeScheduled,
		Config: syncjob.JobConfig{
			StartDate: now.Add(-j.lookback),
			EndDate:   now,
		},
		TriggeredBy: "scheduler",
		MaxRetries:  j.maxRetries,
	})
	if err != nil {
		return fmt.Errorf("create scheduled sync job: %w", err)
	}

	done, err := j.orchestrator.ExecuteJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("execute scheduled sync job %s: %w", job.ID, err)
	}

	if done.Result != nil {
		slog.Info("Cron: scheduled sync finished",
			"job_id", done.ID,
			"machines", done.Result.TotalMachines,
			"failed_machines", done.Result.FailedMachines,
			"records_created", done.Result.RecordsCreated)
	}
	return nil
}

// RetryPendingJobs picks up scheduler-triggered jobs that faulted and were
// requeued with retries remaining.
func (j *SyncJobs) RetryPendingJobs(ctx context.Context) error {
	pending, err := j.orchestrator.ListJobs(ctx, syncjob.JobFilter{
		Status: syncjob.StatusPending,
		Type:   syncjob.TypeScheduled,
	})
	if err != nil {
		return fmt.Errorf("list pending sync jobs: %w", err)
	}

	for _, job := range pending.Jobs {
		if job.RetryCount == 0 {
			// Not a requeued job; the regular trigger owns it.
			continue
		}
		if _, err := j.orchestrator.ExecuteJob(ctx, job.ID); err != nil {
			slog.Error("Cron: retry execution failed", "job_id", job.ID, "error", err)
		}
	}
	return nil
}
