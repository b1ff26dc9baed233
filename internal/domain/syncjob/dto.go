package syncjob

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
)

// Machine result statuses
const (
	MachineSuccess = "SUCCESS"
	MachineFailed  = "FAILED"
	MachinePartial = "PARTIAL"
)

// MachineJobResult is the per-device outcome within one job. Never mutated
// after construction.
type MachineJobResult struct {
	DeviceID         string   `json:"device_id"`
	Status           string   `json:"status"`
	RecordsProcessed int      `json:"records_processed"`
	RecordsCreated   int      `json:"records_created"`
	DuplicatesFound  int      `json:"duplicates_found"`
	ConflictsFound   int      `json:"conflicts_found"`
	Errors           []string `json:"errors,omitempty"`
	ExecutionTimeMs  int64    `json:"execution_time_ms"`
}

// SyncResult aggregates machine results into the job-level outcome. Machine
// results appear in configured priority order regardless of completion order.
type SyncResult struct {
	TotalMachines         int                `json:"total_machines"`
	SuccessfulMachines    int                `json:"successful_machines"`
	FailedMachines        int                `json:"failed_machines"`
	TotalRecordsProcessed int                `json:"total_records_processed"`
	RecordsCreated        int                `json:"records_created"`
	DuplicatesFound       int                `json:"duplicates_found"`
	ConflictsFound        int                `json:"conflicts_found"`
	SuccessRate           float64            `json:"success_rate"`
	MachineResults        []MachineJobResult `json:"machine_results"`
	ExecutionTimeMs       int64              `json:"execution_time_ms"`
}

// CreateJobRequest is what a trigger (manual, scheduled, or backfill) submits.
type CreateJobRequest struct {
	Type        string    `json:"type" validate:"required,oneof=scheduled manual backfill"`
	Config      JobConfig `json:"config" validate:"required"`
	TriggeredBy string    `json:"triggered_by" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at"`
	MaxRetries  int       `json:"max_retries" validate:"min=0,max=10"`
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ListJobsResult is a page of jobs.
type ListJobsResult struct {
	Jobs    []SyncJob `json:"jobs"`
	Total   int64     `json:"total"`
	HasMore bool      `json:"has_more"`
}

// ExecutionMetrics is the orchestrator's rolling counters, served to the
// dashboard without re-querying job history.
type ExecutionMetrics struct {
	TotalJobs       int64      `json:"total_jobs"`
	CompletedJobs   int64      `json:"completed_jobs"`
	FailedJobs      int64      `json:"failed_jobs"`
	AverageTimeMs   float64    `json:"average_time_ms"`
	SuccessRate     float64    `json:"success_rate"`
	JobsInFlight    int        `json:"jobs_in_flight"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Health statuses
const (
	HealthActive   = "ACTIVE"
	HealthDegraded = "DEGRADED"
	HealthDown     = "DOWN"
)

// HealthStatus is derived from the rolling metrics.
type HealthStatus struct {
	IsHealthy           bool     `json:"is_healthy"`
	CurrentStatus       string   `json:"current_status"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	Issues              []string `json:"issues,omitempty"`
}

// ConnectionTestResult is the device test surface outcome.
type ConnectionTestResult struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	ResponseTimeMs int64        `json:"response_time_ms"`
	DeviceInfo     *device.Info `json:"device_info,omitempty"`
}
