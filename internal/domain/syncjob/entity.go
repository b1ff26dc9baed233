package syncjob

import (
	"time"
)

// Job types
const (
	TypeScheduled = "scheduled"
	TypeManual    = "manual"
	TypeBackfill  = "backfill"
)

// Job statuses. COMPLETED, FAILED, and CANCELLED are terminal; a terminal job
// is immutable.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// JobConfig is the device/date-range configuration a trigger supplies.
type JobConfig struct {
	DeviceIDs        []string  `json:"device_ids"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	ParallelMachines bool      `json:"parallel_machines"`
}

// SyncJob is one sync cycle over the configured devices. Created by a trigger,
// mutated only by the orchestrator, immutable once terminal. At most one
// in-flight execution exists per job id at any time.
type SyncJob struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	Config      JobConfig   `json:"config"`
	TriggeredBy string      `json:"triggered_by"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	RetryCount  int         `json:"retry_count"`
	MaxRetries  int         `json:"max_retries"`
	Result      *SyncResult `json:"result,omitempty"`
	Error       *string     `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsTerminal reports whether the job reached a final state.
func (j SyncJob) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
