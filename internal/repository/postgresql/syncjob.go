package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/database"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

type syncJobRepository struct {
	db *database.DB
}

func NewSyncJobRepository(db *database.DB) syncjob.Repository {
	return &syncJobRepository{db: db}
}

// Create implements syncjob.Repository.
func (r *syncJobRepository) Create(ctx context.Context, job syncjob.SyncJob) (syncjob.SyncJob, error) {
	q := GetQuerier(ctx, r.db)

	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return syncjob.SyncJob{}, fmt.Errorf("marshal job config: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (
			id, type, status, config, triggered_by, scheduled_at,
			retry_count, max_retries
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = q.QueryRow(ctx, query,
		job.ID,
		job.Type,
		job.Status,
		configJSON,
		job.TriggeredBy,
		job.ScheduledAt,
		job.RetryCount,
		job.MaxRetries,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return syncjob.SyncJob{}, fmt.Errorf("failed to create sync job: %w", err)
	}

	return job, nil
}

// GetByID implements syncjob.Repository.
func (r *syncJobRepository) GetByID(ctx context.Context, id string) (syncjob.SyncJob, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, type, status, config, triggered_by, scheduled_at,
			   started_at, completed_at, retry_count, max_retries,
			   result, error, created_at, updated_at
		FROM sync_jobs
		WHERE id = $1
	`

	job, err := scanJob(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return syncjob.SyncJob{}, syncjob.ErrJobNotFound
		}
		return syncjob.SyncJob{}, fmt.Errorf("failed to get sync job: %w", err)
	}

	return job, nil
}

// List implements syncjob.Repository.
func (r *syncJobRepository) List(ctx context.Context, filter syncjob.JobFilter) (syncjob.ListJobsResult, error) {
	q := GetQuerier(ctx, r.db)

	baseWhere := "1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		baseWhere += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Type != "" {
		baseWhere += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	countQuery := "SELECT COUNT(*) FROM sync_jobs WHERE " + baseWhere
	var total int64
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return syncjob.ListJobsResult{}, fmt.Errorf("failed to count sync jobs: %w", err)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 20
	}
	page := filter.Page
	if page == 0 {
		page = 1
	}
	offset := (page - 1) * limit

	selectQuery := fmt.Sprintf(`
		SELECT id, type, status, config, triggered_by, scheduled_at,
			   started_at, completed_at, retry_count, max_retries,
			   result, error, created_at, updated_at
		FROM sync_jobs
		WHERE %s
		ORDER BY scheduled_at DESC
		LIMIT $%d OFFSET $%d
	`, baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := q.Query(ctx, selectQuery, args...)
	if err != nil {
		return syncjob.ListJobsResult{}, fmt.Errorf("failed to query sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []syncjob.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return syncjob.ListJobsResult{}, fmt.Errorf("failed to scan sync job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return syncjob.ListJobsResult{
		Jobs:    jobs,
		Total:   total,
		HasMore: int64(offset+len(jobs)) < total,
	}, nil
}

// MarkRunning implements syncjob.Repository.
func (r *syncJobRepository) MarkRunning(ctx context.Context, id string) error {
	return r.transition(ctx, id, `
		UPDATE sync_jobs
		SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
	`, syncjob.StatusRunning, time.Now().UTC(), syncjob.StatusPending)
}

// MarkCompleted implements syncjob.Repository.
func (r *syncJobRepository) MarkCompleted(ctx context.Context, id string, result syncjob.SyncResult) error {
	q := GetQuerier(ctx, r.db)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	tag, err := q.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $2, result = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, syncjob.StatusCompleted, resultJSON, time.Now().UTC(), syncjob.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotRunning
	}
	return nil
}

// MarkFailed implements syncjob.Repository.
func (r *syncJobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, syncjob.StatusFailed, errMsg, time.Now().UTC(), syncjob.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to fail sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotRunning
	}
	return nil
}

// MarkCancelled implements syncjob.Repository.
func (r *syncJobRepository) MarkCancelled(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`, id, syncjob.StatusCancelled, time.Now().UTC(), syncjob.StatusPending, syncjob.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobTerminal
	}
	return nil
}

// IncrementRetry implements syncjob.Repository.
func (r *syncJobRepository) IncrementRetry(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE sync_jobs
		SET retry_count = retry_count + 1, status = $2, started_at = NULL, updated_at = $3
		WHERE id = $1 AND status = $4 AND retry_count < max_retries
	`, id, syncjob.StatusPending, time.Now().UTC(), syncjob.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotRunning
	}
	return nil
}

func (r *syncJobRepository) transition(ctx context.Context, id, query string, args ...interface{}) error {
	q := GetQuerier(ctx, r.db)

	allArgs := append([]interface{}{id}, args...)
	tag, err := q.Exec(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("failed to transition sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobTerminal
	}
	return nil
}

func scanJob(row pgx.Row) (syncjob.SyncJob, error) {
	var (
		job        syncjob.SyncJob
		configJSON []byte
		resultJSON []byte
	)

	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &configJSON, &job.TriggeredBy, &job.ScheduledAt,
		&job.StartedAt, &job.CompletedAt, &job.RetryCount, &job.MaxRetries,
		&resultJSON, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return syncjob.SyncJob{}, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &job.Config); err != nil {
			return syncjob.SyncJob{}, fmt.Errorf("unmarshal job config: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		var result syncjob.SyncResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return syncjob.SyncJob{}, fmt.Errorf("unmarshal job result: %w", err)
		}
		job.Result = &result
	}

	return job, nil
}
