package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/repository/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncJobRepository_CreateAndGetRoundTrip(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newPendingJob(3))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPending, got.Status)
	assert.Equal(t, syncjob.TypeManual, got.Type)
	assert.Equal(t, []string{"dev-a"}, got.Config.DeviceIDs)
	assert.Equal(t, "test", got.TriggeredBy)
	assert.Equal(t, 3, got.MaxRetries)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Result)
}

func TestSyncJobRepository_GetByIDUnknown(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, syncjob.ErrJobNotFound)
}

func TestSyncJobRepository_LifecycleTransitions(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newPendingJob(3))
	require.NoError(t, err)

	require.NoError(t, repo.MarkRunning(ctx, job.ID))
	running, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)

	// RUNNING is not PENDING; a second start must not fire.
	assert.ErrorIs(t, repo.MarkRunning(ctx, job.ID), syncjob.ErrJobTerminal)

	result := syncjob.SyncResult{TotalMachines: 1, SuccessfulMachines: 1, RecordsCreated: 6, SuccessRate: 100}
	require.NoError(t, repo.MarkCompleted(ctx, job.ID, result))

	done, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.Result)
	assert.Equal(t, 6, done.Result.RecordsCreated)

	// Terminal jobs are immutable.
	assert.ErrorIs(t, repo.MarkFailed(ctx, job.ID, "late failure"), syncjob.ErrJobNotRunning)
	assert.ErrorIs(t, repo.MarkCancelled(ctx, job.ID), syncjob.ErrJobTerminal)
	final, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusCompleted, final.Status)
}

func TestSyncJobRepository_MarkFailedStoresError(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newPendingJob(0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkRunning(ctx, job.ID))
	require.NoError(t, repo.MarkFailed(ctx, job.ID, "no enabled devices matched the job config"))

	failed, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "no enabled devices matched the job config", *failed.Error)
}

func TestSyncJobRepository_MarkCancelledFromPending(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newPendingJob(3))
	require.NoError(t, err)
	require.NoError(t, repo.MarkCancelled(ctx, job.ID))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusCancelled, got.Status)
}

func TestSyncJobRepository_IncrementRetryRequeuesRunningJob(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newPendingJob(2))
	require.NoError(t, err)
	require.NoError(t, repo.MarkRunning(ctx, job.ID))

	require.NoError(t, repo.IncrementRetry(ctx, job.ID))

	requeued, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusPending, requeued.Status)
	assert.Equal(t, 1, requeued.RetryCount)
	assert.Nil(t, requeued.StartedAt)

	// A requeued job can run again.
	require.NoError(t, repo.MarkRunning(ctx, job.ID))
	require.NoError(t, repo.IncrementRetry(ctx, job.ID))

	// Retries exhausted: retry_count reached max_retries.
	require.NoError(t, repo.MarkRunning(ctx, job.ID))
	assert.ErrorIs(t, repo.IncrementRetry(ctx, job.ID), syncjob.ErrJobNotRunning)

	still, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, syncjob.StatusRunning, still.Status)
	assert.Equal(t, 2, still.RetryCount)
}

func TestSyncJobRepository_IncrementRetryRequiresRunning(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	job, err := repo.Create(ctx, newPendingJob(3))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.IncrementRetry(ctx, job.ID), syncjob.ErrJobNotRunning)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RetryCount)
}

func TestSyncJobRepository_ListFiltersAndPaginates(t *testing.T) {
	db := testDatabase(t)
	truncateTables(t, db)
	repo := postgresql.NewSyncJobRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := newPendingJob(3)
		job.ScheduledAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		_, err := repo.Create(ctx, job)
		require.NoError(t, err)
	}
	scheduled := newPendingJob(3)
	scheduled.Type = syncjob.TypeScheduled
	_, err := repo.Create(ctx, scheduled)
	require.NoError(t, err)

	byType, err := repo.List(ctx, syncjob.JobFilter{Type: syncjob.TypeScheduled})
	require.NoError(t, err)
	assert.EqualValues(t, 1, byType.Total)
	require.Len(t, byType.Jobs, 1)
	assert.Equal(t, scheduled.ID, byType.Jobs[0].ID)

	page, err := repo.List(ctx, syncjob.JobFilter{Status: syncjob.StatusPending, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Len(t, page.Jobs, 2)
	assert.True(t, page.HasMore)

	last, err := repo.List(ctx, syncjob.JobFilter{Status: syncjob.StatusPending, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, last.Jobs, 2)
	assert.False(t, last.HasMore)
}
