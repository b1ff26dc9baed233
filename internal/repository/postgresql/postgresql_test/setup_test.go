package postgresql_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	dbOnce sync.Once
	connDB *database.DB
	dbErr  error
)

// testDatabase connects once per test binary and applies migrations. Tests
// are skipped entirely unless TEST_DATABASE_URL points at a disposable
// database.
func testDatabase(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	dbOnce.Do(func() {
		if dbErr = database.Migrate(dsn); dbErr != nil {
			return
		}
		connDB, dbErr = database.NewPostgreSQLDB(context.Background(), dsn)
	})
	require.NoError(t, dbErr)
	return connDB
}

func truncateTables(t *testing.T, db *database.DB) {
	t.Helper()
	_, err := db.Exec(context.Background(), "TRUNCATE TABLE attendance_records, sync_jobs CASCADE")
	require.NoError(t, err)
}

func newPendingJob(maxRetries int) syncjob.SyncJob {
	now := time.Now().UTC()
	return syncjob.SyncJob{
		ID:     uuid.NewString(),
		Type:   syncjob.TypeManual,
		Status: syncjob.StatusPending,
		Config: syncjob.JobConfig{
			DeviceIDs: []string{"dev-a"},
			StartDate: now.Add(-24 * time.Hour),
			EndDate:   now,
		},
		TriggeredBy: "test",
		ScheduledAt: now,
		MaxRetries:  maxRetries,
	}
}
