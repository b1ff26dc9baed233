package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

type fakeResolver struct {
	staff map[string]string // device user id -> staff id
	err   string
}

func (f *fakeResolver) Resolve(_ context.Context, deviceUserID string) identity.ValidationResult {
	if f.err != "" {
		return identity.ValidationResult{DeviceUserID: deviceUserID, ErrorMessage: f.err}
	}
	staffID, ok := f.staff[deviceUserID]
	if !ok {
		return identity.ValidationResult{
			DeviceUserID: deviceUserID,
			ErrorMessage: "no active staff record for device user " + deviceUserID,
		}
	}
	name := "Staff " + deviceUserID
	return identity.ValidationResult{
		DeviceUserID: deviceUserID,
		IsValid:      true,
		StaffID:      &staffID,
		StaffName:    &name,
	}
}

func (f *fakeResolver) ResolveBatch(ctx context.Context, ids []string) identity.BatchResult {
	result := identity.BatchResult{}
	for _, id := range ids {
		entry := f.Resolve(ctx, id)
		result.TotalProcessed++
		if entry.IsValid {
			result.ValidCount++
			result.ValidEntries = append(result.ValidEntries, entry)
		} else {
			result.InvalidCount++
			result.InvalidEntries = append(result.InvalidEntries, entry)
		}
	}
	return result
}

func (f *fakeResolver) ClearCache()                     {}
func (f *fakeResolver) CacheStats() identity.CacheStats { return identity.CacheStats{} }

type fakeRecordRepo struct {
	existing []record.AttendanceRecord
	findErr  error
	created  []record.AttendanceRecord
	updated  map[string]record.AttendanceRecord
}

func (f *fakeRecordRepo) FindFirst(_ context.Context, staffID string, from, to time.Time, transactionID string) (*record.AttendanceRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for i, rec := range f.existing {
		if rec.StaffID == staffID && rec.DeviceTransactionID == transactionID &&
			!rec.Date.Before(from) && rec.Date.Before(to) {
			return &f.existing[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRecordRepo) FindMany(_ context.Context, filter record.FindFilter) ([]record.AttendanceRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []record.AttendanceRecord
	for _, rec := range f.existing {
		if rec.StaffID != filter.StaffID {
			continue
		}
		if rec.Date.Before(filter.From) || !rec.Date.Before(filter.To) {
			continue
		}
		if filter.Origin != "" && rec.Origin != filter.Origin {
			continue
		}
		if filter.UnresolvedOnly && rec.ConflictResolved {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecordRepo) CreateMany(_ context.Context, records []record.AttendanceRecord) (record.CreateManyResult, error) {
	result := record.CreateManyResult{}
	for _, rec := range records {
		collided := false
		for _, old := range f.existing {
			if old.StaffID == rec.StaffID && old.Date.Equal(rec.Date) && old.DeviceTransactionID == rec.DeviceTransactionID {
				collided = true
				break
			}
		}
		if collided {
			result.Errors = append(result.Errors, record.CreateError{
				StaffID:             rec.StaffID,
				DeviceTransactionID: rec.DeviceTransactionID,
				Message:             "record already exists for this staff, date, and transaction",
			})
			continue
		}
		f.existing = append(f.existing, rec)
		f.created = append(f.created, rec)
		result.Created = append(result.Created, rec)
	}
	return result, nil
}

func (f *fakeRecordRepo) UpdateByID(_ context.Context, id string, rec record.AttendanceRecord) error {
	if f.updated == nil {
		f.updated = make(map[string]record.AttendanceRecord)
	}
	f.updated[id] = rec
	return nil
}

func (f *fakeRecordRepo) Count(_ context.Context, _ record.CountFilter) (int64, error) {
	return int64(len(f.existing)), nil
}

func testService(repo *fakeRecordRepo, resolver identity.Resolver, policy record.DuplicatePolicy) *Service {
	return NewService(repo, resolver, NewSchemaValidator(), Options{
		DuplicatePolicy:  policy,
		DedupEnabled:     true,
		ConflictsEnabled: true,
	})
}

func rawEntry(userID, txID string, ts time.Time) device.RawLogEntry {
	return device.RawLogEntry{
		DeviceUserID:  userID,
		TransactionID: txID,
		Timestamp:     ts,
		EventState:    0,
		EventType:     1,
	}
}

func dayOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}

func TestValidateBatchAllValid(t *testing.T) {
	repo := &fakeRecordRepo{}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1", "1002": "staff-2"}}
	svc := testService(repo, resolver, record.SkipDuplicates)
	punch := time.Now().Add(-time.Hour)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
		rawEntry("1002", "1002-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 2, result.ValidCount)
	require.Len(t, result.ValidRecords, 2)
	assert.True(t, result.ValidRecords[0].Mapping.Mapped)
	assert.Equal(t, "staff-1", *result.ValidRecords[0].Mapping.StaffID)
	assert.InDelta(t, 100.0, result.Summary.SuccessRate, 0.01)
}

func TestValidateBatchEmployeeMapping(t *testing.T) {
	repo := &fakeRecordRepo{}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)
	punch := time.Now().Add(-time.Hour)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
		rawEntry("9999", "9999-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EmployeeMappingIssues)
	assert.Equal(t, 1, result.ValidCount)
	assert.Equal(t, 1, result.InvalidCount)
	require.Len(t, result.InvalidRecords, 1)
	assert.True(t, result.InvalidRecords[0].HasError(record.KindEmployeeMapping))
	for _, valid := range result.ValidRecords {
		assert.NotEqual(t, "9999", valid.Record.DeviceUserID)
	}
}

func TestValidateBatchDuplicateSkip(t *testing.T) {
	punch := time.Now().Add(-time.Hour)
	repo := &fakeRecordRepo{existing: []record.AttendanceRecord{{
		ID:                  "rec-1",
		StaffID:             "staff-1",
		Date:                dayOf(punch),
		DeviceTransactionID: "1001-1",
		Origin:              record.OriginAutoSync,
	}}}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, 0, result.ValidCount)
	assert.Equal(t, 0, result.InvalidCount)
	require.Len(t, result.DuplicateRecords, 1)
	assert.Equal(t, "rec-1", *result.DuplicateRecords[0].ExistingRecordID)
}

func TestValidateBatchDuplicateErrorPolicy(t *testing.T) {
	punch := time.Now().Add(-time.Hour)
	repo := &fakeRecordRepo{existing: []record.AttendanceRecord{{
		ID:                  "rec-1",
		StaffID:             "staff-1",
		Date:                dayOf(punch),
		DeviceTransactionID: "1001-1",
		Origin:              record.OriginAutoSync,
	}}}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.ErrorOnDuplicate)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, 1, result.InvalidCount)
	require.Len(t, result.InvalidRecords, 1)
	assert.True(t, result.InvalidRecords[0].HasError(record.KindDuplicate))
}

func TestValidateBatchConflict(t *testing.T) {
	punch := time.Now().Add(-time.Hour)
	repo := &fakeRecordRepo{existing: []record.AttendanceRecord{{
		ID:                  "manual-1",
		StaffID:             "staff-1",
		Date:                dayOf(punch),
		DeviceTransactionID: "hand-entered",
		Origin:              record.OriginManual,
		ConflictResolved:    false,
	}}}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConflictCount)
	assert.Equal(t, 0, result.ValidCount)
	require.Len(t, result.ConflictRecords, 1)
	conflict := result.ConflictRecords[0]
	assert.Equal(t, record.ResolutionKeepExisting, conflict.SuggestedResolution)
	assert.Equal(t, "manual-1", *conflict.ExistingRecordID)
}

func TestValidateBatchResolvedConflictIsNotAConflict(t *testing.T) {
	punch := time.Now().Add(-time.Hour)
	repo := &fakeRecordRepo{existing: []record.AttendanceRecord{{
		ID:                  "manual-1",
		StaffID:             "staff-1",
		Date:                dayOf(punch),
		DeviceTransactionID: "hand-entered",
		Origin:              record.OriginManual,
		ConflictResolved:    true,
	}}}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", punch),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ConflictCount)
	assert.Equal(t, 1, result.ValidCount)
}

func TestValidateBatchStoreFailurePropagates(t *testing.T) {
	repo := &fakeRecordRepo{findErr: errors.New("connection reset")}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)

	_, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		rawEntry("1001", "1001-1", time.Now().Add(-time.Hour)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate lookup")
}

func TestValidateBatchToleratesMalformedEntries(t *testing.T) {
	repo := &fakeRecordRepo{}
	resolver := &fakeResolver{staff: map[string]string{"1001": "staff-1"}}
	svc := testService(repo, resolver, record.SkipDuplicates)

	result, err := svc.ValidateBatch(context.Background(), []device.RawLogEntry{
		{},
		{DeviceUserID: "1001", TransactionID: "x", Timestamp: "garbage", EventState: "also garbage", EventType: 1},
		rawEntry("1001", "1001-1", time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalProcessed)
	assert.Equal(t, 2, result.InvalidCount)
	assert.Equal(t, 1, result.ValidCount)
}
