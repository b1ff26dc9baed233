package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type attendanceRecordRepository struct {
	db *database.DB
}

func NewAttendanceRecordRepository(db *database.DB) record.Repository {
	return &attendanceRecordRepository{db: db}
}

const recordColumns = `
	id, staff_id, date, punched_at, device_id, device_transaction_id,
	event_state, event_type, origin, conflict_resolved, sync_job_id,
	created_at, updated_at
`

// FindFirst implements record.Repository.
func (r *attendanceRecordRepository) FindFirst(ctx context.Context, staffID string, from, to time.Time, transactionID string) (*record.AttendanceRecord, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE staff_id = $1
		  AND date >= $2
		  AND date < $3
		  AND device_transaction_id = $4
		LIMIT 1
	`

	rec, err := scanRecord(q.QueryRow(ctx, query, staffID, from, to, transactionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil // no record matching the uniqueness triple
		}
		return nil, fmt.Errorf("failed to find attendance record: %w", err)
	}

	return &rec, nil
}

// FindMany implements record.Repository.
func (r *attendanceRecordRepository) FindMany(ctx context.Context, filter record.FindFilter) ([]record.AttendanceRecord, error) {
	q := GetQuerier(ctx, r.db)

	baseWhere := "staff_id = $1 AND date >= $2 AND date < $3"
	args := []interface{}{filter.StaffID, filter.From, filter.To}
	argIdx := 4

	if filter.Origin != "" {
		baseWhere += fmt.Sprintf(" AND origin = $%d", argIdx)
		args = append(args, filter.Origin)
		argIdx++
	}
	if filter.UnresolvedOnly {
		baseWhere += " AND conflict_resolved = false"
	}

	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE ` + baseWhere + `
		ORDER BY punched_at ASC
	`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer rows.Close()

	var records []record.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// CreateMany implements record.Repository. The uniqueness triple is a UNIQUE
// index, so a concurrent job racing on the same device/date window cannot
// double-insert; collided rows come back as per-row errors instead of failing
// the batch.
func (r *attendanceRecordRepository) CreateMany(ctx context.Context, records []record.AttendanceRecord) (record.CreateManyResult, error) {
	if len(records) == 0 {
		return record.CreateManyResult{}, record.ErrNothingToWrite
	}

	query := `
		INSERT INTO attendance_records (
			staff_id, date, punched_at, device_id, device_transaction_id,
			event_state, event_type, origin, conflict_resolved, sync_job_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (staff_id, date, device_transaction_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	var result record.CreateManyResult
	err := WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)

		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(query,
				rec.StaffID, rec.Date, rec.Timestamp, rec.DeviceID, rec.DeviceTransactionID,
				rec.EventState, rec.EventType, rec.Origin, rec.ConflictResolved, rec.SyncJobID,
			)
		}

		br := q.SendBatch(txCtx, batch)
		defer br.Close()

		for _, rec := range records {
			err := br.QueryRow().Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
			switch {
			case err == pgx.ErrNoRows:
				// Uniqueness collision: another job already wrote this triple.
				result.Errors = append(result.Errors, record.CreateError{
					StaffID:             rec.StaffID,
					DeviceTransactionID: rec.DeviceTransactionID,
					Message:             "record already exists for this staff/date/transaction",
				})
			case err != nil:
				result.Errors = append(result.Errors, record.CreateError{
					StaffID:             rec.StaffID,
					DeviceTransactionID: rec.DeviceTransactionID,
					Message:             err.Error(),
				})
			default:
				result.Created = append(result.Created, rec)
			}
		}
		return nil
	})
	if err != nil {
		return record.CreateManyResult{}, fmt.Errorf("failed to write attendance batch: %w", err)
	}

	return result, nil
}

// UpdateByID implements record.Repository.
func (r *attendanceRecordRepository) UpdateByID(ctx context.Context, id string, rec record.AttendanceRecord) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE attendance_records
		SET punched_at = $2, event_state = $3, event_type = $4,
		    origin = $5, sync_job_id = $6, updated_at = $7
		WHERE id = $1
	`, id, rec.Timestamp, rec.EventState, rec.EventType, rec.Origin, rec.SyncJobID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update attendance record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrRecordNotFound
	}
	return nil
}

// Count implements record.Repository.
func (r *attendanceRecordRepository) Count(ctx context.Context, filter record.CountFilter) (int64, error) {
	q := GetQuerier(ctx, r.db)

	baseWhere := "1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.StaffID != "" {
		baseWhere += fmt.Sprintf(" AND staff_id = $%d", argIdx)
		args = append(args, filter.StaffID)
		argIdx++
	}
	if !filter.From.IsZero() {
		baseWhere += fmt.Sprintf(" AND date >= $%d", argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		baseWhere += fmt.Sprintf(" AND date < $%d", argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	if filter.Origin != "" {
		baseWhere += fmt.Sprintf(" AND origin = $%d", argIdx)
		args = append(args, filter.Origin)
		argIdx++
	}
	if filter.SyncJobID != "" {
		baseWhere += fmt.Sprintf(" AND sync_job_id = $%d", argIdx)
		args = append(args, filter.SyncJobID)
		argIdx++
	}

	var total int64
	err := q.QueryRow(ctx, "SELECT COUNT(*) FROM attendance_records WHERE "+baseWhere, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance records: %w", err)
	}

	return total, nil
}

func scanRecord(row pgx.Row) (record.AttendanceRecord, error) {
	var rec record.AttendanceRecord
	err := row.Scan(
		&rec.ID, &rec.StaffID, &rec.Date, &rec.Timestamp, &rec.DeviceID, &rec.DeviceTransactionID,
		&rec.EventState, &rec.EventType, &rec.Origin, &rec.ConflictResolved, &rec.SyncJobID,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}
