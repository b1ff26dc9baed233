package record

import (
	"context"
	"time"
)

// Repository is the transactional record store the validator and orchestrator
// reconcile against. The (staff_id, date, device_transaction_id) triple must be
// a real constraint at the store layer, not just application logic, because two
// jobs can race on the same device and date window.
type Repository interface {
	// FindFirst returns the record matching the uniqueness triple, or nil.
	FindFirst(ctx context.Context, staffID string, from, to time.Time, transactionID string) (*AttendanceRecord, error)

	// FindMany returns a staff member's records in a window, optionally
	// filtered by origin and unresolved-conflict status.
	FindMany(ctx context.Context, filter FindFilter) ([]AttendanceRecord, error)

	// CreateMany bulk-inserts records, skipping uniqueness collisions and
	// reporting them per row rather than failing the batch.
	CreateMany(ctx context.Context, records []AttendanceRecord) (CreateManyResult, error)

	// UpdateByID overwrites an existing record in place. Used by the
	// orchestrator under the UPDATE_EXISTING duplicate policy.
	UpdateByID(ctx context.Context, id string, rec AttendanceRecord) error

	Count(ctx context.Context, filter CountFilter) (int64, error)
}
