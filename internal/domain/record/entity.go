package record

import (
	"time"
)

// Origin distinguishes records punched in by the sync pipeline from records a
// human entered through the dashboard.
const (
	OriginManual   = "MANUAL"
	OriginAutoSync = "AUTO_SYNC"
)

// AttendanceRecord is the persisted punch event. The (StaffID, Date,
// DeviceTransactionID) triple is the uniqueness invariant duplicate detection
// relies on; the store enforces it with a unique index.
type AttendanceRecord struct {
	ID                  string
	StaffID             string
	Date                time.Time
	Timestamp           time.Time
	DeviceID            string
	DeviceTransactionID string
	EventState          int
	EventType           int
	Origin              string
	ConflictResolved    bool
	SyncJobID           *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
