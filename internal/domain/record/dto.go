package record

import (
	"time"
)

// ErrorKind classifies a data-level validation outcome. These are result
// values attached to the record, never Go errors.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindEmployeeMapping ErrorKind = "EMPLOYEE_MAPPING"
	KindDuplicate       ErrorKind = "DUPLICATE"
	KindConflict        ErrorKind = "CONFLICT"
)

// RecordError is one typed issue found on a record during validation.
type RecordError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// DuplicatePolicy controls what the validator does with a uniqueness-triple
// collision.
type DuplicatePolicy string

const (
	SkipDuplicates   DuplicatePolicy = "SKIP_DUPLICATES"
	ErrorOnDuplicate DuplicatePolicy = "ERROR_ON_DUPLICATE"
	UpdateExisting   DuplicatePolicy = "UPDATE_EXISTING"
)

// ResolutionKeepExisting is the suggested resolution attached to every
// conflict. Conflicts are never auto-merged; they wait for manual review.
const ResolutionKeepExisting = "KEEP_EXISTING"

// CanonicalRecord is the schema-valid form of a raw device log entry after
// tier-1 coercion and sanitization.
type CanonicalRecord struct {
	DeviceUserID  string    `json:"device_user_id"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
	EventState    int       `json:"event_state"`
	EventType     int       `json:"event_type"`
}

// EmployeeMapping is the identity-resolution outcome carried on a processed
// record.
type EmployeeMapping struct {
	DeviceUserID string  `json:"device_user_id"`
	StaffID      *string `json:"staff_id,omitempty"`
	StaffName    *string `json:"staff_name,omitempty"`
	Mapped       bool    `json:"mapped"`
}

// ProcessedRecord wraps a canonical record with its validation verdict. It is
// consumed immediately by the orchestrator and never persisted itself.
type ProcessedRecord struct {
	Record  CanonicalRecord `json:"record"`
	Valid   bool            `json:"valid"`
	Errors  []RecordError   `json:"errors,omitempty"`
	Mapping EmployeeMapping `json:"mapping"`

	// ExistingRecordID is set for DUPLICATE and CONFLICT outcomes so the
	// orchestrator can act under UPDATE_EXISTING without re-querying.
	ExistingRecordID    *string `json:"existing_record_id,omitempty"`
	SuggestedResolution string  `json:"suggested_resolution,omitempty"`
}

// HasError reports whether the record carries an issue of the given kind.
func (p ProcessedRecord) HasError(kind ErrorKind) bool {
	for _, e := range p.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// BatchValidationResult is the full outcome of validating one device's logs.
type BatchValidationResult struct {
	ValidRecords          []ProcessedRecord `json:"valid_records"`
	InvalidRecords        []ProcessedRecord `json:"invalid_records"`
	DuplicateRecords      []ProcessedRecord `json:"duplicate_records"`
	ConflictRecords       []ProcessedRecord `json:"conflict_records"`
	EmployeeMappingIssues int               `json:"employee_mapping_issues"`
	TotalProcessed        int               `json:"total_processed"`
	ValidCount            int               `json:"valid_count"`
	InvalidCount          int               `json:"invalid_count"`
	DuplicateCount        int               `json:"duplicate_count"`
	ConflictCount         int               `json:"conflict_count"`
	Summary               ValidationSummary `json:"summary"`
}

type ValidationSummary struct {
	SuccessRate      float64 `json:"success_rate"`
	DuplicateRate    float64 `json:"duplicate_rate"`
	ConflictRate     float64 `json:"conflict_rate"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// CreateManyResult reports per-row outcomes of a bulk insert. Rows skipped by
// the store's uniqueness constraint land in Errors.
type CreateManyResult struct {
	Created []AttendanceRecord `json:"created"`
	Errors  []CreateError      `json:"errors,omitempty"`
}

type CreateError struct {
	StaffID             string `json:"staff_id"`
	DeviceTransactionID string `json:"device_transaction_id"`
	Message             string `json:"message"`
}

// FindFilter narrows a FindMany lookup over one staff member's day.
type FindFilter struct {
	StaffID        string
	From           time.Time
	To             time.Time
	Origin         string // empty means any origin
	UnresolvedOnly bool   // only records with conflict_resolved = false
}

// CountFilter narrows a Count query.
type CountFilter struct {
	StaffID   string
	From      time.Time
	To        time.Time
	Origin    string
	SyncJobID string
}
