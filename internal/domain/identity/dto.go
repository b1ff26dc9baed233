package identity

import "time"

// Mapping strategies for turning a device user id into a staff directory key.
const (
	StrategyEmailPrefix = "email_prefix"
	StrategyDirectID    = "direct_id"
)

// ValidationResult is the outcome of resolving one device user id. Lookup
// failures and unknown ids are reported here with IsValid=false; they never
// surface as Go errors.
type ValidationResult struct {
	DeviceUserID string  `json:"device_user_id"`
	IsValid      bool    `json:"is_valid"`
	StaffID      *string `json:"staff_id,omitempty"`
	StaffName    *string `json:"staff_name,omitempty"`
	StaffEmail   *string `json:"staff_email,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// BatchResult aggregates a chunked batch resolution. Indistinguishable from a
// single-pass run regardless of the internal chunk size.
type BatchResult struct {
	TotalProcessed int                `json:"total_processed"`
	ValidCount     int                `json:"valid_count"`
	InvalidCount   int                `json:"invalid_count"`
	ValidEntries   []ValidationResult `json:"valid_entries"`
	InvalidEntries []ValidationResult `json:"invalid_entries"`
}

// CacheStats reports resolver cache occupancy for operability and tests.
type CacheStats struct {
	Entries     int        `json:"entries"`
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
}
