package device

import (
	"context"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

// ConnectionState tracks the gateway connection lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
)

// Error codes surfaced by gateway operations.
const (
	CodeNotConnected  = "NOT_CONNECTED"
	CodeConnectFailed = "CONNECT_FAILED"
	CodeInfoFailed    = "DEVICE_INFO_FAILED"
	CodeFetchFailed   = "FETCH_FAILED"
	CodeCircuitOpen   = "CIRCUIT_OPEN"
	CodeTimeout       = "TIMEOUT"
)

// Error is the typed failure every gateway operation returns. Data operations
// invoked while disconnected fail with CodeNotConnected rather than silently
// returning empty data.
type Error struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Metrics is the rolling per-device health record, updated on every invocation.
type Metrics struct {
	TotalOperations      int64   `json:"total_operations"`
	SuccessfulOperations int64   `json:"successful_operations"`
	FailedOperations     int64   `json:"failed_operations"`
	AvgResponseTimeMs    float64 `json:"avg_response_time_ms"`
	CircuitBreakerTrips  int64   `json:"circuit_breaker_trips"`
}

// ValidatedLogs is the output of GetValidatedAttendanceLogs: raw device output
// already passed through schema validation so callers never re-validate.
type ValidatedLogs struct {
	ValidRecords   []record.CanonicalRecord `json:"valid_records"`
	InvalidRecords []record.ProcessedRecord `json:"invalid_records"`
	Summary        ValidatedLogsSummary     `json:"summary"`
}

type ValidatedLogsSummary struct {
	TotalProcessed int `json:"total_processed"`
	ValidCount     int `json:"valid_count"`
	InvalidCount   int `json:"invalid_count"`
}

// LogValidator is the tier-1 schema validation contract the gateway runs raw
// logs through before handing them to callers. Implemented by the validation
// service. AcceptAllLogs is the lenient path used when gateway validation is
// switched off: entries are still coerced to canonical form but never
// rejected.
type LogValidator interface {
	ValidateLogs(entries []RawLogEntry) ValidatedLogs
	AcceptAllLogs(entries []RawLogEntry) ValidatedLogs
}

// Gateway owns the connection to one physical device. Connect issues a device
// info probe in the same call so pairing problems surface immediately.
// Disconnect is idempotent and safe from any state.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	State() ConnectionState
	LastError() error

	GetDeviceInfo(ctx context.Context) (Info, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetAttendanceLogs(ctx context.Context, from, to time.Time) ([]RawLogEntry, error)
	GetValidatedAttendanceLogs(ctx context.Context, from, to time.Time) (ValidatedLogs, error)

	Metrics() Metrics
}
