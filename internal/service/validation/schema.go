package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

// Accepted numeric ranges for device punch fields. State covers the punch
// direction codes, type covers the verification method codes.
const (
	maxEventState = 5
	maxEventType  = 15
)

// Epoch values above this threshold are treated as milliseconds.
const epochMillisThreshold = 1e11

var whitespaceRun = regexp.MustCompile(`\s+`)

// SchemaValidator is the tier-1 validator: it coerces the loosely-typed fields
// a device reports into canonical records and rejects entries that cannot be
// made canonical. It is stateless and talks to nothing.
type SchemaValidator struct {
	now func() time.Time
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{now: time.Now}
}

// ValidateLogs implements device.LogValidator.
func (v *SchemaValidator) ValidateLogs(entries []device.RawLogEntry) device.ValidatedLogs {
	out := device.ValidatedLogs{
		ValidRecords:   []record.CanonicalRecord{},
		InvalidRecords: []record.ProcessedRecord{},
	}

	for _, entry := range entries {
		canonical, errs := v.coerce(entry)
		out.Summary.TotalProcessed++
		if len(errs) > 0 {
			out.Summary.InvalidCount++
			out.InvalidRecords = append(out.InvalidRecords, record.ProcessedRecord{
				Record: canonical,
				Valid:  false,
				Errors: errs,
				Mapping: record.EmployeeMapping{
					DeviceUserID: canonical.DeviceUserID,
				},
			})
			continue
		}
		out.Summary.ValidCount++
		out.ValidRecords = append(out.ValidRecords, canonical)
	}

	return out
}

// AcceptAllLogs implements the lenient half of device.LogValidator: every
// entry is coerced to canonical form but none is rejected. Fields that cannot
// be coerced fall back to zero values, and the timestamp window check does
// not apply.
func (v *SchemaValidator) AcceptAllLogs(entries []device.RawLogEntry) device.ValidatedLogs {
	out := device.ValidatedLogs{
		ValidRecords:   []record.CanonicalRecord{},
		InvalidRecords: []record.ProcessedRecord{},
	}

	for _, entry := range entries {
		canonical, _ := v.coerce(entry)
		if canonical.Timestamp.IsZero() {
			if ts, err := coerceTimestamp(entry.Timestamp); err == nil {
				canonical.Timestamp = ts
			}
		}
		out.Summary.TotalProcessed++
		out.Summary.ValidCount++
		out.ValidRecords = append(out.ValidRecords, canonical)
	}

	return out
}

// coerce builds the canonical form of one raw entry, accumulating every
// schema problem it finds instead of stopping at the first.
func (v *SchemaValidator) coerce(entry device.RawLogEntry) (record.CanonicalRecord, []record.RecordError) {
	var errs []record.RecordError
	canonical := record.CanonicalRecord{
		DeviceUserID:  sanitizeIdentifier(entry.DeviceUserID),
		TransactionID: strings.TrimSpace(entry.TransactionID),
	}

	if canonical.DeviceUserID == "" {
		errs = append(errs, schemaError("device user id is empty"))
	}

	ts, err := coerceTimestamp(entry.Timestamp)
	if err != nil {
		errs = append(errs, schemaError(err.Error()))
	} else {
		now := v.now()
		earliest := now.AddDate(-1, 0, 0)
		latest := now.Add(24 * time.Hour)
		if ts.Before(earliest) || ts.After(latest) {
			errs = append(errs, schemaError(fmt.Sprintf("timestamp %s is outside the accepted window", ts.Format(time.RFC3339))))
		} else {
			canonical.Timestamp = ts
		}
	}

	state, err := coerceSmallInt(entry.EventState, "event state", maxEventState)
	if err != nil {
		errs = append(errs, schemaError(err.Error()))
	} else {
		canonical.EventState = state
	}

	eventType, err := coerceSmallInt(entry.EventType, "event type", maxEventType)
	if err != nil {
		errs = append(errs, schemaError(err.Error()))
	} else {
		canonical.EventType = eventType
	}

	return canonical, errs
}

func schemaError(msg string) record.RecordError {
	return record.RecordError{Kind: record.KindValidation, Message: msg}
}

// sanitizeIdentifier trims the identifier and collapses internal whitespace
// runs to a single underscore.
func sanitizeIdentifier(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
}

// coerceTimestamp accepts native time values, parseable strings, and numeric
// epochs in seconds or milliseconds.
func coerceTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("timestamp is missing")
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("timestamp is missing")
		}
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("timestamp is missing")
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		if epoch, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(epoch), nil
		}
		return time.Time{}, fmt.Errorf("timestamp %q is not parseable", s)
	case int:
		return epochToTime(float64(t)), nil
	case int64:
		return epochToTime(float64(t)), nil
	case float64:
		return epochToTime(t), nil
	default:
		return time.Time{}, fmt.Errorf("timestamp has unsupported type %T", v)
	}
}

func epochToTime(epoch float64) time.Time {
	if epoch >= epochMillisThreshold {
		return time.UnixMilli(int64(epoch))
	}
	return time.Unix(int64(epoch), 0)
}

// coerceSmallInt accepts integers, whole floats, and numeric strings inside
// [0, max].
func coerceSmallInt(v interface{}, field string, max int) (int, error) {
	var n int
	switch t := v.(type) {
	case nil:
		return 0, fmt.Errorf("%s is missing", field)
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%s %v is not an integer", field, t)
		}
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s %q is not numeric", field, t)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", field, v)
	}

	if n < 0 || n > max {
		return 0, fmt.Errorf("%s %d is out of range [0, %d]", field, n, max)
	}
	return n, nil
}
