package validation

import (
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

// Punch direction codes as devices report them.
const (
	eventStateCheckIn  = 0
	eventStateCheckOut = 1
)

// Two punches for the same employee closer than this are treated as one
// physical punch registered twice.
const minPunchGap = 60 * time.Second

// ValidateSequence inspects a time-sorted run of canonical records, possibly
// covering several employees, and reports near-duplicate punches and logical
// ordering violations as human-readable strings. It never corrects anything
// and needs no store access.
func ValidateSequence(records []record.CanonicalRecord) []string {
	issues := []string{}
	last := make(map[string]record.CanonicalRecord)

	for _, rec := range records {
		prev, seen := last[rec.DeviceUserID]
		if seen {
			gap := rec.Timestamp.Sub(prev.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			if gap < minPunchGap {
				issues = append(issues, fmt.Sprintf(
					"duplicate punch for %s: %s and %s are %d seconds apart",
					rec.DeviceUserID,
					prev.Timestamp.Format(time.RFC3339),
					rec.Timestamp.Format(time.RFC3339),
					int(gap.Seconds()),
				))
			}

			if rec.EventState == prev.EventState {
				switch rec.EventState {
				case eventStateCheckIn:
					issues = append(issues, fmt.Sprintf(
						"consecutive CHECK_IN punches for %s at %s and %s with no CHECK_OUT between",
						rec.DeviceUserID,
						prev.Timestamp.Format(time.RFC3339),
						rec.Timestamp.Format(time.RFC3339),
					))
				case eventStateCheckOut:
					issues = append(issues, fmt.Sprintf(
						"consecutive CHECK_OUT punches for %s at %s and %s with no CHECK_IN between",
						rec.DeviceUserID,
						prev.Timestamp.Format(time.RFC3339),
						rec.Timestamp.Format(time.RFC3339),
					))
				}
			}
		}
		last[rec.DeviceUserID] = rec
	}

	return issues
}
