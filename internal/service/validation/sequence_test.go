package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

func seqRecord(userID string, ts time.Time, state int) record.CanonicalRecord {
	return record.CanonicalRecord{
		DeviceUserID: userID,
		Timestamp:    ts,
		EventState:   state,
	}
}

func TestValidateSequenceCleanDay(t *testing.T) {
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	issues := ValidateSequence([]record.CanonicalRecord{
		seqRecord("1001", base, eventStateCheckIn),
		seqRecord("1001", base.Add(9*time.Hour), eventStateCheckOut),
		seqRecord("1002", base.Add(5*time.Minute), eventStateCheckIn),
		seqRecord("1002", base.Add(8*time.Hour), eventStateCheckOut),
	})
	assert.Empty(t, issues)
}

func TestValidateSequenceNearDuplicate(t *testing.T) {
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	issues := ValidateSequence([]record.CanonicalRecord{
		seqRecord("1001", base, eventStateCheckIn),
		seqRecord("1001", base.Add(30*time.Second), eventStateCheckOut),
	})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "duplicate punch for 1001")
	assert.Contains(t, issues[0], "30 seconds apart")
}

func TestValidateSequenceConsecutiveSameState(t *testing.T) {
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	issues := ValidateSequence([]record.CanonicalRecord{
		seqRecord("1001", base, eventStateCheckIn),
		seqRecord("1001", base.Add(2*time.Hour), eventStateCheckIn),
		seqRecord("1001", base.Add(9*time.Hour), eventStateCheckOut),
		seqRecord("1001", base.Add(10*time.Hour), eventStateCheckOut),
	})
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "consecutive CHECK_IN punches for 1001")
	assert.Contains(t, issues[1], "consecutive CHECK_OUT punches for 1001")
}

func TestValidateSequenceMixedEmployeesDoNotInterfere(t *testing.T) {
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	// Interleaved punches from different employees within 60s of each other
	// are fine; the gap check is per employee.
	issues := ValidateSequence([]record.CanonicalRecord{
		seqRecord("1001", base, eventStateCheckIn),
		seqRecord("1002", base.Add(10*time.Second), eventStateCheckIn),
		seqRecord("1001", base.Add(9*time.Hour), eventStateCheckOut),
		seqRecord("1002", base.Add(9*time.Hour).Add(10*time.Second), eventStateCheckOut),
	})
	assert.Empty(t, issues)
}

func TestValidateSequenceNearDuplicateAlsoFlagsSameState(t *testing.T) {
	base := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

	issues := ValidateSequence([]record.CanonicalRecord{
		seqRecord("1001", base, eventStateCheckIn),
		seqRecord("1001", base.Add(15*time.Second), eventStateCheckIn),
	})
	// Both findings are reported; nothing is silently corrected.
	require.Len(t, issues, 2)
}
