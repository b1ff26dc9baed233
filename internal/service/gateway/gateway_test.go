package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
)

type fakeClient struct {
	connectFailures int // fail this many Connect calls before succeeding
	fetchFailures   int // same, for GetAttendanceLogs
	infoErr         error
	logs            []device.RawLogEntry

	connects    int
	disconnects int
	fetches     int
}

func (f *fakeClient) Connect(_ context.Context) error {
	f.connects++
	if f.connectFailures > 0 {
		f.connectFailures--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeClient) Disconnect() error {
	f.disconnects++
	return nil
}

func (f *fakeClient) GetDeviceInfo(_ context.Context) (device.Info, error) {
	if f.infoErr != nil {
		return device.Info{}, f.infoErr
	}
	return device.Info{SerialNumber: "SN-1", Model: "TestClock"}, nil
}

func (f *fakeClient) GetUsers(_ context.Context) ([]device.User, error) {
	return []device.User{{DeviceUserID: "1001", Name: "Alice"}}, nil
}

func (f *fakeClient) GetAttendanceLogs(_ context.Context, _, _ time.Time) ([]device.RawLogEntry, error) {
	f.fetches++
	if f.fetchFailures > 0 {
		f.fetchFailures--
		return nil, errors.New("read timeout")
	}
	return f.logs, nil
}

// passThroughValidator accepts everything on the lenient path and rejects
// entries without a device user id on the strict one.
type passThroughValidator struct{}

func (passThroughValidator) ValidateLogs(entries []device.RawLogEntry) device.ValidatedLogs {
	out := device.ValidatedLogs{}
	for _, entry := range entries {
		out.Summary.TotalProcessed++
		if entry.DeviceUserID == "" {
			out.Summary.InvalidCount++
			out.InvalidRecords = append(out.InvalidRecords, record.ProcessedRecord{Valid: false})
			continue
		}
		out.Summary.ValidCount++
		out.ValidRecords = append(out.ValidRecords, record.CanonicalRecord{
			DeviceUserID:  entry.DeviceUserID,
			TransactionID: entry.TransactionID,
		})
	}
	return out
}

func (passThroughValidator) AcceptAllLogs(entries []device.RawLogEntry) device.ValidatedLogs {
	out := device.ValidatedLogs{}
	for _, entry := range entries {
		out.Summary.TotalProcessed++
		out.Summary.ValidCount++
		out.ValidRecords = append(out.ValidRecords, record.CanonicalRecord{
			DeviceUserID:  entry.DeviceUserID,
			TransactionID: entry.TransactionID,
		})
	}
	return out
}

func testGateway(client *fakeClient, opts Options) device.Gateway {
	if opts.OperationTimeout == 0 {
		opts.OperationTimeout = time.Second
	}
	if opts.RetryInitialWait == 0 {
		opts.RetryInitialWait = time.Millisecond
		opts.RetryMaxWait = 5 * time.Millisecond
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 100
	}
	if opts.BreakerCooldown == 0 {
		opts.BreakerCooldown = time.Minute
	}
	opts.ValidationEnabled = true
	cfg := device.Config{ID: "dev-1", Name: "Lobby", Host: "10.0.0.5", Port: 4370, Enabled: true}
	factory := func(string, time.Duration) DeviceClient { return client }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, factory, passThroughValidator{}, opts, log)
}

func TestConnectTransitionsState(t *testing.T) {
	client := &fakeClient{}
	g := testGateway(client, Options{})

	assert.Equal(t, device.StateDisconnected, g.State())
	require.NoError(t, g.Connect(context.Background()))
	assert.Equal(t, device.StateConnected, g.State())
	assert.Equal(t, 1, client.connects)

	// The connect call probes device info in the same operation.
	err := g.Connect(context.Background())
	assert.ErrorIs(t, err, device.ErrAlreadyConnected)

	require.NoError(t, g.Disconnect(context.Background()))
	assert.Equal(t, device.StateDisconnected, g.State())
	// Disconnect is idempotent from any state.
	require.NoError(t, g.Disconnect(context.Background()))
	assert.Equal(t, 1, client.disconnects)
}

func TestConnectFailureIsTyped(t *testing.T) {
	client := &fakeClient{connectFailures: 10}
	g := testGateway(client, Options{MaxRetries: 0})

	err := g.Connect(context.Background())
	require.Error(t, err)
	var dErr *device.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, device.CodeConnectFailed, dErr.Code)
	assert.False(t, dErr.Timestamp.IsZero())
	assert.Equal(t, device.StateDisconnected, g.State())
	assert.Equal(t, err, g.LastError())
}

func TestInfoProbeFailureAbortsConnect(t *testing.T) {
	client := &fakeClient{infoErr: errors.New("unpaired")}
	g := testGateway(client, Options{MaxRetries: 0})

	err := g.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, device.StateDisconnected, g.State())
	// The half-open socket is closed again.
	assert.Equal(t, 1, client.disconnects)
}

func TestDataOperationsRequireConnection(t *testing.T) {
	g := testGateway(&fakeClient{}, Options{})
	ctx := context.Background()
	from, to := time.Now().Add(-time.Hour), time.Now()

	_, infoErr := g.GetDeviceInfo(ctx)
	_, usersErr := g.GetUsers(ctx)
	_, logsErr := g.GetAttendanceLogs(ctx, from, to)
	_, validatedErr := g.GetValidatedAttendanceLogs(ctx, from, to)

	for _, err := range []error{infoErr, usersErr, logsErr, validatedErr} {
		var dErr *device.Error
		require.ErrorAs(t, err, &dErr)
		assert.Equal(t, device.CodeNotConnected, dErr.Code)
	}
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	client := &fakeClient{fetchFailures: 2}
	g := testGateway(client, Options{MaxRetries: 3})
	require.NoError(t, g.Connect(context.Background()))

	logs, err := g.GetAttendanceLogs(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Equal(t, 3, client.fetches)

	m := g.Metrics()
	assert.Equal(t, int64(2), m.TotalOperations) // connect + fetch
	assert.Equal(t, int64(2), m.SuccessfulOperations)
	assert.Greater(t, m.AvgResponseTimeMs, -1.0)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := &fakeClient{fetchFailures: 1000}
	g := testGateway(client, Options{MaxRetries: 0, BreakerThreshold: 2, BreakerCooldown: time.Hour})
	require.NoError(t, g.Connect(context.Background()))
	ctx := context.Background()
	from, to := time.Now().Add(-time.Hour), time.Now()

	for i := 0; i < 2; i++ {
		_, err := g.GetAttendanceLogs(ctx, from, to)
		require.Error(t, err)
	}
	fetchesBeforeOpen := client.fetches

	_, err := g.GetAttendanceLogs(ctx, from, to)
	var dErr *device.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, device.CodeCircuitOpen, dErr.Code)
	// The open breaker short-circuits; the device is not touched.
	assert.Equal(t, fetchesBeforeOpen, client.fetches)

	m := g.Metrics()
	assert.Equal(t, int64(1), m.CircuitBreakerTrips)

	// The breaker is independently resettable.
	g.(*serviceGateway).ResetBreaker()
	client.fetchFailures = 0
	_, err = g.GetAttendanceLogs(ctx, from, to)
	require.NoError(t, err)
}

func TestGetValidatedAttendanceLogs(t *testing.T) {
	client := &fakeClient{logs: []device.RawLogEntry{
		{DeviceUserID: "1001", TransactionID: "1001-1"},
		{DeviceUserID: "1002", TransactionID: "1002-1"},
	}}
	g := testGateway(client, Options{})
	require.NoError(t, g.Connect(context.Background()))

	out, err := g.GetValidatedAttendanceLogs(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Summary.TotalProcessed)
	assert.Equal(t, 2, out.Summary.ValidCount)
	require.Len(t, out.ValidRecords, 2)
	assert.Equal(t, "1001", out.ValidRecords[0].DeviceUserID)
}

func TestValidationToggleOnValidatedRetrieval(t *testing.T) {
	logs := []device.RawLogEntry{
		{DeviceUserID: "1001", TransactionID: "1001-1"},
		{DeviceUserID: "", TransactionID: "anon-1"},
	}
	cfg := device.Config{ID: "dev-1", Name: "Lobby", Host: "10.0.0.5", Port: 4370, Enabled: true}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		OperationTimeout: time.Second,
		RetryInitialWait: time.Millisecond,
		RetryMaxWait:     5 * time.Millisecond,
		BreakerThreshold: 100,
		BreakerCooldown:  time.Minute,
	}

	// Validation on: the entry without a user id is rejected.
	strictClient := &fakeClient{logs: logs}
	opts.ValidationEnabled = true
	strict := New(cfg, func(string, time.Duration) DeviceClient { return strictClient }, passThroughValidator{}, opts, log)
	require.NoError(t, strict.Connect(context.Background()))
	out, err := strict.GetValidatedAttendanceLogs(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Summary.ValidCount)
	assert.Equal(t, 1, out.Summary.InvalidCount)

	// Validation off: everything passes through the lenient path.
	lenientClient := &fakeClient{logs: logs}
	opts.ValidationEnabled = false
	lenient := New(cfg, func(string, time.Duration) DeviceClient { return lenientClient }, passThroughValidator{}, opts, log)
	require.NoError(t, lenient.Connect(context.Background()))
	out, err = lenient.GetValidatedAttendanceLogs(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Summary.ValidCount)
	assert.Zero(t, out.Summary.InvalidCount)
	assert.Len(t, out.ValidRecords, 2)
}

func TestMetricsTrackFailures(t *testing.T) {
	client := &fakeClient{fetchFailures: 1000}
	g := testGateway(client, Options{MaxRetries: 0})
	require.NoError(t, g.Connect(context.Background()))

	_, err := g.GetAttendanceLogs(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)

	m := g.Metrics()
	assert.Equal(t, int64(2), m.TotalOperations)
	assert.Equal(t, int64(1), m.SuccessfulOperations)
	assert.Equal(t, int64(1), m.FailedOperations)
}
