package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/metrics"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/zkteco"
)

// DeviceClient is the raw protocol surface the gateway drives. zkteco.Client
// implements it; tests substitute a fake.
type DeviceClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	GetDeviceInfo(ctx context.Context) (device.Info, error)
	GetUsers(ctx context.Context) ([]device.User, error)
	GetAttendanceLogs(ctx context.Context, from, to time.Time) ([]device.RawLogEntry, error)
}

// ClientFactory builds the protocol client for one device address.
type ClientFactory func(addr string, timeout time.Duration) DeviceClient

// ZKTecoFactory is the production factory.
func ZKTecoFactory(addr string, timeout time.Duration) DeviceClient {
	return zkteco.NewClient(addr, timeout)
}

// Options configures resilience for one gateway instance. ValidationEnabled
// gates schema validation on validated retrieval; when off, fetched logs are
// coerced but never rejected.
type Options struct {
	OperationTimeout  time.Duration
	MaxRetries        int
	RetryInitialWait  time.Duration
	RetryMaxWait      time.Duration
	BreakerThreshold  uint32
	BreakerCooldown   time.Duration
	ValidationEnabled bool
}

// serviceGateway implements device.Gateway for one physical device. All
// operations run through a retry policy nested inside a per-address circuit
// breaker, and every invocation feeds the rolling metrics record.
type serviceGateway struct {
	cfg       device.Config
	opts      Options
	client    DeviceClient
	validator device.LogValidator
	log       *slog.Logger
	breaker   *gobreaker.CircuitBreaker[any]

	mu        sync.Mutex
	state     device.ConnectionState
	lastError error
	m         device.Metrics

	breakerMu sync.Mutex
}

// New builds a gateway for one device. The validator runs raw logs through
// schema validation on every validated retrieval; callers that want raw
// output use GetAttendanceLogs instead.
func New(cfg device.Config, factory ClientFactory, validator device.LogValidator, opts Options, log *slog.Logger) device.Gateway {
	g := &serviceGateway{
		cfg:       cfg,
		opts:      opts,
		client:    factory(cfg.Address(), opts.OperationTimeout),
		validator: validator,
		log:       log.With(slog.String("device", cfg.ID)),
		state:     device.StateDisconnected,
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.ID).Set(0)
	g.breaker = g.newBreaker()

	return g
}

func (g *serviceGateway) newBreaker() *gobreaker.CircuitBreaker[any] {
	cfg, opts := g.cfg, g.opts
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Address(),
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Info("circuit breaker state change",
				slog.String("from", stateToString(from)),
				slog.String("to", stateToString(to)))
			metrics.CircuitBreakerState.WithLabelValues(cfg.ID).Set(stateToFloat(to))
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerTrips.WithLabelValues(cfg.ID).Inc()
				g.mu.Lock()
				g.m.CircuitBreakerTrips++
				g.mu.Unlock()
			}
		},
	})
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// ResetBreaker force-closes the device's circuit breaker independently of
// its cool-down. gobreaker keeps its counters private, so reset means a
// fresh breaker.
func (g *serviceGateway) ResetBreaker() {
	g.breakerMu.Lock()
	g.breaker = g.newBreaker()
	g.breakerMu.Unlock()
	metrics.CircuitBreakerState.WithLabelValues(g.cfg.ID).Set(0)
}

func (g *serviceGateway) currentBreaker() *gobreaker.CircuitBreaker[any] {
	g.breakerMu.Lock()
	defer g.breakerMu.Unlock()
	return g.breaker
}

func (g *serviceGateway) State() device.ConnectionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *serviceGateway) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastError
}

func (g *serviceGateway) Metrics() device.Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.m
}

// Connect opens the device socket and immediately probes device info in the
// same call so pairing problems surface here instead of on first fetch.
func (g *serviceGateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.state == device.StateConnected {
		g.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	g.mu.Unlock()

	g.setState(device.StateConnecting)

	err := g.execute(ctx, "connect", func(ctx context.Context) error {
		if err := g.client.Connect(ctx); err != nil {
			return err
		}
		if _, err := g.client.GetDeviceInfo(ctx); err != nil {
			_ = g.client.Disconnect()
			return err
		}
		return nil
	})
	if err != nil {
		g.setState(device.StateDisconnected)
		return g.fail(device.CodeConnectFailed, err)
	}

	g.setState(device.StateConnected)
	g.log.Info("device connected", slog.String("addr", g.cfg.Address()))
	return nil
}

// Disconnect is idempotent and safe from any state.
func (g *serviceGateway) Disconnect(_ context.Context) error {
	g.mu.Lock()
	state := g.state
	g.state = device.StateDisconnected
	g.mu.Unlock()

	if state == device.StateDisconnected {
		return nil
	}
	if err := g.client.Disconnect(); err != nil {
		g.log.Warn("disconnect failed", slog.String("error", err.Error()))
	}
	return nil
}

func (g *serviceGateway) GetDeviceInfo(ctx context.Context) (device.Info, error) {
	var info device.Info
	if err := g.requireConnected(); err != nil {
		return info, err
	}
	err := g.execute(ctx, "get_device_info", func(ctx context.Context) error {
		var err error
		info, err = g.client.GetDeviceInfo(ctx)
		return err
	})
	if err != nil {
		return device.Info{}, g.fail(device.CodeInfoFailed, err)
	}
	return info, nil
}

func (g *serviceGateway) GetUsers(ctx context.Context) ([]device.User, error) {
	if err := g.requireConnected(); err != nil {
		return nil, err
	}
	var users []device.User
	err := g.execute(ctx, "get_users", func(ctx context.Context) error {
		var err error
		users, err = g.client.GetUsers(ctx)
		return err
	})
	if err != nil {
		return nil, g.fail(device.CodeFetchFailed, err)
	}
	return users, nil
}

func (g *serviceGateway) GetAttendanceLogs(ctx context.Context, from, to time.Time) ([]device.RawLogEntry, error) {
	if err := g.requireConnected(); err != nil {
		return nil, err
	}
	var logs []device.RawLogEntry
	err := g.execute(ctx, "get_attendance_logs", func(ctx context.Context) error {
		var err error
		logs, err = g.client.GetAttendanceLogs(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, g.fail(device.CodeFetchFailed, err)
	}
	return logs, nil
}

// GetValidatedAttendanceLogs fetches raw logs and runs them through schema
// validation so callers never re-validate device output. With validation
// switched off the logs only pass through the lenient coercion path.
func (g *serviceGateway) GetValidatedAttendanceLogs(ctx context.Context, from, to time.Time) (device.ValidatedLogs, error) {
	logs, err := g.GetAttendanceLogs(ctx, from, to)
	if err != nil {
		return device.ValidatedLogs{}, err
	}
	if !g.opts.ValidationEnabled {
		return g.validator.AcceptAllLogs(logs), nil
	}
	return g.validator.ValidateLogs(logs), nil
}

// execute runs op through retry-inside-breaker and records the invocation in
// the rolling metrics.
func (g *serviceGateway) execute(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	started := time.Now()

	_, err := g.currentBreaker().Execute(func() (any, error) {
		policy := backoff.WithContext(backoff.WithMaxRetries(g.retryPolicy(), uint64(g.opts.MaxRetries)), ctx)
		return nil, backoff.Retry(func() error {
			opCtx, cancel := context.WithTimeout(ctx, g.opts.OperationTimeout)
			defer cancel()
			if err := op(opCtx); err != nil {
				g.log.Debug("device operation failed, may retry",
					slog.String("operation", operation),
					slog.String("error", err.Error()))
				return err
			}
			return nil
		}, policy)
	})

	elapsed := time.Since(started)
	g.record(operation, elapsed, err)
	return err
}

func (g *serviceGateway) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.opts.RetryInitialWait
	policy.MaxInterval = g.opts.RetryMaxWait
	return policy
}

// record updates the rolling metrics. Response time is an exponential moving
// average so one slow call cannot dominate the health view.
func (g *serviceGateway) record(operation string, elapsed time.Duration, err error) {
	const emaAlpha = 0.2

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	default:
		outcome = "failure"
	}
	metrics.DeviceOperations.WithLabelValues(g.cfg.ID, operation, outcome).Inc()
	metrics.DeviceOperationDuration.WithLabelValues(g.cfg.ID, operation).Observe(elapsed.Seconds())

	g.mu.Lock()
	defer g.mu.Unlock()
	g.m.TotalOperations++
	if err == nil {
		g.m.SuccessfulOperations++
	} else {
		g.m.FailedOperations++
	}
	ms := float64(elapsed.Milliseconds())
	if g.m.AvgResponseTimeMs == 0 {
		g.m.AvgResponseTimeMs = ms
	} else {
		g.m.AvgResponseTimeMs = emaAlpha*ms + (1-emaAlpha)*g.m.AvgResponseTimeMs
	}
}

func (g *serviceGateway) requireConnected() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != device.StateConnected {
		return &device.Error{
			Code:      device.CodeNotConnected,
			Message:   fmt.Sprintf("device %s is not connected", g.cfg.ID),
			Timestamp: time.Now(),
		}
	}
	return nil
}

func (g *serviceGateway) setState(s device.ConnectionState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// fail wraps err into the gateway's typed error, remembers it as lastError,
// and maps breaker/timeout causes onto their own codes.
func (g *serviceGateway) fail(code string, err error) *device.Error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		code = device.CodeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		code = device.CodeTimeout
	}

	dErr := &device.Error{
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	g.mu.Lock()
	g.lastError = dErr
	g.mu.Unlock()

	g.log.Warn("device operation failed",
		slog.String("code", code),
		slog.String("error", err.Error()))
	return dErr
}
