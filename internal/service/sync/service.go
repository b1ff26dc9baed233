package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/record"
	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/syncjob"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/metrics"
	"github.com/cmlabs-hris/attendance-sync-go/internal/service/validation"
)

// GatewayFactory builds a gateway for one configured device. Each job
// execution gets fresh gateways so device state never leaks between jobs.
type GatewayFactory func(cfg device.Config) device.Gateway

// Options configures the orchestrator.
type Options struct {
	Devices          []device.Config
	ParallelMachines bool
	DuplicatePolicy  record.DuplicatePolicy
}

// Orchestrator implements syncjob.Orchestrator. The in-flight job set is its
// only mutable shared state and every insert is an atomic check-and-set under
// the mutex.
type Orchestrator struct {
	syncjob.Repository
	records   record.Repository
	validator *validation.Service
	gateways  GatewayFactory
	opts      Options
	validate  *validator.Validate
	log       *slog.Logger

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc

	statsMu     sync.Mutex
	stats       rollingStats
	consecutive int
}

type rollingStats struct {
	totalJobs       int64
	completedJobs   int64
	failedJobs      int64
	totalTimeMs     int64
	lastCompletedAt *time.Time
}

func NewOrchestrator(jobRepo syncjob.Repository, recordRepo record.Repository, validationSvc *validation.Service, gateways GatewayFactory, opts Options, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Repository: jobRepo,
		records:    recordRepo,
		validator:  validationSvc,
		gateways:   gateways,
		opts:       opts,
		validate:   validator.New(),
		log:        log,
		inFlight:   make(map[string]context.CancelFunc),
	}
}

// CreateJob records a new PENDING job. An empty device list means every
// enabled configured device.
func (o *Orchestrator) CreateJob(ctx context.Context, req syncjob.CreateJobRequest) (syncjob.SyncJob, error) {
	if err := o.validate.Struct(req); err != nil {
		return syncjob.SyncJob{}, fmt.Errorf("invalid job request: %w", err)
	}
	if req.Config.EndDate.Before(req.Config.StartDate) {
		return syncjob.SyncJob{}, syncjob.ErrInvalidDateRange
	}

	cfg := req.Config
	if len(cfg.DeviceIDs) == 0 {
		for _, d := range o.opts.Devices {
			if d.Enabled {
				cfg.DeviceIDs = append(cfg.DeviceIDs, d.ID)
			}
		}
	}

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	job := syncjob.SyncJob{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Status:      syncjob.StatusPending,
		Config:      cfg,
		TriggeredBy: req.TriggeredBy,
		ScheduledAt: scheduledAt,
		MaxRetries:  req.MaxRetries,
	}

	created, err := o.Create(ctx, job)
	if err != nil {
		return syncjob.SyncJob{}, fmt.Errorf("persist job: %w", err)
	}
	o.log.Info("sync job created",
		slog.String("job_id", created.ID),
		slog.String("type", created.Type),
		slog.Int("devices", len(cfg.DeviceIDs)))
	return created, nil
}

// ExecuteJob runs a job to completion. The job transitions to COMPLETED even
// when some devices failed; FAILED is reserved for orchestration faults.
func (o *Orchestrator) ExecuteJob(ctx context.Context, jobID string) (syncjob.SyncJob, error) {
	job, err := o.GetByID(ctx, jobID)
	if err != nil {
		return syncjob.SyncJob{}, err
	}
	if job.IsTerminal() {
		return job, syncjob.ErrJobTerminal
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if _, running := o.inFlight[jobID]; running {
		o.mu.Unlock()
		return job, syncjob.ErrJobAlreadyRunning
	}
	o.inFlight[jobID] = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inFlight, jobID)
		o.mu.Unlock()
	}()

	if err := o.MarkRunning(ctx, jobID); err != nil {
		return job, err
	}
	o.log.Info("sync job started", slog.String("job_id", jobID))

	started := time.Now()
	result, execErr := o.runDevices(jobCtx, job)
	elapsed := time.Since(started)

	if execErr != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			// Cancelled via CancelJob; the store row is already CANCELLED.
			o.recordOutcome(syncjob.StatusCancelled, elapsed)
			return o.GetByID(ctx, jobID)
		}
		o.log.Error("sync job failed",
			slog.String("job_id", jobID),
			slog.String("error", execErr.Error()))
		requeued := false
		if job.RetryCount < job.MaxRetries {
			if retryErr := o.IncrementRetry(ctx, jobID); retryErr == nil {
				requeued = true
				o.log.Info("sync job requeued for retry",
					slog.String("job_id", jobID),
					slog.Int("retry", job.RetryCount+1))
			}
		}
		if !requeued {
			if markErr := o.MarkFailed(ctx, jobID, execErr.Error()); markErr != nil {
				o.log.Error("mark failed", slog.String("job_id", jobID), slog.String("error", markErr.Error()))
			}
		}
		o.recordOutcome(syncjob.StatusFailed, elapsed)
		final, _ := o.GetByID(ctx, jobID)
		return final, execErr
	}

	result.ExecutionTimeMs = elapsed.Milliseconds()
	if err := o.MarkCompleted(ctx, jobID, result); err != nil {
		if jobCtx.Err() != nil {
			o.recordOutcome(syncjob.StatusCancelled, elapsed)
			return o.GetByID(ctx, jobID)
		}
		return syncjob.SyncJob{}, err
	}

	o.recordOutcome(syncjob.StatusCompleted, elapsed)
	o.log.Info("sync job completed",
		slog.String("job_id", jobID),
		slog.Int("machines", result.TotalMachines),
		slog.Int("failed_machines", result.FailedMachines),
		slog.Int("records_created", result.RecordsCreated),
		slog.Int64("elapsed_ms", result.ExecutionTimeMs))
	return o.GetByID(ctx, jobID)
}

// runDevices processes every enabled device the job names and aggregates the
// machine results in configured priority order regardless of completion
// order. The returned error is an orchestration fault, not a device failure.
func (o *Orchestrator) runDevices(ctx context.Context, job syncjob.SyncJob) (syncjob.SyncResult, error) {
	devices := o.resolveDevices(job.Config.DeviceIDs)
	if len(devices) == 0 {
		return syncjob.SyncResult{}, syncjob.ErrNoEnabledDevices
	}

	parallel := o.opts.ParallelMachines || job.Config.ParallelMachines
	machineResults := make([]syncjob.MachineJobResult, len(devices))

	if parallel {
		g, gCtx := errgroup.WithContext(ctx)
		for i, cfg := range devices {
			i, cfg := i, cfg
			g.Go(func() error {
				machineResults[i] = o.processDevice(gCtx, job, cfg)
				return nil
			})
		}
		// processDevice never returns an error; device failures live in the
		// machine result.
		_ = g.Wait()
	} else {
		for i, cfg := range devices {
			if ctx.Err() != nil {
				return syncjob.SyncResult{}, ctx.Err()
			}
			machineResults[i] = o.processDevice(ctx, job, cfg)
		}
	}

	if ctx.Err() != nil {
		return syncjob.SyncResult{}, ctx.Err()
	}

	result := syncjob.SyncResult{
		TotalMachines:  len(devices),
		MachineResults: machineResults,
	}
	for _, mr := range machineResults {
		if mr.Status == syncjob.MachineFailed {
			result.FailedMachines++
		} else {
			result.SuccessfulMachines++
		}
		result.TotalRecordsProcessed += mr.RecordsProcessed
		result.RecordsCreated += mr.RecordsCreated
		result.DuplicatesFound += mr.DuplicatesFound
		result.ConflictsFound += mr.ConflictsFound
	}
	result.SuccessRate = float64(result.SuccessfulMachines) / float64(result.TotalMachines) * 100

	return result, nil
}

// resolveDevices maps the job's device ids onto configured devices, keeps
// enabled ones, and orders them by priority.
func (o *Orchestrator) resolveDevices(ids []string) []device.Config {
	byID := make(map[string]device.Config, len(o.opts.Devices))
	for _, d := range o.opts.Devices {
		byID[d.ID] = d
	}

	var out []device.Config
	for _, id := range ids {
		d, ok := byID[id]
		if !ok || !d.Enabled {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// processDevice runs the full fetch-validate-persist cycle for one device.
// Every failure is absorbed into a FAILED machine result so one device can
// never abort the rest of the job.
func (o *Orchestrator) processDevice(ctx context.Context, job syncjob.SyncJob, cfg device.Config) syncjob.MachineJobResult {
	started := time.Now()
	mr := syncjob.MachineJobResult{DeviceID: cfg.ID, Status: syncjob.MachineSuccess}
	fail := func(err error) syncjob.MachineJobResult {
		mr.Status = syncjob.MachineFailed
		mr.Errors = append(mr.Errors, err.Error())
		mr.ExecutionTimeMs = time.Since(started).Milliseconds()
		o.log.Warn("device sync failed",
			slog.String("job_id", job.ID),
			slog.String("device", cfg.ID),
			slog.String("error", err.Error()))
		return mr
	}

	gw := o.gateways(cfg)
	if err := gw.Connect(ctx); err != nil {
		return fail(err)
	}
	defer func() {
		_ = gw.Disconnect(context.WithoutCancel(ctx))
	}()

	logs, err := gw.GetAttendanceLogs(ctx, job.Config.StartDate, job.Config.EndDate)
	if err != nil {
		return fail(err)
	}

	batch, err := o.validator.ValidateBatch(ctx, logs)
	if err != nil {
		return fail(err)
	}

	mr.RecordsProcessed = batch.TotalProcessed
	mr.DuplicatesFound = batch.DuplicateCount
	mr.ConflictsFound = batch.ConflictCount
	for _, invalid := range batch.InvalidRecords {
		for _, recErr := range invalid.Errors {
			mr.Errors = append(mr.Errors, fmt.Sprintf("%s: %s", recErr.Kind, recErr.Message))
		}
	}

	created, err := o.persist(ctx, job, cfg, batch)
	if err != nil {
		return fail(err)
	}
	mr.RecordsCreated = created

	if len(mr.Errors) > 0 || batch.ConflictCount > 0 {
		mr.Status = syncjob.MachinePartial
	}
	mr.ExecutionTimeMs = time.Since(started).Milliseconds()
	return mr
}

// persist writes the batch's valid records and, under UPDATE_EXISTING,
// overwrites the records the validator flagged as duplicates.
func (o *Orchestrator) persist(ctx context.Context, job syncjob.SyncJob, cfg device.Config, batch record.BatchValidationResult) (int, error) {
	rows := make([]record.AttendanceRecord, 0, len(batch.ValidRecords))
	for _, pr := range batch.ValidRecords {
		rows = append(rows, o.toRecord(job, cfg, pr))
	}

	created := 0
	if len(rows) > 0 {
		res, err := o.records.CreateMany(ctx, rows)
		if err != nil {
			return 0, fmt.Errorf("persist records: %w", err)
		}
		created = len(res.Created)
	}

	if o.opts.DuplicatePolicy == record.UpdateExisting {
		for _, dup := range batch.DuplicateRecords {
			if dup.ExistingRecordID == nil {
				continue
			}
			if err := o.records.UpdateByID(ctx, *dup.ExistingRecordID, o.toRecord(job, cfg, dup)); err != nil {
				return created, fmt.Errorf("update existing record: %w", err)
			}
		}
	}

	return created, nil
}

func (o *Orchestrator) toRecord(job syncjob.SyncJob, cfg device.Config, pr record.ProcessedRecord) record.AttendanceRecord {
	ts := pr.Record.Timestamp
	jobID := job.ID
	return record.AttendanceRecord{
		StaffID:             derefOr(pr.Mapping.StaffID, ""),
		Date:                time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location()),
		Timestamp:           ts,
		DeviceID:            cfg.ID,
		DeviceTransactionID: pr.Record.TransactionID,
		EventState:          pr.Record.EventState,
		EventType:           pr.Record.EventType,
		Origin:              record.OriginAutoSync,
		SyncJobID:           &jobID,
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// CancelJob removes the job from the in-flight set, cancels its context, and
// marks it CANCELLED. An in-progress device call still runs to its own
// timeout.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID string) error {
	o.mu.Lock()
	cancel, running := o.inFlight[jobID]
	if running {
		delete(o.inFlight, jobID)
	}
	o.mu.Unlock()

	if running {
		cancel()
	}

	if err := o.MarkCancelled(ctx, jobID); err != nil {
		return err
	}
	o.log.Info("sync job cancelled", slog.String("job_id", jobID))
	return nil
}

func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (syncjob.SyncJob, error) {
	return o.GetByID(ctx, jobID)
}

func (o *Orchestrator) ListJobs(ctx context.Context, filter syncjob.JobFilter) (syncjob.ListJobsResult, error) {
	return o.List(ctx, filter)
}

func (o *Orchestrator) recordOutcome(status string, elapsed time.Duration) {
	metrics.SyncJobs.WithLabelValues(status).Inc()
	metrics.SyncJobDuration.Observe(elapsed.Seconds())

	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.stats.totalJobs++
	o.stats.totalTimeMs += elapsed.Milliseconds()
	switch status {
	case syncjob.StatusCompleted:
		o.stats.completedJobs++
		o.consecutive = 0
		now := time.Now()
		o.stats.lastCompletedAt = &now
	case syncjob.StatusFailed:
		o.stats.failedJobs++
		o.consecutive++
	}
}

// GetMetrics implements syncjob.Orchestrator.
func (o *Orchestrator) GetMetrics() syncjob.ExecutionMetrics {
	o.mu.Lock()
	inFlight := len(o.inFlight)
	o.mu.Unlock()

	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	m := syncjob.ExecutionMetrics{
		TotalJobs:       o.stats.totalJobs,
		CompletedJobs:   o.stats.completedJobs,
		FailedJobs:      o.stats.failedJobs,
		JobsInFlight:    inFlight,
		LastCompletedAt: o.stats.lastCompletedAt,
	}
	if o.stats.totalJobs > 0 {
		m.AverageTimeMs = float64(o.stats.totalTimeMs) / float64(o.stats.totalJobs)
		m.SuccessRate = float64(o.stats.completedJobs) / float64(o.stats.totalJobs) * 100
	}
	return m
}

// GetHealthStatus implements syncjob.Orchestrator. Health is derived from the
// rolling counters alone so the dashboard never re-queries job history.
func (o *Orchestrator) GetHealthStatus() syncjob.HealthStatus {
	o.statsMu.Lock()
	consecutive := o.consecutive
	total := o.stats.totalJobs
	failed := o.stats.failedJobs
	o.statsMu.Unlock()

	status := syncjob.HealthStatus{
		CurrentStatus:       syncjob.HealthActive,
		ConsecutiveFailures: consecutive,
		IsHealthy:           true,
	}

	switch {
	case consecutive >= 3:
		status.CurrentStatus = syncjob.HealthDown
		status.IsHealthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("%d consecutive job failures", consecutive))
	case consecutive > 0:
		status.CurrentStatus = syncjob.HealthDegraded
		status.IsHealthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("%d consecutive job failures", consecutive))
	}

	if total > 0 {
		failureRate := float64(failed) / float64(total)
		if failureRate > 0.5 && status.CurrentStatus == syncjob.HealthActive {
			status.CurrentStatus = syncjob.HealthDegraded
			status.IsHealthy = false
			status.Issues = append(status.Issues, fmt.Sprintf("failure rate %.0f%%", failureRate*100))
		}
	}

	return status
}

// TestConnection implements the device test surface: connect, probe, and
// disconnect against an arbitrary device config.
func (o *Orchestrator) TestConnection(ctx context.Context, cfg device.Config) syncjob.ConnectionTestResult {
	started := time.Now()
	gw := o.gateways(cfg)

	if err := gw.Connect(ctx); err != nil {
		return syncjob.ConnectionTestResult{
			Success:        false,
			Message:        err.Error(),
			ResponseTimeMs: time.Since(started).Milliseconds(),
		}
	}
	defer func() {
		_ = gw.Disconnect(context.WithoutCancel(ctx))
	}()

	info, err := gw.GetDeviceInfo(ctx)
	if err != nil {
		return syncjob.ConnectionTestResult{
			Success:        false,
			Message:        err.Error(),
			ResponseTimeMs: time.Since(started).Milliseconds(),
		}
	}

	return syncjob.ConnectionTestResult{
		Success:        true,
		Message:        fmt.Sprintf("connected to %s (%s)", cfg.Name, info.Model),
		ResponseTimeMs: time.Since(started).Milliseconds(),
		DeviceInfo:     &info,
	}
}

// GetDeviceInfo implements the device test surface.
func (o *Orchestrator) GetDeviceInfo(ctx context.Context, cfg device.Config) (device.Info, error) {
	gw := o.gateways(cfg)
	if err := gw.Connect(ctx); err != nil {
		return device.Info{}, err
	}
	defer func() {
		_ = gw.Disconnect(context.WithoutCancel(ctx))
	}()
	return gw.GetDeviceInfo(ctx)
}
