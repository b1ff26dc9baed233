package cron

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobFunc is one scheduled trigger.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
	inFlight atomic.Bool
}

// Scheduler drives the pipeline's background triggers on fixed intervals.
// Each job ticks on its own goroutine, and a tick is skipped while the
// previous run of the same job is still in flight, so a sync cycle that
// outlasts its interval never stacks concurrent runs. The first run happens
// one interval after Start.
type Scheduler struct {
	log *slog.Logger

	mu     sync.Mutex
	jobs   []*job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// AddJob registers a trigger. Must be called before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = append(s.jobs, &job{name: name, interval: interval, run: fn})
	s.log.Info("scheduled job registered",
		slog.String("job", name),
		slog.Duration("interval", interval))
}

// Start launches one ticker goroutine per registered job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop cancels all job contexts and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		// Cancellation wins over a tick that queued while a run was in flight.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	if !j.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in flight, skipping tick",
			slog.String("job", j.name))
		return
	}
	defer j.inFlight.Store(false)

	started := time.Now()
	if err := j.run(ctx); err != nil {
		s.log.Error("scheduled job failed",
			slog.String("job", j.name),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(started)))
		return
	}
	s.log.Debug("scheduled job finished",
		slog.String("job", j.name),
		slog.Duration("elapsed", time.Since(started)))
}

// RunOnce fires every registered job once, back to back, on the caller's
// context. Errors are logged, not returned; one failing trigger must not
// stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]*job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		s.fire(ctx, j)
	}
}
