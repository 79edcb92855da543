package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/credstock/internal/settings"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultInterval = time.Hour

// IntervalFunc resolves the tick interval each time the scheduler starts.
type IntervalFunc func(ctx context.Context) (time.Duration, error)

// SettingsInterval reads the interval from runtime settings.
func SettingsInterval(provider settings.Provider) IntervalFunc {
	return func(ctx context.Context) (time.Duration, error) {
		snap, err := provider.Get(ctx)
		if err != nil {
			return 0, err
		}
		return snap.CheckInterval(), nil
	}
}

// SchedulerParams configure the scheduler.
type SchedulerParams struct {
	Logger          *logger.Logger
	Registry        *Registry
	Lock            Lock
	Metrics         *metrics.JobMetrics
	Interval        IntervalFunc
	DefaultInterval time.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running         bool       `json:"running"`
	InFlight        bool       `json:"inFlight"`
	Interval        string     `json:"interval"`
	IntervalSeconds int64      `json:"intervalSeconds"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	LastFinishedAt  *time.Time `json:"lastFinishedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	Cycles          int64      `json:"cycles"`
	Skipped         int64      `json:"skipped"`
	Jobs            []string   `json:"jobs"`
}

// Scheduler runs the registered jobs once at start and then on every tick.
// A tick that arrives while a cycle is still running is skipped.
type Scheduler struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	resolve  IntervalFunc
	fallback time.Duration
	now      func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	busy atomic.Bool

	stateMu        sync.Mutex
	interval       time.Duration
	inflight       chan struct{}
	lastRunAt      time.Time
	lastFinishedAt time.Time
	lastError      string
	cycles         int64
	skipped        int64
}

// NewScheduler builds a scheduler.
func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	lock := params.Lock
	if lock == nil {
		lock = &LocalLock{}
	}
	fallback := params.DefaultInterval
	if fallback <= 0 {
		fallback = defaultInterval
	}
	return &Scheduler{
		logg:     params.Logger,
		registry: registry,
		lock:     lock,
		metrics:  params.Metrics,
		resolve:  params.Interval,
		fallback: fallback,
		now:      time.Now,
		interval: fallback,
	}, nil
}

// Start launches the loop. It returns false when the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}

	interval := s.resolveInterval(ctx)
	s.stateMu.Lock()
	s.interval = interval
	s.stateMu.Unlock()

	// ticks log through s.logg alone; request fields of the caller stay out of them
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done
	go s.loop(loopCtx, interval, done)

	s.logg.Info(s.logg.WithField(ctx, "interval", interval.String()), "scheduler started")
	return true
}

// Stop halts the loop and waits for an in-flight cycle, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.logg.Info(ctx, "scheduler stopped")
	}

	s.stateMu.Lock()
	inflight := s.inflight
	s.stateMu.Unlock()
	if inflight == nil {
		return nil
	}
	select {
	case <-inflight:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the loop and starts it again with a freshly resolved interval.
func (s *Scheduler) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.Start(ctx)
	return nil
}

// RunNow runs one cycle on the caller's goroutine unless a cycle is already in flight.
func (s *Scheduler) RunNow(ctx context.Context) (bool, error) {
	return s.tryCycle(ctx)
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	status := Status{
		Running:         running,
		InFlight:        s.inflight != nil,
		Interval:        s.interval.String(),
		IntervalSeconds: int64(s.interval / time.Second),
		LastError:       s.lastError,
		Cycles:          s.cycles,
		Skipped:         s.skipped,
		Jobs:            s.registry.Names(),
	}
	if !s.lastRunAt.IsZero() {
		at := s.lastRunAt
		status.LastRunAt = &at
	}
	if !s.lastFinishedAt.IsZero() {
		at := s.lastFinishedAt
		status.LastFinishedAt = &at
	}
	return status
}

func (s *Scheduler) resolveInterval(ctx context.Context) time.Duration {
	if s.resolve == nil {
		return s.fallback
	}
	interval, err := s.resolve(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "interval lookup failed; using default")
		return s.fallback
	}
	if interval <= 0 {
		return s.fallback
	}
	return interval
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	s.tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.drive(ctx, ticker.C)
}

// drive runs a cycle per tick until ctx is cancelled. A tick racing the cancellation is dropped.
func (s *Scheduler) drive(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.tryCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
}

// tryCycle runs a cycle on a context detached from cancellation so Stop never interrupts one midway.
func (s *Scheduler) tryCycle(ctx context.Context) (bool, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.stateMu.Lock()
		s.skipped++
		s.stateMu.Unlock()
		if s.metrics != nil {
			s.metrics.IncSkipped()
		}
		s.logg.Warn(ctx, "previous cycle still running; skipping tick")
		return false, nil
	}

	done := make(chan struct{})
	s.stateMu.Lock()
	s.inflight = done
	s.lastRunAt = s.now().UTC()
	s.stateMu.Unlock()

	err := s.runCycle(context.WithoutCancel(ctx))

	s.stateMu.Lock()
	s.inflight = nil
	s.lastFinishedAt = s.now().UTC()
	s.cycles++
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.stateMu.Unlock()
	close(done)
	s.busy.Store(false)
	return true, err
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another scheduler instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		switch relErr := s.lock.Release(ctx); {
		case errors.Is(relErr, ErrLockLost):
			s.logg.Warn(ctx, "scheduler lock expired before the cycle finished")
		case relErr != nil:
			s.logg.Error(ctx, "failed to release scheduler lock", relErr)
		}
	}()

	var errs error
	for _, job := range s.registry.Jobs() {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "scheduler.job")
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
		duration := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveDuration(job.Name(), duration)
		}
		jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
		if err != nil {
			s.logg.Error(s.logg.WithField(jobCtx, "retryable", pkgerrors.Retryable(err)), "job failed", err)
			if s.metrics != nil {
				s.metrics.IncFailure(job.Name())
			}
			err = fmt.Errorf("%s: %w", job.Name(), err)
			return
		}
		s.logg.Info(jobCtx, "job completed")
		if s.metrics != nil {
			s.metrics.IncSuccess(job.Name())
		}
	}()
	return job.Run(jobCtx)
}
