package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type testJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs.Add(1)
	return t.err
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	runs    atomic.Int32
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingJob) Name() string { return "blocking" }

func (b *blockingJob) Run(ctx context.Context) error {
	b.runs.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return ctx.Err()
}

type orderedJob struct {
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (o orderedJob) Name() string { return o.name }

func (o orderedJob) Run(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.order = append(*o.order, o.name)
	return nil
}

func newTestScheduler(t *testing.T, params SchedulerParams) *Scheduler {
	t.Helper()
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	s, err := NewScheduler(params)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestRunNowRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(success, failure)})

	ran, err := s.RunNow(context.Background())
	if !ran {
		t.Fatal("expected cycle to run")
	}
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected combined job error, got %v", err)
	}
	if success.runs.Load() != 1 || failure.runs.Load() != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", success.runs.Load(), failure.runs.Load())
	}
	status := s.Status()
	if status.Cycles != 1 || status.LastError == "" || status.LastRunAt == nil || status.LastFinishedAt == nil {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Jobs) != 2 || status.Jobs[0] != "success" || status.Jobs[1] != "fail" {
		t.Fatalf("expected job names in status, got %v", status.Jobs)
	}
}

func TestJobsRunInRegistrationOrder(t *testing.T) {
	var (
		order []string
		mu    sync.Mutex
	)
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(
		orderedJob{name: InventoryJobName, order: &order, mu: &mu},
		orderedJob{name: StockCheckJobName, order: &order, mu: &mu},
	)})
	if _, err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != InventoryJobName || order[1] != StockCheckJobName {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestOverlappingCycleIsSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := newBlockingJob()
	s := newTestScheduler(t, SchedulerParams{
		Registry: NewRegistry(job),
		Metrics:  metrics.NewJobMetrics(reg),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background())
	}()
	<-job.started

	ran, err := s.RunNow(context.Background())
	if ran || err != nil {
		t.Fatalf("expected skip, got ran=%v err=%v", ran, err)
	}
	if !s.Status().InFlight {
		t.Fatal("expected in-flight cycle in status")
	}
	close(job.release)
	<-done

	status := s.Status()
	if status.Skipped != 1 || status.Cycles != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if job.runs.Load() != 1 {
		t.Fatalf("expected a single run, got %d", job.runs.Load())
	}
}

func TestStartIsIdempotentAndRunsEagerly(t *testing.T) {
	job := &testJob{name: "eager"}
	s := newTestScheduler(t, SchedulerParams{
		Registry: NewRegistry(job),
		Interval: func(context.Context) (time.Duration, error) { return time.Hour, nil },
	})
	ctx := context.Background()

	if !s.Start(ctx) {
		t.Fatal("expected first start to succeed")
	}
	if s.Start(ctx) {
		t.Fatal("expected second start to be a no-op")
	}
	waitFor(t, func() bool { return job.runs.Load() == 1 })

	status := s.Status()
	if !status.Running || status.Interval != "1h0m0s" || status.IntervalSeconds != 3600 {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Status().Running {
		t.Fatal("expected scheduler to be stopped")
	}
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	job := newBlockingJob()
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(job), DefaultInterval: time.Hour})
	ctx := context.Background()

	s.Start(ctx)
	<-job.started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected stop to wait for the running cycle, got %v", err)
	}

	close(job.release)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	status := s.Status()
	if status.InFlight || status.Cycles != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	// the cycle context is detached from the loop, so the job saw no cancellation
	if status.LastError != "" {
		t.Fatalf("cycle should finish cleanly, got %q", status.LastError)
	}
}

func TestTickAfterStopIsDropped(t *testing.T) {
	job := &testJob{name: "late"}
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(job)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ticks := make(chan time.Time, 1)
	for range 50 {
		ticks <- time.Now()
		s.drive(ctx, ticks)
		select {
		case <-ticks:
		default:
		}
	}
	if runs := job.runs.Load(); runs != 0 {
		t.Fatalf("expected no cycle after stop, got %d", runs)
	}
}

func TestCyclesDoNotInheritStarterFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: logger.FormatJSON})
	job := &testJob{name: "quiet"}
	s := newTestScheduler(t, SchedulerParams{Logger: logg, Registry: NewRegistry(job), DefaultInterval: time.Hour})

	s.Start(logg.WithRequestID(context.Background(), "req-admin-1"))
	waitFor(t, func() bool { return s.Status().Cycles == 1 })
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	var sawJob bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, "job completed") {
			continue
		}
		sawJob = true
		if strings.Contains(line, "req-admin-1") {
			t.Fatalf("cycle log carries the starter's request id: %s", line)
		}
	}
	if !sawJob {
		t.Fatalf("expected a job completion entry:\n%s", buf.String())
	}
}

func TestRestartRereadsInterval(t *testing.T) {
	var minutes atomic.Int64
	minutes.Store(60)
	s := newTestScheduler(t, SchedulerParams{
		Interval: func(context.Context) (time.Duration, error) {
			return time.Duration(minutes.Load()) * time.Minute, nil
		},
	})
	ctx := context.Background()
	s.Start(ctx)
	minutes.Store(5)
	if err := s.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer func() { _ = s.Stop(ctx) }()
	if got := s.Status().Interval; got != "5m0s" {
		t.Fatalf("expected 5m interval after restart, got %s", got)
	}
}

func TestIntervalFallsBackOnLookupError(t *testing.T) {
	s := newTestScheduler(t, SchedulerParams{
		DefaultInterval: 2 * time.Hour,
		Interval:        func(context.Context) (time.Duration, error) { return 0, errors.New("db down") },
	})
	if got := s.resolveInterval(context.Background()); got != 2*time.Hour {
		t.Fatalf("expected fallback interval, got %v", got)
	}
}

func TestLockHeldSkipsJobs(t *testing.T) {
	lock := &LocalLock{}
	_, _ = lock.Acquire(context.Background())
	job := &testJob{name: "locked"}
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(job), Lock: lock})

	if _, err := s.RunNow(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.runs.Load() != 0 {
		t.Fatal("jobs must not run while another instance holds the lock")
	}
}

func TestPanickingJobIsReported(t *testing.T) {
	s := newTestScheduler(t, SchedulerParams{Registry: NewRegistry(panicJob{})})
	_, err := s.RunNow(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
}

type panicJob struct{}

func (panicJob) Name() string              { return "panic" }
func (panicJob) Run(context.Context) error { panic("kaboom") }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
