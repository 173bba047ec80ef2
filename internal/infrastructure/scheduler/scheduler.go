// Package scheduler runs background jobs such as the reference-data import on
// cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobBusy                 = errors.New("job is already running")
	ErrJobPanicked             = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is a unit of scheduled work. Run's ctx is cancelled on Stop.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields activation times. Any cron.Schedule with a String method
// qualifies.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// Observer receives one call per finished run.
type Observer interface {
	ObserveJob(job string, took time.Duration, err error)
}

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
	Manual      bool
}

// SchedulerConfig configures NewScheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone the cron expressions are evaluated in. Default UTC.
	Timezone *time.Location

	// MaxHistorySize bounds GetHistory. Default 200.
	MaxHistorySize int

	Observer Observer
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Logger: slog.Default(), Timezone: time.UTC, MaxHistorySize: 200}
}

// Scheduler drives registered jobs with a robfig/cron runner. A job never
// overlaps with itself: an activation that finds the previous run still in
// progress is skipped and counted.
type Scheduler struct {
	log      *slog.Logger
	tz       *time.Location
	observer Observer
	keep     int

	mu      sync.Mutex
	runner  *cron.Cron
	jobs    map[string]*entry
	history []JobResult
	onDone  func(JobResult)
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	started time.Time
}

type entry struct {
	job      Job
	schedule Schedule
	id       cron.EntryID

	enabled bool
	busy    bool

	lastRun time.Time
	runs    int64
	fails   int64
	skips   int64
	last    *JobResult
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 200
	}
	log := config.Logger.With("component", "scheduler")
	return &Scheduler{
		log:      log,
		tz:       config.Timezone,
		observer: config.Observer,
		keep:     config.MaxHistorySize,
		runner:   cron.New(cron.WithLocation(config.Timezone), cron.WithLogger(cronLogger{log})),
		jobs:     make(map[string]*entry),
	}
}

// Register adds job under its name.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, enabled: true}
	e.id = s.runner.Schedule(schedule, cron.FuncJob(func() { s.activate(e) }))
	s.jobs[name] = e

	s.log.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", schedule.Next(time.Now().In(s.tz)).Format(time.RFC3339),
	)
	return nil
}

// SetEnabled toggles a job without unregistering it. A disabled job can
// still be run with RunNow.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	e.enabled = enabled
	s.log.Info("job toggled", "job", name, "enabled", enabled)
	return nil
}

// OnJobComplete sets a callback invoked after every run.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	s.onDone = fn
	s.mu.Unlock()
}

// Start launches the cron runner. Jobs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.started = time.Now()
	s.runner.Start()
	s.log.Info("scheduler started", "jobs_count", len(s.jobs))
	return nil
}

// Stop cancels running jobs and waits for scheduled runs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.runner.Stop().Done()
	s.log.Info("scheduler stopped", "uptime", time.Since(s.started).String())
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// activate is what the cron runner calls on every tick of a job.
func (s *Scheduler) activate(e *entry) {
	s.mu.Lock()
	if !s.running || !e.enabled {
		s.mu.Unlock()
		return
	}
	if e.busy {
		e.skips++
		s.mu.Unlock()
		s.log.Warn("job still running, skipping activation", "job", e.job.Name())
		return
	}
	e.busy = true
	ctx := s.ctx
	s.mu.Unlock()

	s.execute(ctx, e, false)
}

// RunNow runs a job immediately, ignoring its schedule. It fails with
// ErrJobBusy while another run of the same job is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.busy:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobBusy, name)
	}
	e.busy = true
	s.mu.Unlock()

	res := s.execute(ctx, e, true)
	return &res, res.Error
}

// execute runs e, which the caller has marked busy, and records the result.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	name := e.job.Name()
	s.log.Info("job started", "job", name, "manual", manual)

	start := time.Now()
	err := runSafely(ctx, e.job)
	end := time.Now()

	res := JobResult{
		JobName:     name,
		StartedAt:   start,
		CompletedAt: end,
		Duration:    end.Sub(start),
		Success:     err == nil,
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	e.busy = false
	e.lastRun = start
	e.runs++
	if err != nil {
		e.fails++
	}
	e.last = &res
	s.history = append(s.history, res)
	if over := len(s.history) - s.keep; over > 0 {
		s.history = s.history[over:]
	}
	hook := s.onDone
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveJob(name, res.Duration, err)
	}
	if err != nil {
		s.log.Error("job failed", "job", name, "duration", res.Duration.String(), "error", err)
	} else {
		s.log.Info("job completed", "job", name, "duration", res.Duration.String())
	}
	if hook != nil {
		hook(res)
	}
	return res
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// JobInfo is a snapshot of one registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Running     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	SkipCount   int64
	LastResult  *JobResult
}

// ListJobs returns every job, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, s.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) GetJobInfo(name string) (*JobInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	info := s.snapshot(e)
	return &info, nil
}

// snapshot must be called with mu held.
func (s *Scheduler) snapshot(e *entry) JobInfo {
	next := s.runner.Entry(e.id).Next
	if next.IsZero() && e.enabled {
		next = e.schedule.Next(time.Now().In(s.tz))
	}
	return JobInfo{
		Name:        e.job.Name(),
		Description: e.job.Description(),
		Enabled:     e.enabled,
		Running:     e.busy,
		Schedule:    e.schedule.String(),
		LastRun:     e.lastRun,
		NextRun:     next,
		RunCount:    e.runs,
		FailCount:   e.fails,
		SkipCount:   e.skips,
		LastResult:  e.last,
	}
}

// GetHistory returns up to limit recent results, oldest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	return append([]JobResult(nil), s.history[len(s.history)-limit:]...)
}

// cronLogger routes the runner's own messages to slog at debug level.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
