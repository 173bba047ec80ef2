package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Description() string { return "test job" }

func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

type recordingObserver struct {
	mu   sync.Mutex
	jobs []string
	errs []error
}

func (o *recordingObserver) ObserveJob(job string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, job)
	o.errs = append(o.errs, err)
}

func newTestScheduler(obs Observer) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Observer = obs
	return NewScheduler(cfg)
}

func TestParseCron(t *testing.T) {
	s, err := ParseCron("0 3 * * *")
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC), s.Next(from))
	assert.Equal(t, "0 3 * * *", s.String())

	daily, err := ParseCron("@daily")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), daily.Next(from))

	_, err = ParseCron("61 * * * *")
	assert.Error(t, err)

	assert.Panics(t, func() { MustParseCron("not a cron") })
}

func TestScheduler_RegisterDuplicate(t *testing.T) {
	s := newTestScheduler(nil)
	job := &testJob{name: "dup"}
	require.NoError(t, s.Register(job, Every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, Every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestScheduler(obs)
	job := &testJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.RunCount, int64(2))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.NotEmpty(t, obs.jobs)
	assert.Equal(t, "tick", obs.jobs[0])
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := newTestScheduler(nil)
	job := &testJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		info, _ := s.GetJobInfo("slow")
		return info.SkipCount > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler(nil)
	boom := errors.New("boom")
	job := &testJob{name: "manual", err: boom}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	var completed atomic.Bool
	s.OnJobComplete(func(r JobResult) { completed.Store(r.Manual) })

	res, err := s.RunNow(context.Background(), "manual")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, completed.Load())

	hist := s.GetHistory(10)
	require.Len(t, hist, 1)
	assert.Equal(t, "manual", hist[0].JobName)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

type panicJob struct{}

func (panicJob) Name() string { return "panics" }

func (panicJob) Description() string { return "" }

func (panicJob) Run(context.Context) error { panic("kaboom") }

func TestScheduler_RecoversPanics(t *testing.T) {
	s := newTestScheduler(nil)
	require.NoError(t, s.Register(panicJob{}, Every(time.Hour)))
	_, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)
}

func TestScheduler_DisabledJobIsNotActivated(t *testing.T) {
	s := newTestScheduler(nil)
	job := &testJob{name: "off"}
	require.NoError(t, s.Register(job, Every(5*time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Zero(t, job.runs.Load())

	// Manual runs ignore the flag.
	_, err := s.RunNow(context.Background(), "off")
	require.NoError(t, err)
	assert.Equal(t, int32(1), job.runs.Load())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)
	assert.Equal(t, "@every 5ms", jobs[0].Schedule)
}
