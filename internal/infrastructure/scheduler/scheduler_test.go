package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counting job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := New(DefaultConfig())
	job := &countingJob{name: "poll_marks"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	err := s.Register(job, NewIntervalSchedule(time.Minute))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestRegisterRejectsNilArguments(t *testing.T) {
	s := New(DefaultConfig())

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New(DefaultConfig())
	job := &countingJob{name: "poll_marks"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "poll_marks")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestRunNowReportsJobFailure(t *testing.T) {
	s := New(DefaultConfig())
	job := &countingJob{name: "poll_marks", err: errors.New("cycle failed")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "poll_marks")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, job.err)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(DefaultConfig())

	_, err := s.RunNow(context.Background(), "poll_nothing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 10 * time.Millisecond
	s := New(cfg)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestScheduledJobRunsOnInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 5 * time.Millisecond
	s := New(cfg)

	job := &countingJob{name: "poll_marks"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(20*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 5 * time.Millisecond
	s := New(cfg)

	job := &countingJob{name: "poll_marks"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))
	require.NoError(t, s.DisableJob("poll_marks"))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, job.runs.Load())
}

func TestListJobs(t *testing.T) {
	s := New(DefaultConfig())
	require.NoError(t, s.Register(&countingJob{name: "poll_marks"}, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Register(&countingJob{name: "poll_timetable"}, NewIntervalSchedule(time.Hour)))

	infos := s.ListJobs()
	require.Len(t, infos, 2)

	names := []string{infos[0].Name, infos[1].Name}
	assert.Contains(t, names, "poll_marks")
	assert.Contains(t, names, "poll_timetable")
}

func TestOnJobCompleteCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tick = 5 * time.Millisecond
	s := New(cfg)

	job := &countingJob{name: "poll_marks"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	results := make(chan JobResult, 1)
	s.OnJobComplete(func(result JobResult) {
		select {
		case results <- result:
		default:
		}
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case got := <-results:
		assert.Equal(t, "poll_marks", got.JobName)
		assert.True(t, got.Success)
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}
}
