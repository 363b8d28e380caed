// Package jobs adapts the polling coordinators to the scheduler's Job
// interface.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/skolbridge/skolbridge/internal/infrastructure/scheduler"
)

// Refresher is the slice of a coordinator the scheduler needs: a name, a
// jittered cadence, and one poll cycle.
type Refresher interface {
	Name() string
	Interval() time.Duration
	Refresh(ctx context.Context) error
}

// PollJob runs one coordinator's poll cycle on its schedule.
type PollJob struct {
	refresher Refresher
}

// NewPollJob creates a job for one coordinator.
func NewPollJob(refresher Refresher) *PollJob {
	return &PollJob{refresher: refresher}
}

// Name implements scheduler.Job.
func (j *PollJob) Name() string {
	return "poll_" + j.refresher.Name()
}

// Run implements scheduler.Job.
func (j *PollJob) Run(ctx context.Context) error {
	return j.refresher.Refresh(ctx)
}

// Description implements scheduler.Job.
func (j *PollJob) Description() string {
	return fmt.Sprintf("polls the %s coordinator", j.refresher.Name())
}

// Schedule returns the job's interval schedule, carrying the
// coordinator's jitter.
func (j *PollJob) Schedule() scheduler.Schedule {
	return scheduler.NewIntervalSchedule(j.refresher.Interval())
}

// RegisterAll registers one poll job per refresher.
func RegisterAll(s *scheduler.Scheduler, refreshers ...Refresher) error {
	for _, r := range refreshers {
		job := NewPollJob(r)
		if err := s.Register(job, job.Schedule()); err != nil {
			return err
		}
	}
	return nil
}
