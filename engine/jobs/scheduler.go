package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aethra/keybot/pkg/logger"
)

// Job is a named task run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on their schedules until its context ends. A run that
// is still in progress when the next tick arrives is skipped.
type Scheduler struct {
	jobs []Job
}

// New validates every job. Jobs with an empty schedule are dropped.
func New(jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{}
	for _, job := range jobs {
		if job.Schedule == "" {
			continue
		}
		if job.Name == "" {
			return nil, errors.New("job name is required")
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %s has no run function", job.Name)
		}
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return nil, fmt.Errorf("job %s: cron expression is invalid: %w", job.Name, err)
		}
		s.jobs = append(s.jobs, job)
	}
	return s, nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return nil
	}
	log := logger.FromContext(ctx)
	adapter := cronLogger{log: log}
	c := cron.New(cron.WithLogger(adapter), cron.WithChain(cron.SkipIfStillRunning(adapter)))
	for _, job := range s.jobs {
		if _, err := c.AddFunc(job.Schedule, s.wrap(ctx, job)); err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", job.Name, err)
		}
		log.Info("Scheduled job", "job", job.Name, "schedule", job.Schedule)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) wrap(ctx context.Context, job Job) func() {
	return func() {
		log := logger.FromContext(ctx).With("job", job.Name)
		start := time.Now()
		if err := job.Run(logger.ContextWithLogger(ctx, log)); err != nil {
			log.Error("Job failed", "error", err, "duration", time.Since(start))
			return
		}
		log.Debug("Job finished", "duration", time.Since(start))
	}
}

// cronLogger adapts the structured logger to cron's logging interface.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
