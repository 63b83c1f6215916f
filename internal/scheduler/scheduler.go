// Package scheduler drives the Clock & Scheduler component: per-source
// fetch cadence, the pipeline chain from RAW through the Arbiter, the
// daily Performance Tuner run, the nightly Backtester window, and the
// live-game protection window around a game's start time, exposed as an
// advisory flag (LiveGameGuard.Active) that does not pause collection.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of scheduled work. Name is used for logging only.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a cron engine, adding structured logging around every
// job run and a RunNow path for operator-triggered execution.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler using 6-field (seconds-resolution) cron
// expressions, since per-source cadences are frequently sub-minute.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running registered jobs on their schedules. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for any in-flight job to finish, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on the given cron schedule, e.g. "@every 30s" or
// "0 0 9 * * *" (9 AM daily).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		started := time.Now()
		s.log.Debug().Str("job", job.Name()).Msg("job starting")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).
				Dur("elapsed", time.Since(started)).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", job.Name()).Dur("elapsed", time.Since(started)).Msg("job completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// RunNow executes job immediately, outside its schedule — used for
// operator-triggered runs (e.g. "force a backtest window now").
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("running job on demand")
	return job.Run()
}
