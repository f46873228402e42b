// Package scheduler runs periodic background jobs: drift monitoring and
// cache maintenance.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Run() error
}

// Scheduler wraps a cron runner with logging around each job.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Register schedules a job with a cron spec ("@hourly", "0 3 * * *", ...).
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		log := s.log.With().Str("job", job.Name()).Logger()
		log.Debug().Msg("Running scheduled job")
		if err := job.Run(); err != nil {
			log.Error().Err(err).Msg("Scheduled job failed")
			return
		}
		log.Debug().Msg("Scheduled job completed")
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}
