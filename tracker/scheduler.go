package tracker

import (
	"context"
	"time"

	"bitbucket.org/bloomspal/sonia_backend/config"
	"bitbucket.org/bloomspal/sonia_backend/models"
	"bitbucket.org/bloomspal/sonia_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Scheduler fires one run per day at the configured local hour. It
// blocks until the context is cancelled.
type Scheduler struct {
	Runner *Runner
	logger *logrus.Logger
}

func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{Runner: runner, logger: config.GetLogger()}
}

func (s *Scheduler) location() *time.Location {
	loc, err := time.LoadLocation(s.Runner.Settings.Timezone)
	if err != nil {
		s.logger.WithField("timezone", s.Runner.Settings.Timezone).
			Warn("invalid timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}

func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start loops until ctx is cancelled. A failed run is logged and the
// loop keeps going; the next day's run retries everything still
// eligible.
func (s *Scheduler) Start(ctx context.Context) {
	loc := s.location()
	for {
		now := time.Now().In(loc)
		next := nextRunAt(now, s.Runner.Settings.RunHour)
		s.logger.WithFields(logrus.Fields{
			"next_run": next.Format(time.RFC3339),
		}).Info("scheduler waiting")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		runCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		runCtx = utils.SetActorNameInContext(runCtx, "scheduler")
		if _, err := s.Runner.Execute(runCtx, models.RunTriggeredScheduled); err != nil {
			if err == ErrRunInProgress {
				s.logger.Warn("scheduled run skipped, another run is active")
				continue
			}
			config.LogError(s.logger, "scheduler.go", "Start", "scheduled run", nil, err)
		}
	}
}
