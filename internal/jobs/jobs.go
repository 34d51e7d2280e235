package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/vrsandeep/vidl/internal/logging"
	"github.com/vrsandeep/vidl/internal/updater"
)

// UpdateJobID is the job that crawls every tracked channel.
const UpdateJobID = "channel-update"

// Updater is the part of updater.Engine the update job needs.
type Updater interface {
	Update(ctx context.Context, sel updater.Selector, opts updater.Options) (*updater.Report, error)
}

// UpdateTask returns a task that updates the selected channels with opts.
func UpdateTask(u Updater, sel updater.Selector, opts updater.Options) Task {
	return func(ctx context.Context) (string, error) {
		report, err := u.Update(ctx, sel, opts)
		if err != nil {
			return "", err
		}
		return Summarize(report), nil
	}
}

// Summarize renders a one-line summary of an update run.
func Summarize(r *updater.Report) string {
	checked, skipped := 0, 0
	for _, c := range r.Channels {
		if c.Skipped {
			skipped++
		} else {
			checked++
		}
	}
	return fmt.Sprintf("Checked %d channels (%d skipped), %d new videos, %d failed.",
		checked, skipped, r.NewVideos(), len(r.Failed()))
}

// RegisterUpdateJob registers the channel update job with default options.
func RegisterUpdateJob(jm *JobManager, u Updater) {
	jm.Register(UpdateJobID, "Channel update", UpdateTask(u, updater.Selector{}, updater.Options{}))
}

// StartScheduler runs the channel update job every interval. An interval of
// zero disables scheduling and returns a nil scheduler.
func StartScheduler(jm *JobManager, interval time.Duration, logger *zap.Logger) (*gocron.Scheduler, error) {
	logger = logging.OrNop(logger).Named("scheduler")
	if interval <= 0 {
		logger.Info("Channel update interval is 0, scheduled updates are disabled.")
		return nil, nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	logger.Info("Scheduling job", zap.String("job", UpdateJobID), zap.Duration("interval", interval))
	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		logger.Debug("Scheduler is triggering job", zap.String("job", UpdateJobID))
		// Submitted through the manager so it never overlaps a manual run.
		if err := jm.RunJob(UpdateJobID); err != nil {
			logger.Warn("Scheduled job could not start", zap.String("job", UpdateJobID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", UpdateJobID, err)
	}

	s.StartAsync()
	return s, nil
}
