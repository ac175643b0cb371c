package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// OverdueFlagger marks tasks that passed their deadline
type OverdueFlagger interface {
	FlagOverdue(ctx context.Context) (int, error)
}

// DeadlineWorker periodically flags overdue tasks in the activity log
type DeadlineWorker struct {
	tasks    OverdueFlagger
	interval time.Duration
	logger   *logrus.Entry
}

func NewDeadlineWorker(tasks OverdueFlagger, interval time.Duration, logger *logrus.Entry) *DeadlineWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &DeadlineWorker{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a sweep immediately and then on every tick until ctx is cancelled
func (dw *DeadlineWorker) Start(ctx context.Context) {
	dw.logger.WithField("interval", dw.interval.String()).Info("Starting deadline worker...")
	ticker := time.NewTicker(dw.interval)
	defer ticker.Stop()

	dw.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			dw.sweep(ctx)
		case <-ctx.Done():
			dw.logger.Info("Stopping deadline worker...")
			return
		}
	}
}

func (dw *DeadlineWorker) sweep(ctx context.Context) {
	n, err := dw.tasks.FlagOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			dw.logger.WithError(err).Error("Failed to flag overdue tasks")
		}
		return
	}
	if n > 0 {
		dw.logger.WithField("flagged", n).Info("Flagged overdue tasks")
	}
}
