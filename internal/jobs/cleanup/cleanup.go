package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRetention = 2 * 365 * 24 * time.Hour

type readingPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job prunes old readings. The credit ledger is untouched: it is the
// audit record and has its own lifecycle.
type Job struct {
	readings  readingPruner
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func New(readings readingPruner, retention time.Duration, logger *zap.Logger) *Job {
	if retention <= 0 {
		retention = defaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		readings:  readings,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.readings == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	rows, err := j.readings.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune stale readings: %w", err)
	}
	if rows > 0 {
		j.logger.Info("pruned stale readings", zap.Int64("deleted", rows))
	}

	return nil
}
