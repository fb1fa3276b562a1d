package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/jwoolee/beautylink-backend/internal/points"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
	"github.com/jwoolee/beautylink-backend/pkg/metrics"
)

const defaultSweepBatchSize = 500

// pointSweeper is the slice of the points service the sweep job drives.
type pointSweeper interface {
	MatureDue(ctx context.Context, now time.Time, batchSize int) (points.SweepResult, error)
	ExpireDue(ctx context.Context, now time.Time, batchSize int) (points.SweepResult, error)
}

// PointSweepJobParams configure the maturation and expiry sweeper.
type PointSweepJobParams struct {
	Logger    *logger.Logger
	Points    pointSweeper
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewPointSweepJob builds the cron job that promotes pending credits whose
// grace period elapsed and expires credits past their validity window. Both
// passes use conditional transitions, so overlapping runs are safe.
func NewPointSweepJob(params PointSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Points == nil {
		return nil, fmt.Errorf("points service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &pointSweepJob{
		logg:      params.Logger,
		points:    params.Points,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type pointSweepJob struct {
	logg      *logger.Logger
	points    pointSweeper
	metrics   *metrics.CronJobMetrics
	batchSize int
	now       func() time.Time
}

func (j *pointSweepJob) Name() string { return "point-sweep" }

func (j *pointSweepJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.mature(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.expire(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *pointSweepJob) mature(ctx context.Context) error {
	matured := 0
	skipped := 0
	for {
		result, err := j.points.MatureDue(ctx, j.now().UTC(), j.batchSize)
		if err != nil {
			return fmt.Errorf("mature pending credits: %w", err)
		}
		matured += result.Processed
		skipped += result.Skipped
		if result.Processed+result.Skipped < j.batchSize {
			break
		}
		// Frozen accounts keep their rows pending; a full batch of skips
		// means the rest of the backlog is unprocessable this run.
		if result.Processed == 0 {
			break
		}
	}
	j.addProcessed("matured", matured)
	logCtx := j.logg.WithFields(ctx, map[string]any{"matured": matured, "skipped": skipped})
	j.logg.Info(logCtx, "point maturation loop complete")
	return nil
}

func (j *pointSweepJob) expire(ctx context.Context) error {
	expired := 0
	skipped := 0
	for {
		result, err := j.points.ExpireDue(ctx, j.now().UTC(), j.batchSize)
		if err != nil {
			return fmt.Errorf("expire lapsed credits: %w", err)
		}
		expired += result.Processed
		skipped += result.Skipped
		if result.Processed+result.Skipped < j.batchSize {
			break
		}
		if result.Processed == 0 {
			break
		}
	}
	j.addProcessed("expired", expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{"expired": expired, "skipped": skipped})
	j.logg.Info(logCtx, "point expiry loop complete")
	return nil
}

func (j *pointSweepJob) addProcessed(outcome string, count int) {
	if j.metrics == nil || count == 0 {
		return
	}
	j.metrics.AddProcessed(j.Name(), outcome, int64(count))
}
