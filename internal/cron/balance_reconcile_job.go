package cron

import (
	"context"
	"fmt"

	"github.com/jwoolee/beautylink-backend/internal/points"
	"github.com/jwoolee/beautylink-backend/pkg/logger"
	"github.com/jwoolee/beautylink-backend/pkg/metrics"
)

const defaultReconcileBatchSize = 200

type balanceReconciler interface {
	ReconcileBalances(ctx context.Context, batchSize int) (points.ReconcileResult, error)
}

// BalanceReconcileJobParams configure the balance reconciliation job.
type BalanceReconcileJobParams struct {
	Logger    *logger.Logger
	Points    balanceReconciler
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewBalanceReconcileJob builds the cron job that recomputes each cached
// balance from the ledger and freezes any account whose projection drifted.
func NewBalanceReconcileJob(params BalanceReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Points == nil {
		return nil, fmt.Errorf("points service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReconcileBatchSize
	}
	return &balanceReconcileJob{
		logg:      params.Logger,
		points:    params.Points,
		metrics:   params.Metrics,
		batchSize: batchSize,
	}, nil
}

type balanceReconcileJob struct {
	logg      *logger.Logger
	points    balanceReconciler
	metrics   *metrics.CronJobMetrics
	batchSize int
}

func (j *balanceReconcileJob) Name() string { return "balance-reconcile" }

func (j *balanceReconcileJob) Run(ctx context.Context) error {
	result, err := j.points.ReconcileBalances(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("reconcile balances: %w", err)
	}
	if j.metrics != nil && result.Frozen > 0 {
		j.metrics.AddProcessed(j.Name(), "frozen", int64(result.Frozen))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"frozen":  result.Frozen,
	})
	j.logg.Info(logCtx, "balance reconciliation complete")
	return nil
}
