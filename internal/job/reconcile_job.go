package job

import (
	"context"

	"go.uber.org/zap"
)

// Reconciler prunes online-set entries whose socket sets expired without an
// explicit disconnect (crashed server, dropped TCP session past its TTL).
type Reconciler interface {
	Reconcile(ctx context.Context) int
}

// ReconcileJob runs the presence sweep on a cron schedule.
type ReconcileJob struct {
	reconciler Reconciler
	logger     *zap.Logger
}

func NewReconcileJob(reconciler Reconciler, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Run executes one sweep. Implements cron.Job.
func (j *ReconcileJob) Run() {
	ctx := context.Background()

	evicted := j.reconciler.Reconcile(ctx)
	if evicted > 0 {
		j.logger.Info("Reconcile sweep evicted stale online users",
			zap.Int("evicted", evicted))
		return
	}
	j.logger.Debug("Reconcile sweep found no stale online users")
}
