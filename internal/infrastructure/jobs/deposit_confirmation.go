package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bsc-custody.backend/pkg/logger"
)

// DepositConfirmer finalizes matched deposits and fails stale expectations
type DepositConfirmer interface {
	ConfirmPending(ctx context.Context, limit int) (int, error)
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// DepositConfirmationJob re-checks matched deposits until they are final
type DepositConfirmationJob struct {
	deposits  DepositConfirmer
	interval  time.Duration
	batchSize int
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewDepositConfirmationJob(deposits DepositConfirmer, interval time.Duration, batchSize int) *DepositConfirmationJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DepositConfirmationJob{
		deposits:  deposits,
		interval:  interval,
		batchSize: batchSize,
		stop:      make(chan struct{}),
	}
}

func (j *DepositConfirmationJob) Start(ctx context.Context) {
	ctx = logger.WithComponent(ctx, "deposit_confirmation")
	logger.Info(ctx, "Starting deposit confirmation job", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Deposit confirmation job stopped (context cancelled)")
			return
		case <-j.stop:
			logger.Info(ctx, "Deposit confirmation job stopped")
			return
		case <-ticker.C:
			j.process(ctx)
		}
	}
}

func (j *DepositConfirmationJob) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
}

func (j *DepositConfirmationJob) process(ctx context.Context) {
	credited, err := j.deposits.ConfirmPending(ctx, j.batchSize)
	if err != nil {
		logger.Error(ctx, "Error confirming pending deposits", zap.Error(err))
	} else if credited > 0 {
		logger.Info(ctx, "Credited confirmed deposits", zap.Int("count", credited))
	}

	expired, err := j.deposits.ExpireStale(ctx, j.batchSize)
	if err != nil {
		logger.Error(ctx, "Error expiring stale deposits", zap.Error(err))
		return
	}
	if expired > 0 {
		logger.Info(ctx, "Expired stale deposits", zap.Int("count", expired))
	}
}
