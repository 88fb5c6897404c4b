package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/pkg/logger"
)

// SweepEngine is the part of the gas scheduler the timer drives
type SweepEngine interface {
	RunCycle(ctx context.Context) (*entities.CycleReport, error)
	Optimize(ctx context.Context) (entities.SweepThresholds, error)
}

// SweepScheduler runs sweep cycles and threshold optimization on fixed intervals.
// It can be started and stopped repeatedly.
type SweepScheduler struct {
	engine           SweepEngine
	cycleInterval    time.Duration
	optimizeInterval time.Duration
	baseCtx          context.Context

	mu           sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	manualCancel context.CancelFunc
	manualDone   chan struct{}
}

func NewSweepScheduler(ctx context.Context, engine SweepEngine, cycleInterval, optimizeInterval time.Duration) *SweepScheduler {
	if cycleInterval <= 0 {
		cycleInterval = 5 * time.Minute
	}
	if optimizeInterval <= 0 {
		optimizeInterval = 24 * time.Hour
	}
	return &SweepScheduler{
		engine:           engine,
		cycleInterval:    cycleInterval,
		optimizeInterval: optimizeInterval,
		baseCtx:          logger.WithComponent(ctx, "sweep_scheduler"),
	}
}

// Start launches the timers. Thresholds are optimized and the first cycle runs immediately.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	logger.Info(ctx, "Sweep scheduler started",
		zap.Duration("cycle_interval", s.cycleInterval),
		zap.Duration("optimize_interval", s.optimizeInterval),
	)
}

// Stop halts the timers and cancels a manual cycle, then waits for in-progress cycles to return
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	manualCancel, manualDone := s.manualCancel, s.manualDone
	s.cancel, s.done = nil, nil
	s.manualCancel, s.manualDone = nil, nil
	s.mu.Unlock()

	if manualCancel != nil {
		manualCancel()
		<-manualDone
	}
	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info(s.baseCtx, "Sweep scheduler stopped")
}

// Trigger runs one cycle in the background whether or not the timers are started.
// It reports false while an earlier manual cycle is still running.
func (s *SweepScheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manualDone != nil {
		return false
	}

	ctx, cancel := context.WithCancel(logger.WithComponent(s.baseCtx, "manual_sweep"))
	done := make(chan struct{})
	s.manualCancel, s.manualDone = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		defer func() {
			s.mu.Lock()
			if s.manualDone == done {
				s.manualCancel, s.manualDone = nil, nil
			}
			s.mu.Unlock()
		}()
		s.runCycle(ctx)
	}()
	return true
}

func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *SweepScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	cycle := time.NewTicker(s.cycleInterval)
	defer cycle.Stop()
	optimize := time.NewTicker(s.optimizeInterval)
	defer optimize.Stop()

	s.optimize(ctx)
	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-cycle.C:
			s.runCycle(ctx)
		case <-optimize.C:
			s.optimize(ctx)
		}
	}
}

func (s *SweepScheduler) runCycle(ctx context.Context) {
	report, err := s.engine.RunCycle(ctx)
	switch {
	case errors.Is(err, domainerrors.ErrCycleInProgress):
		logger.Info(ctx, "Sweep cycle skipped, another cycle is running")
	case err != nil:
		if ctx.Err() == nil {
			logger.Error(ctx, "Sweep cycle failed", zap.Error(err))
		}
	case report != nil:
		logger.Info(ctx, "Sweep cycle finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("scheduled", report.Scheduled),
			zap.Int("swept", report.Swept),
			zap.Int("sweep_failed", report.SweepFailed),
			zap.Duration("duration", report.Duration),
		)
	}
}

func (s *SweepScheduler) optimize(ctx context.Context) {
	th, err := s.engine.Optimize(ctx)
	if err != nil {
		logger.Error(ctx, "Threshold optimization failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "Sweep thresholds optimized",
		zap.String("high", th.High.String()),
		zap.String("medium", th.Medium.String()),
		zap.String("low", th.Low.String()),
	)
}
