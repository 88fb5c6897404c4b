package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/utils"
)

const maxStatsWindowDays = 365

// SweepEngine is the part of the gas scheduler the admin facade drives
type SweepEngine interface {
	EmergencySweep(ctx context.Context, address string) (*entities.EmergencySweepResult, error)
	Stats(ctx context.Context, windowDays int) (*entities.SweepStats, error)
	EffectiveThresholds(ctx context.Context) entities.SweepThresholds
	LastCycle() (*entities.CycleReport, *time.Time)
}

// SweepServiceUsecase is the operator facade over the sweep engine and its scheduler
type SweepServiceUsecase struct {
	engine    SweepEngine
	scheduler Scheduler
	cfgRepo   repositories.MasterWalletConfigRepository
	gasOpRepo repositories.GasOperationRepository
}

// NewSweepServiceUsecase creates the sweep facade
func NewSweepServiceUsecase(
	engine SweepEngine,
	scheduler Scheduler,
	cfgRepo repositories.MasterWalletConfigRepository,
	gasOpRepo repositories.GasOperationRepository,
) *SweepServiceUsecase {
	return &SweepServiceUsecase{
		engine:    engine,
		scheduler: scheduler,
		cfgRepo:   cfgRepo,
		gasOpRepo: gasOpRepo,
	}
}

// Start runs the scheduler and persists auto sweep as enabled
func (u *SweepServiceUsecase) Start(ctx context.Context) error {
	if err := u.cfgRepo.SetAutoSweep(ctx, true); err != nil {
		return err
	}
	u.scheduler.Start()
	logger.Info(ctx, "Auto sweep started")
	return nil
}

// Stop halts the scheduler and persists auto sweep as disabled
func (u *SweepServiceUsecase) Stop(ctx context.Context) error {
	u.scheduler.Stop()
	if err := u.cfgRepo.SetAutoSweep(ctx, false); err != nil {
		return err
	}
	logger.Info(ctx, "Auto sweep stopped")
	return nil
}

// IsRunning reports whether the scheduler timers are active
func (u *SweepServiceUsecase) IsRunning() bool {
	return u.scheduler.IsRunning()
}

// ShouldAutoStart reports the persisted auto sweep flag
func (u *SweepServiceUsecase) ShouldAutoStart(ctx context.Context) (bool, error) {
	cfg, err := u.cfgRepo.Get(ctx)
	if err != nil {
		return false, err
	}
	return cfg.AutoSweepEnabled, nil
}

// TriggerManualCycle hands one cycle to the scheduler, which owns it until shutdown.
// It reports false when an earlier manual cycle has not finished.
func (u *SweepServiceUsecase) TriggerManualCycle(ctx context.Context) bool {
	started := u.scheduler.Trigger()
	logger.Info(ctx, "Manual sweep requested", zap.Bool("started", started))
	return started
}

// EmergencySweep tops up and sweeps a single wallet synchronously
func (u *SweepServiceUsecase) EmergencySweep(ctx context.Context, address string) (*entities.EmergencySweepResult, error) {
	result, err := u.engine.EmergencySweep(ctx, address)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Emergency sweep finished",
		zap.String("address", address),
		zap.Bool("success", result.Success),
		zap.String("reason", result.Reason),
	)
	return result, nil
}

// GetStats aggregates gas operations over the trailing windowDays
func (u *SweepServiceUsecase) GetStats(ctx context.Context, windowDays int) (*entities.SweepStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if windowDays > maxStatsWindowDays {
		windowDays = maxStatsWindowDays
	}
	return u.engine.Stats(ctx, windowDays)
}

// Status returns the scheduler state with the thresholds currently in force
func (u *SweepServiceUsecase) Status(ctx context.Context) (*entities.SweepStatus, error) {
	status := &entities.SweepStatus{
		Running:    u.scheduler.IsRunning(),
		Thresholds: u.engine.EffectiveThresholds(ctx),
	}
	cfg, err := u.cfgRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	status.AutoSweepEnabled = cfg.AutoSweepEnabled
	status.LastCycle, status.LastCycleAt = u.engine.LastCycle()
	return status, nil
}

// ListOperations returns gas operation rows newest first
func (u *SweepServiceUsecase) ListOperations(ctx context.Context, pagination utils.PaginationParams) ([]*entities.GasOperation, int64, error) {
	return u.gasOpRepo.List(ctx, pagination.Limit, pagination.CalculateOffset())
}

// UpdateConfig changes the treasury settings. Unset fields keep their value.
func (u *SweepServiceUsecase) UpdateConfig(ctx context.Context, input *entities.UpdateMasterWalletConfigInput) (*entities.MasterWalletConfig, error) {
	cfg, err := u.cfgRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name   string
		raw    *string
		target *decimal.Decimal
	}{
		{"minNativeReserve", input.MinNativeReserve, &cfg.MinNativeReserve},
		{"gasAmountPerWallet", input.GasAmountPerWallet, &cfg.GasAmountPerWallet},
		{"highThresholdUsd", input.HighThresholdUSD, &cfg.HighThresholdUSD},
		{"mediumThresholdUsd", input.MediumThresholdUSD, &cfg.MediumThresholdUSD},
		{"lowThresholdUsd", input.LowThresholdUSD, &cfg.LowThresholdUSD},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		v, err := decimal.NewFromString(*f.raw)
		if err != nil || v.IsNegative() {
			return nil, domainerrors.BadRequest(fmt.Sprintf("%s must be a non-negative decimal", f.name))
		}
		*f.target = v
	}

	if !cfg.GasAmountPerWallet.IsPositive() {
		return nil, domainerrors.BadRequest("gasAmountPerWallet must be positive")
	}
	if !cfg.LowThresholdUSD.IsPositive() ||
		cfg.MediumThresholdUSD.LessThan(cfg.LowThresholdUSD) ||
		cfg.HighThresholdUSD.LessThan(cfg.MediumThresholdUSD) {
		return nil, domainerrors.BadRequest("thresholds must satisfy high >= medium >= low > 0")
	}

	if err := u.cfgRepo.Update(ctx, cfg); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Master wallet config updated",
		zap.String("high", cfg.HighThresholdUSD.String()),
		zap.String("medium", cfg.MediumThresholdUSD.String()),
		zap.String("low", cfg.LowThresholdUSD.String()),
		zap.String("gas_amount", cfg.GasAmountPerWallet.String()),
		zap.String("reserve", cfg.MinNativeReserve.String()),
	)
	return cfg, nil
}
