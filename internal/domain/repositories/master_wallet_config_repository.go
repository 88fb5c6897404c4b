package repositories

import (
	"context"

	"bsc-custody.backend/internal/domain/entities"
)

// MasterWalletConfigRepository defines operations on the singleton treasury config
type MasterWalletConfigRepository interface {
	// Get returns errors.ErrNotFound before the config is bootstrapped
	Get(ctx context.Context) (*entities.MasterWalletConfig, error)
	Create(ctx context.Context, cfg *entities.MasterWalletConfig) error
	Update(ctx context.Context, cfg *entities.MasterWalletConfig) error
	SetAutoSweep(ctx context.Context, enabled bool) error
}
