package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/infrastructure/models"
	"bsc-custody.backend/pkg/utils"
)

// MasterWalletConfigRepositoryImpl stores the singleton treasury row
type MasterWalletConfigRepositoryImpl struct {
	db *gorm.DB
}

func NewMasterWalletConfigRepository(db *gorm.DB) *MasterWalletConfigRepositoryImpl {
	return &MasterWalletConfigRepositoryImpl{db: db}
}

// Get returns the oldest config row
func (r *MasterWalletConfigRepositoryImpl) Get(ctx context.Context) (*entities.MasterWalletConfig, error) {
	var m models.MasterWalletConfig
	if err := GetDB(ctx, r.db).Order("created_at ASC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toMasterWalletConfigEntity(&m), nil
}

func (r *MasterWalletConfigRepositoryImpl) Create(ctx context.Context, cfg *entities.MasterWalletConfig) error {
	now := time.Now()
	if cfg.ID == uuid.Nil {
		cfg.ID = utils.GenerateUUIDv7()
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return GetDB(ctx, r.db).Create(toMasterWalletConfigModel(cfg)).Error
}

func (r *MasterWalletConfigRepositoryImpl) Update(ctx context.Context, cfg *entities.MasterWalletConfig) error {
	cfg.UpdatedAt = time.Now()
	result := GetDB(ctx, r.db).Model(&models.MasterWalletConfig{}).
		Where("id = ?", cfg.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(toMasterWalletConfigModel(cfg))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *MasterWalletConfigRepositoryImpl) SetAutoSweep(ctx context.Context, enabled bool) error {
	cfg, err := r.Get(ctx)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).Model(&models.MasterWalletConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]interface{}{
			"auto_sweep_enabled": enabled,
			"updated_at":         time.Now(),
		}).Error
}

func toMasterWalletConfigModel(cfg *entities.MasterWalletConfig) *models.MasterWalletConfig {
	return &models.MasterWalletConfig{
		ID:                  cfg.ID,
		Address:             cfg.Address,
		EncryptedPrivateKey: cfg.EncryptedPrivateKey,
		MinNativeReserve:    cfg.MinNativeReserve,
		GasAmountPerWallet:  cfg.GasAmountPerWallet,
		HighThresholdUSD:    cfg.HighThresholdUSD,
		MediumThresholdUSD:  cfg.MediumThresholdUSD,
		LowThresholdUSD:     cfg.LowThresholdUSD,
		AutoSweepEnabled:    cfg.AutoSweepEnabled,
		CreatedAt:           cfg.CreatedAt,
		UpdatedAt:           cfg.UpdatedAt,
	}
}

func toMasterWalletConfigEntity(m *models.MasterWalletConfig) *entities.MasterWalletConfig {
	return &entities.MasterWalletConfig{
		ID:                  m.ID,
		Address:             m.Address,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		MinNativeReserve:    m.MinNativeReserve,
		GasAmountPerWallet:  m.GasAmountPerWallet,
		HighThresholdUSD:    m.HighThresholdUSD,
		MediumThresholdUSD:  m.MediumThresholdUSD,
		LowThresholdUSD:     m.LowThresholdUSD,
		AutoSweepEnabled:    m.AutoSweepEnabled,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
