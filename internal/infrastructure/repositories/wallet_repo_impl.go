package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/infrastructure/models"
	"bsc-custody.backend/pkg/utils"
)

// WalletRepository implements custodial wallet persistence
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a wallet. A second wallet for the same user fails with ErrAlreadyExists.
func (r *WalletRepository) Create(ctx context.Context, wallet *entities.Wallet) error {
	now := time.Now()
	if wallet.ID == uuid.Nil {
		wallet.ID = utils.GenerateUUIDv7()
	}
	wallet.CreatedAt = now
	wallet.UpdatedAt = now

	m := &models.Wallet{
		ID:                  wallet.ID,
		UserID:              wallet.UserID,
		Address:             wallet.Address,
		EncryptedPrivateKey: wallet.EncryptedPrivateKey,
		EncryptedMnemonic:   wallet.EncryptedMnemonic,
		Network:             wallet.Network,
		IsMonitored:         wallet.IsMonitored,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetByUserID gets the wallet owned by a user
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	var m models.Wallet
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWalletEntity(&m), nil
}

// GetByAddress gets a wallet by its address (case-insensitive)
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	var m models.Wallet
	if err := GetDB(ctx, r.db).Where("LOWER(address) = ?", strings.ToLower(address)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toWalletEntity(&m), nil
}

// ListAll returns every registered wallet, oldest first
func (r *WalletRepository) ListAll(ctx context.Context) ([]*entities.Wallet, error) {
	var ms []models.Wallet
	if err := GetDB(ctx, r.db).Order("created_at ASC").Find(&ms).Error; err != nil {
		return nil, err
	}

	wallets := make([]*entities.Wallet, 0, len(ms))
	for i := range ms {
		wallets = append(wallets, toWalletEntity(&ms[i]))
	}
	return wallets, nil
}

// SetMonitored toggles the monitoring flag
func (r *WalletRepository) SetMonitored(ctx context.Context, id uuid.UUID, monitored bool) error {
	result := GetDB(ctx, r.db).Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_monitored": monitored,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toWalletEntity(m *models.Wallet) *entities.Wallet {
	return &entities.Wallet{
		ID:                  m.ID,
		UserID:              m.UserID,
		Address:             m.Address,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		EncryptedMnemonic:   m.EncryptedMnemonic,
		Network:             m.Network,
		IsMonitored:         m.IsMonitored,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
