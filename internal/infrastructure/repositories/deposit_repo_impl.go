package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	domainRepos "bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/internal/infrastructure/models"
	"bsc-custody.backend/pkg/utils"
)

// DepositRepositoryImpl implements DepositRepository
type DepositRepositoryImpl struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepositoryImpl {
	return &DepositRepositoryImpl{db: db}
}

func (r *DepositRepositoryImpl) Create(ctx context.Context, deposit *entities.DepositRecord) error {
	now := time.Now()
	if deposit.ID == uuid.Nil {
		deposit.ID = utils.GenerateUUIDv7()
	}
	if deposit.Status == "" {
		deposit.Status = entities.DepositStatusPending
	}
	deposit.CreatedAt = now
	deposit.UpdatedAt = now

	m := toDepositModel(deposit)
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *DepositRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.DepositRecord, error) {
	var m models.Deposit
	if err := GetDB(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toDepositEntity(&m), nil
}

func (r *DepositRepositoryImpl) GetByTxHash(ctx context.Context, txHash string) (*entities.DepositRecord, error) {
	var m models.Deposit
	if err := GetDB(ctx, r.db).Where("tx_hash = ?", strings.ToLower(txHash)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toDepositEntity(&m), nil
}

func (r *DepositRepositoryImpl) Update(ctx context.Context, deposit *entities.DepositRecord) error {
	deposit.UpdatedAt = time.Now()
	m := toDepositModel(deposit)
	result := GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("id = ?", deposit.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return domainerrors.ErrAlreadyExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// UpdateBlockchainData attaches the observed transfer to a deposit still awaiting one.
// A deposit that is already matched or no longer pending yields ErrNotFound.
func (r *DepositRepositoryImpl) UpdateBlockchainData(ctx context.Context, id uuid.UUID, data domainRepos.BlockchainData) error {
	updates := map[string]interface{}{
		"tx_hash":         strings.ToLower(data.TxHash),
		"block_number":    int64(data.BlockNumber),
		"confirmations":   int64(data.Confirmations),
		"received_amount": data.Amount,
		"updated_at":      time.Now(),
	}
	if data.FromAddress != "" {
		updates["from_address"] = data.FromAddress
	}
	result := GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("id = ? AND status = ? AND tx_hash IS NULL", id, entities.DepositStatusPending).
		Updates(updates)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return domainerrors.ErrAlreadyExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// ListAwaitingMatch returns the user's pending deposits that still wait for a transfer
func (r *DepositRepositoryImpl) ListAwaitingMatch(ctx context.Context, userID uuid.UUID) ([]*entities.DepositRecord, error) {
	var ms []models.Deposit
	if err := GetDB(ctx, r.db).
		Where("user_id = ? AND status = ? AND tx_hash IS NULL", userID, entities.DepositStatusPending).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toDepositEntities(ms), nil
}

func (r *DepositRepositoryImpl) ListPendingWithTxHash(ctx context.Context, limit int) ([]*entities.DepositRecord, error) {
	var ms []models.Deposit
	if err := GetDB(ctx, r.db).
		Where("status = ? AND tx_hash IS NOT NULL", entities.DepositStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toDepositEntities(ms), nil
}

func (r *DepositRepositoryImpl) ListStaleAwaitingMatch(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.DepositRecord, error) {
	var ms []models.Deposit
	if err := GetDB(ctx, r.db).
		Where("status = ? AND tx_hash IS NULL AND created_at < ?", entities.DepositStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toDepositEntities(ms), nil
}

// MarkFailed fails deposits that are still pending
func (r *DepositRepositoryImpl) MarkFailed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("id IN ? AND status = ?", ids, entities.DepositStatusPending).
		Updates(map[string]interface{}{
			"status":     entities.DepositStatusFailed,
			"updated_at": time.Now(),
		}).Error
}

func (r *DepositRepositoryImpl) ListConfirmedUnswept(ctx context.Context, walletAddress string) ([]*entities.DepositRecord, error) {
	var ms []models.Deposit
	if err := GetDB(ctx, r.db).
		Where("LOWER(wallet_address) = ? AND status = ?", strings.ToLower(walletAddress), entities.DepositStatusConfirmed).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toDepositEntities(ms), nil
}

// CountInFlight counts pending deposits on a wallet whose transfer is seen but not yet final
func (r *DepositRepositoryImpl) CountInFlight(ctx context.Context, walletAddress string) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("LOWER(wallet_address) = ? AND status = ? AND tx_hash IS NOT NULL", strings.ToLower(walletAddress), entities.DepositStatusPending).
		Count(&n).Error
	return n, err
}

func (r *DepositRepositoryImpl) MarkSwept(ctx context.Context, ids []uuid.UUID, sweepTxHash string) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("id IN ? AND status = ?", ids, entities.DepositStatusConfirmed).
		Updates(map[string]interface{}{
			"status":        entities.DepositStatusSwept,
			"sweep_tx_hash": sweepTxHash,
			"updated_at":    time.Now(),
		}).Error
}

func (r *DepositRepositoryImpl) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.DepositRecord, int64, error) {
	var total int64
	if err := GetDB(ctx, r.db).Model(&models.Deposit{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var ms []models.Deposit
	if err := query.Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return toDepositEntities(ms), total, nil
}

func toDepositModel(d *entities.DepositRecord) *models.Deposit {
	txHash := d.TxHash
	if txHash.Valid {
		txHash = null.StringFrom(strings.ToLower(txHash.String))
	}
	return &models.Deposit{
		ID:             d.ID,
		UserID:         d.UserID,
		WalletAddress:  d.WalletAddress,
		ExpectedAmount: d.ExpectedAmount,
		ReceivedAmount: d.ReceivedAmount,
		Status:         string(d.Status),
		TxHash:         txHash,
		FromAddress:    d.FromAddress,
		BlockNumber:    int64(d.BlockNumber),
		Confirmations:  int64(d.Confirmations),
		SweepTxHash:    d.SweepTxHash,
		GasTxHash:      d.GasTxHash,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		ConfirmedAt:    d.ConfirmedAt,
	}
}

func toDepositEntity(m *models.Deposit) *entities.DepositRecord {
	return &entities.DepositRecord{
		ID:             m.ID,
		UserID:         m.UserID,
		WalletAddress:  m.WalletAddress,
		ExpectedAmount: m.ExpectedAmount,
		ReceivedAmount: m.ReceivedAmount,
		Status:         entities.DepositStatus(m.Status),
		TxHash:         m.TxHash,
		FromAddress:    m.FromAddress,
		BlockNumber:    uint64(m.BlockNumber),
		Confirmations:  uint64(m.Confirmations),
		SweepTxHash:    m.SweepTxHash,
		GasTxHash:      m.GasTxHash,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ConfirmedAt:    m.ConfirmedAt,
	}
}

func toDepositEntities(ms []models.Deposit) []*entities.DepositRecord {
	out := make([]*entities.DepositRecord, 0, len(ms))
	for i := range ms {
		out = append(out, toDepositEntity(&ms[i]))
	}
	return out
}
