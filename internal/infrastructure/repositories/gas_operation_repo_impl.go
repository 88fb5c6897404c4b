package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/infrastructure/models"
	"bsc-custody.backend/pkg/utils"
)

// GasOperationRepositoryImpl implements GasOperationRepository
type GasOperationRepositoryImpl struct {
	db *gorm.DB
}

func NewGasOperationRepository(db *gorm.DB) *GasOperationRepositoryImpl {
	return &GasOperationRepositoryImpl{db: db}
}

func (r *GasOperationRepositoryImpl) Create(ctx context.Context, op *entities.GasOperation) error {
	if op.ID == uuid.Nil {
		op.ID = utils.GenerateUUIDv7()
	}
	if op.Status == "" {
		op.Status = entities.GasOperationPending
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	return GetDB(ctx, r.db).Create(toGasOperationModel(op)).Error
}

func (r *GasOperationRepositoryImpl) Update(ctx context.Context, op *entities.GasOperation) error {
	result := GetDB(ctx, r.db).Model(&models.GasOperation{}).
		Where("id = ?", op.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(toGasOperationModel(op))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

// List returns batches newest first together with the total count
func (r *GasOperationRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*entities.GasOperation, int64, error) {
	var total int64
	if err := GetDB(ctx, r.db).Model(&models.GasOperation{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := GetDB(ctx, r.db).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var ms []models.GasOperation
	if err := query.Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return toGasOperationEntities(ms), total, nil
}

func (r *GasOperationRepositoryImpl) ListSince(ctx context.Context, since time.Time) ([]*entities.GasOperation, error) {
	var ms []models.GasOperation
	if err := GetDB(ctx, r.db).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return toGasOperationEntities(ms), nil
}

func toGasOperationModel(op *entities.GasOperation) *models.GasOperation {
	return &models.GasOperation{
		ID:              op.ID,
		OperationType:   string(op.Type),
		WalletAddresses: op.WalletAddresses,
		TxHashes:        op.TxHashes,
		NativeAmount:    op.NativeAmount,
		TokenAmount:     op.TokenAmount,
		GasUsed:         int64(op.GasUsed),
		CostUSD:         op.CostUSD,
		SuccessCount:    op.SuccessCount,
		FailureCount:    op.FailureCount,
		Status:          string(op.Status),
		ErrorMessage:    op.ErrorMessage,
		CreatedAt:       op.CreatedAt,
		CompletedAt:     op.CompletedAt,
	}
}

func toGasOperationEntities(ms []models.GasOperation) []*entities.GasOperation {
	out := make([]*entities.GasOperation, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		out = append(out, &entities.GasOperation{
			ID:              m.ID,
			Type:            entities.GasOperationType(m.OperationType),
			WalletAddresses: []string(m.WalletAddresses),
			TxHashes:        []string(m.TxHashes),
			NativeAmount:    m.NativeAmount,
			TokenAmount:     m.TokenAmount,
			GasUsed:         uint64(m.GasUsed),
			CostUSD:         m.CostUSD,
			SuccessCount:    m.SuccessCount,
			FailureCount:    m.FailureCount,
			Status:          entities.GasOperationStatus(m.Status),
			ErrorMessage:    m.ErrorMessage,
			CreatedAt:       m.CreatedAt,
			CompletedAt:     m.CompletedAt,
		})
	}
	return out
}
