package repositories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/infrastructure/models"
	"bsc-custody.backend/pkg/utils"
)

// LedgerRepositoryImpl implements LedgerRepository
type LedgerRepositoryImpl struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{db: db}
}

// Create appends a ledger row. The reference hash is unique so a replayed credit fails.
func (r *LedgerRepositoryImpl) Create(ctx context.Context, tx *entities.LedgerTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = utils.GenerateUUIDv7()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	m := &models.LedgerTransaction{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		ReferenceHash: strings.ToLower(tx.ReferenceHash),
		DepositID:     tx.DepositID,
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt,
	}
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (r *LedgerRepositoryImpl) ExistsByReference(ctx context.Context, referenceHash string) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&models.LedgerTransaction{}).
		Where("reference_hash = ?", strings.ToLower(referenceHash)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUserID returns the newest rows first
func (r *LedgerRepositoryImpl) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.LedgerTransaction, error) {
	query := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ms []models.LedgerTransaction
	if err := query.Find(&ms).Error; err != nil {
		return nil, err
	}

	out := make([]*entities.LedgerTransaction, 0, len(ms))
	for i := range ms {
		out = append(out, toLedgerEntity(&ms[i]))
	}
	return out, nil
}

// SumByUserID adds up every ledger amount of a user. Summed in Go so decimal precision is kept on every driver.
func (r *LedgerRepositoryImpl) SumByUserID(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := GetDB(ctx, r.db).Model(&models.LedgerTransaction{}).
		Where("user_id = ?", userID).
		Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

func toLedgerEntity(m *models.LedgerTransaction) *entities.LedgerTransaction {
	return &entities.LedgerTransaction{
		ID:            m.ID,
		UserID:        m.UserID,
		Type:          entities.LedgerTransactionType(m.Type),
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		ReferenceHash: m.ReferenceHash,
		DepositID:     m.DepositID,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

// ProfileRepositoryImpl implements ProfileRepository
type ProfileRepositoryImpl struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepositoryImpl {
	return &ProfileRepositoryImpl{db: db}
}

func (r *ProfileRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Profile, error) {
	var m models.Profile
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return &entities.Profile{
		UserID:    m.UserID,
		Balance:   m.Balance,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *ProfileRepositoryImpl) Create(ctx context.Context, profile *entities.Profile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	m := &models.Profile{
		UserID:    profile.UserID,
		Balance:   profile.Balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := GetDB(ctx, r.db).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *ProfileRepositoryImpl) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	result := GetDB(ctx, r.db).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":    balance,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}
