package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bsc-custody.backend/internal/domain/entities"
)

// LedgerRepository defines append-only ledger operations
type LedgerRepository interface {
	// Create returns errors.ErrDuplicateTransaction when the reference hash already exists
	Create(ctx context.Context, tx *entities.LedgerTransaction) error
	ExistsByReference(ctx context.Context, referenceHash string) (bool, error)
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.LedgerTransaction, error)
	SumByUserID(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

// ProfileRepository defines user balance operations
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Profile, error)
	Create(ctx context.Context, profile *entities.Profile) error
	UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
}
