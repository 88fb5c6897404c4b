package repositories

import (
	"context"

	"github.com/google/uuid"

	"bsc-custody.backend/internal/domain/entities"
)

// WalletRepository defines custodial wallet data operations
type WalletRepository interface {
	// Create returns errors.ErrAlreadyExists when the user already owns a wallet
	Create(ctx context.Context, wallet *entities.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
	GetByAddress(ctx context.Context, address string) (*entities.Wallet, error)
	ListAll(ctx context.Context) ([]*entities.Wallet, error)
	SetMonitored(ctx context.Context, id uuid.UUID, monitored bool) error
}
