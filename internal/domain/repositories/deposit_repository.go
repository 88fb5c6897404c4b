package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bsc-custody.backend/internal/domain/entities"
)

// BlockchainData is the on-chain observation attached to a deposit
type BlockchainData struct {
	TxHash        string
	FromAddress   string
	BlockNumber   uint64
	Confirmations uint64
	Amount        decimal.Decimal
}

// DepositRepository defines deposit record operations
type DepositRepository interface {
	// Create returns errors.ErrAlreadyExists when the tx hash is already recorded
	Create(ctx context.Context, deposit *entities.DepositRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.DepositRecord, error)
	GetByTxHash(ctx context.Context, txHash string) (*entities.DepositRecord, error)
	Update(ctx context.Context, deposit *entities.DepositRecord) error
	UpdateBlockchainData(ctx context.Context, id uuid.UUID, data BlockchainData) error
	ListAwaitingMatch(ctx context.Context, userID uuid.UUID) ([]*entities.DepositRecord, error)
	ListPendingWithTxHash(ctx context.Context, limit int) ([]*entities.DepositRecord, error)
	ListStaleAwaitingMatch(ctx context.Context, createdBefore time.Time, limit int) ([]*entities.DepositRecord, error)
	MarkFailed(ctx context.Context, ids []uuid.UUID) error
	ListConfirmedUnswept(ctx context.Context, walletAddress string) ([]*entities.DepositRecord, error)
	// CountInFlight counts pending deposits that already carry a tx hash
	CountInFlight(ctx context.Context, walletAddress string) (int64, error)
	MarkSwept(ctx context.Context, ids []uuid.UUID, sweepTxHash string) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.DepositRecord, int64, error)
}
