package usecases

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"bsc-custody.backend/internal/domain/entities"
	"bsc-custody.backend/internal/infrastructure/blockchain"
	"bsc-custody.backend/pkg/crypto"
)

// DepositChain is the chain view the deposit detector reads from
type DepositChain interface {
	GetCurrentBlock(ctx context.Context) (uint64, error)
	GetTokenTransfers(ctx context.Context, address string, fromBlock, toBlock uint64) ([]entities.TokenTransfer, error)
	IsConfirmed(ctx context.Context, txHash string, required uint64) (bool, uint64, error)
}

// SweepChain is the chain view the sweep engine reads from and writes to
type SweepChain interface {
	GetCurrentBlock(ctx context.Context) (uint64, error)
	GetTokenTransfers(ctx context.Context, address string, fromBlock, toBlock uint64) ([]entities.TokenTransfer, error)
	GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	EstimateTokenTransferGas(ctx context.Context, from, to string, amount decimal.Decimal) (uint64, error)
	SendToken(ctx context.Context, privateKey []byte, to string, amount decimal.Decimal, opts blockchain.SendOptions) (string, error)
	WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*blockchain.ReceiptInfo, error)
}

// MasterWallet sends native coin from the treasury. Implementations serialize nonces.
type MasterWallet interface {
	Address() string
	NativeBalance(ctx context.Context) (decimal.Decimal, error)
	SendNative(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// KeyVault seals and opens wallet key material
type KeyVault interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// WalletGenerator creates fresh custodial key pairs
type WalletGenerator interface {
	KeyVault
	GenerateKeyPair() (*crypto.KeyPair, error)
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, n *entities.Notification) error
}

// CycleLock guards sweep cycles across instances
type CycleLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, token string) error
}

// Scheduler runs sweep cycles in the background
type Scheduler interface {
	Start()
	Stop()
	IsRunning() bool
	// Trigger starts one cycle in the background and reports false if a manual cycle is still running
	Trigger() bool
}
