package usecases_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"bsc-custody.backend/internal/domain/entities"
	"bsc-custody.backend/pkg/crypto"
)

// Mock UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
}

func (m *MockUnitOfWork) Do(ctx context.Context, f func(context.Context) error) error {
	m.Called(ctx, f)
	return f(ctx)
}

func (m *MockUnitOfWork) WithLock(ctx context.Context) context.Context {
	args := m.Called(ctx)
	return args.Get(0).(context.Context)
}

// Mock WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, wallet *entities.Wallet) error {
	return m.Called(ctx, wallet).Error(0)
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ListAll(ctx context.Context) ([]*entities.Wallet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Wallet), args.Error(1)
}

func (m *MockWalletRepository) SetMonitored(ctx context.Context, id uuid.UUID, monitored bool) error {
	return m.Called(ctx, id, monitored).Error(0)
}

// Mock LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Create(ctx context.Context, tx *entities.LedgerTransaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockLedgerRepository) ExistsByReference(ctx context.Context, referenceHash string) (bool, error) {
	args := m.Called(ctx, referenceHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.LedgerTransaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerTransaction), args.Error(1)
}

func (m *MockLedgerRepository) SumByUserID(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Profile), args.Error(1)
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *entities.Profile) error {
	return m.Called(ctx, profile).Error(0)
}

func (m *MockProfileRepository) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	return m.Called(ctx, userID, balance).Error(0)
}

// Mock MasterWalletConfigRepository
type MockMasterWalletConfigRepository struct {
	mock.Mock
}

func (m *MockMasterWalletConfigRepository) Get(ctx context.Context) (*entities.MasterWalletConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.MasterWalletConfig), args.Error(1)
}

func (m *MockMasterWalletConfigRepository) Create(ctx context.Context, cfg *entities.MasterWalletConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockMasterWalletConfigRepository) Update(ctx context.Context, cfg *entities.MasterWalletConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockMasterWalletConfigRepository) SetAutoSweep(ctx context.Context, enabled bool) error {
	return m.Called(ctx, enabled).Error(0)
}

// Mock GasOperationRepository
type MockGasOperationRepository struct {
	mock.Mock
}

func (m *MockGasOperationRepository) Create(ctx context.Context, op *entities.GasOperation) error {
	return m.Called(ctx, op).Error(0)
}

func (m *MockGasOperationRepository) Update(ctx context.Context, op *entities.GasOperation) error {
	return m.Called(ctx, op).Error(0)
}

func (m *MockGasOperationRepository) List(ctx context.Context, limit, offset int) ([]*entities.GasOperation, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.GasOperation), args.Get(1).(int64), args.Error(2)
}

func (m *MockGasOperationRepository) ListSince(ctx context.Context, since time.Time) ([]*entities.GasOperation, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.GasOperation), args.Error(1)
}

// Mock WalletGenerator
type MockWalletGenerator struct {
	mock.Mock
}

func (m *MockWalletGenerator) GenerateKeyPair() (*crypto.KeyPair, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crypto.KeyPair), args.Error(1)
}

func (m *MockWalletGenerator) Encrypt(plaintext []byte) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockWalletGenerator) Decrypt(ciphertext string) ([]byte, error) {
	args := m.Called(ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
