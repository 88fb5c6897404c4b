package usecases_test

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/domain/entities"
	domainRepos "bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/internal/infrastructure/blockchain"
	"bsc-custody.backend/internal/infrastructure/repositories"
	"bsc-custody.backend/pkg/crypto"
)

const testVaultSecret = "0123456789abcdef0123456789abcdef"

var testNetwork = entities.Network{
	ChainID:       56,
	Name:          "BSC",
	ExplorerURL:   "https://bscscan.com",
	TokenContract: "0x55d398326f99059fF775485246999027B3197955",
	TokenSymbol:   "USDT",
	TokenDecimals: 18,
}

// testStore wires the real gorm repositories over an in-memory sqlite database
type testStore struct {
	db        *gorm.DB
	uow       domainRepos.UnitOfWork
	wallets   *repositories.WalletRepository
	deposits  *repositories.DepositRepositoryImpl
	ledger    *repositories.LedgerRepositoryImpl
	profiles  *repositories.ProfileRepositoryImpl
	gasOps    *repositories.GasOperationRepositoryImpl
	masterCfg *repositories.MasterWalletConfigRepositoryImpl
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serializes transactions the way row locks do on postgres
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, ddl := range schema {
		require.NoError(t, db.Exec(ddl).Error)
	}

	return &testStore{
		db:        db,
		uow:       repositories.NewUnitOfWork(db),
		wallets:   repositories.NewWalletRepository(db),
		deposits:  repositories.NewDepositRepository(db),
		ledger:    repositories.NewLedgerRepository(db),
		profiles:  repositories.NewProfileRepository(db),
		gasOps:    repositories.NewGasOperationRepository(db),
		masterCfg: repositories.NewMasterWalletConfigRepository(db),
	}
}

var schema = []string{
	`CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL UNIQUE,
		encrypted_private_key TEXT NOT NULL,
		encrypted_mnemonic TEXT,
		network TEXT NOT NULL,
		is_monitored BOOLEAN DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		expected_amount TEXT,
		received_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		tx_hash TEXT UNIQUE,
		from_address TEXT,
		block_number INTEGER,
		confirmations INTEGER,
		sweep_tx_hash TEXT,
		gas_tx_hash TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		confirmed_at DATETIME
	);`,
	`CREATE TABLE ledger_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_hash TEXT NOT NULL UNIQUE,
		deposit_id TEXT,
		description TEXT,
		created_at DATETIME
	);`,
	`CREATE TABLE profiles (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		updated_at DATETIME
	);`,
	`CREATE TABLE gas_operations (
		id TEXT PRIMARY KEY,
		operation_type TEXT NOT NULL,
		wallet_addresses TEXT,
		tx_hashes TEXT,
		native_amount TEXT NOT NULL DEFAULT '0',
		token_amount TEXT NOT NULL DEFAULT '0',
		gas_used INTEGER,
		cost_usd TEXT NOT NULL DEFAULT '0',
		success_count INTEGER,
		failure_count INTEGER,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at DATETIME,
		completed_at DATETIME
	);`,
	`CREATE TABLE master_wallet_configs (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		min_native_reserve TEXT NOT NULL,
		gas_amount_per_wallet TEXT NOT NULL,
		high_threshold_usd TEXT NOT NULL,
		medium_threshold_usd TEXT NOT NULL,
		low_threshold_usd TEXT NOT NULL,
		auto_sweep_enabled BOOLEAN DEFAULT false,
		created_at DATETIME,
		updated_at DATETIME
	);`,
}

func newTestVault(t *testing.T) *crypto.KeyVault {
	t.Helper()
	v, err := crypto.NewKeyVault(testVaultSecret)
	require.NoError(t, err)
	return v
}

// seedWallet stores a custodial wallet with a real sealed key
func (s *testStore) seedWallet(t *testing.T, vault *crypto.KeyVault) *entities.Wallet {
	t.Helper()
	pair, err := vault.GenerateKeyPair()
	require.NoError(t, err)
	defer pair.Wipe()

	sealed, err := vault.Encrypt(pair.PrivateKey)
	require.NoError(t, err)

	w := &entities.Wallet{
		UserID:              uuid.New(),
		Address:             pair.Address,
		EncryptedPrivateKey: sealed,
		Network:             testNetwork.Tag(),
	}
	require.NoError(t, s.wallets.Create(context.Background(), w))
	return w
}

func (s *testStore) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	p, err := s.profiles.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return p.Balance
}

func (s *testStore) ledgerRows(t *testing.T, userID uuid.UUID) []*entities.LedgerTransaction {
	t.Helper()
	rows, err := s.ledger.ListByUserID(context.Background(), userID, 100)
	require.NoError(t, err)
	return rows
}

// requireFold asserts the stored balance equals the sum of the user's ledger rows
func (s *testStore) requireFold(t *testing.T, userID uuid.UUID) {
	t.Helper()
	sum, err := s.ledger.SumByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, s.balance(t, userID).Equal(sum), "balance %s != ledger sum %s", s.balance(t, userID), sum)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// stubNotifier records notifications
type stubNotifier struct {
	mu   sync.Mutex
	sent []*entities.Notification
	err  error
}

func (n *stubNotifier) Notify(_ context.Context, note *entities.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *stubNotifier) ofType(kind entities.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, note := range n.sent {
		if note.Type == kind {
			count++
		}
	}
	return count
}

// stubDepositChain serves transfers and receipts from memory
type stubDepositChain struct {
	mu        sync.Mutex
	current   uint64
	transfers []entities.TokenTransfer
	reverted  map[string]bool
	err       error
}

func (c *stubDepositChain) setCurrent(block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = block
}

func (c *stubDepositChain) GetCurrentBlock(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.current, nil
}

func (c *stubDepositChain) GetTokenTransfers(_ context.Context, address string, from, to uint64) ([]entities.TokenTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []entities.TokenTransfer
	for _, tr := range c.transfers {
		if strings.EqualFold(tr.To, address) && tr.BlockNumber >= from && tr.BlockNumber <= to {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (c *stubDepositChain) IsConfirmed(_ context.Context, hash string, required uint64) (bool, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reverted[strings.ToLower(hash)] {
		return false, 0, blockchain.ErrTxReverted
	}
	for _, tr := range c.transfers {
		if strings.EqualFold(tr.TxHash, hash) {
			count := blockchain.Confirmations(c.current, tr.BlockNumber)
			return count >= required, count, nil
		}
	}
	return false, 0, blockchain.ErrTxNotFound
}

// stubSweepChain keeps balances per address and moves them on sends
type stubSweepChain struct {
	mu         sync.Mutex
	token      map[string]decimal.Decimal
	native     map[string]decimal.Decimal
	tokenErr   map[string]error
	gasPrice   *big.Int
	gasLimit   uint64
	gasUsed    uint64
	sentTokens []sentToken
	nextHash   int
	current    uint64
	incoming   []entities.TokenTransfer
}

type sentToken struct {
	From   string
	To     string
	Amount decimal.Decimal
	Hash   string
}

func newStubSweepChain() *stubSweepChain {
	return &stubSweepChain{
		token:    map[string]decimal.Decimal{},
		native:   map[string]decimal.Decimal{},
		tokenErr: map[string]error{},
		gasPrice: big.NewInt(5_000_000_000),
		gasLimit: 60000,
		gasUsed:  52000,
		nextHash: 1000,
		current:  1000,
	}
}

func (c *stubSweepChain) setToken(address string, amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token[strings.ToLower(address)] = dec(amount)
}

func (c *stubSweepChain) setNative(address string, amount string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.native[strings.ToLower(address)] = dec(amount)
}

func (c *stubSweepChain) addNative(address string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(address)
	c.native[key] = c.native[key].Add(amount)
}

// receive credits a token transfer into tr.To and makes it visible to transfer scans
func (c *stubSweepChain) receive(tr entities.TokenTransfer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(tr.To)
	c.token[key] = c.token[key].Add(tr.Amount)
	c.incoming = append(c.incoming, tr)
}

func (c *stubSweepChain) tokenOf(address string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token[strings.ToLower(address)]
}

func (c *stubSweepChain) GetCurrentBlock(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, nil
}

func (c *stubSweepChain) GetTokenTransfers(_ context.Context, address string, from, to uint64) ([]entities.TokenTransfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.TokenTransfer
	for _, tr := range c.incoming {
		if strings.EqualFold(tr.To, address) && tr.BlockNumber >= from && tr.BlockNumber <= to {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (c *stubSweepChain) GetTokenBalance(_ context.Context, address string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tokenErr[strings.ToLower(address)]; err != nil {
		return decimal.Zero, err
	}
	return c.token[strings.ToLower(address)], nil
}

func (c *stubSweepChain) GetNativeBalance(_ context.Context, address string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.native[strings.ToLower(address)], nil
}

func (c *stubSweepChain) GetGasPrice(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *stubSweepChain) EstimateTokenTransferGas(context.Context, string, string, decimal.Decimal) (uint64, error) {
	return c.gasLimit, nil
}

func (c *stubSweepChain) SendToken(_ context.Context, key []byte, to string, amount decimal.Decimal, _ blockchain.SendOptions) (string, error) {
	from, err := crypto.AddressFromPrivateKey(key)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHash++
	hash := txHash(c.nextHash)
	fromKey, toKey := strings.ToLower(from), strings.ToLower(to)
	c.token[fromKey] = c.token[fromKey].Sub(amount)
	c.token[toKey] = c.token[toKey].Add(amount)
	c.sentTokens = append(c.sentTokens, sentToken{From: from, To: to, Amount: amount, Hash: hash})
	return hash, nil
}

func (c *stubSweepChain) WaitForReceipt(_ context.Context, hash string, _ time.Duration) (*blockchain.ReceiptInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &blockchain.ReceiptInfo{
		TxHash:            hash,
		BlockNumber:       500,
		Success:           true,
		GasUsed:           c.gasUsed,
		EffectiveGasPrice: new(big.Int).Set(c.gasPrice),
	}, nil
}

// stubMaster funds wallets on the paired chain stub
type stubMaster struct {
	mu      sync.Mutex
	address string
	balance decimal.Decimal
	chain   *stubSweepChain
	sends   []string
	failTo  map[string]bool
}

func newStubMaster(chain *stubSweepChain, balance string) *stubMaster {
	return &stubMaster{
		address: "0x9999999999999999999999999999999999999999",
		balance: dec(balance),
		chain:   chain,
		failTo:  map[string]bool{},
	}
}

func (m *stubMaster) Address() string { return m.address }

func (m *stubMaster) NativeBalance(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *stubMaster) SendNative(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo[strings.ToLower(to)] {
		return "", fmt.Errorf("nonce too low")
	}
	m.balance = m.balance.Sub(amount)
	m.sends = append(m.sends, to)
	m.chain.addNative(to, amount)
	return txHash(len(m.sends)), nil
}

func (m *stubMaster) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

// stubLock is an in-process cycle lock
type stubLock struct {
	mu   sync.Mutex
	held bool
}

func (l *stubLock) Acquire(context.Context, time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *stubLock) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if token == "token" {
		l.held = false
	}
	return nil
}
