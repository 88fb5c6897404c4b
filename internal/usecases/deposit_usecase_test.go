package usecases_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/utils"
)

const payerAddress = "0x3333333333333333333333333333333333333333"

type depositFixture struct {
	store    *testStore
	chain    *stubDepositChain
	notifier *stubNotifier
	ledger   *usecases.LedgerUsecase
	uc       *usecases.DepositUsecase
	wallet   *entities.Wallet
}

func defaultDepositConfig() config.DepositConfig {
	return config.DepositConfig{
		MonitorTTL:       24 * time.Hour,
		BackfillBlocks:   5000,
		TolerancePercent: decimal.NewFromInt(1),
		MinCreditUSD:     decimal.NewFromInt(1),
		CreditUnexpected: true,
		ConfirmBatchSize: 100,
	}
}

func newDepositFixture(t *testing.T, cfg config.DepositConfig) *depositFixture {
	t.Helper()
	store := newTestStore(t)
	chain := &stubDepositChain{current: 1000, reverted: map[string]bool{}}
	notifier := &stubNotifier{}
	ledger := usecases.NewLedgerUsecase(store.uow, store.ledger, store.profiles)
	uc := usecases.NewDepositUsecase(store.uow, store.deposits, store.wallets, ledger, chain, notifier, testNetwork, cfg)
	return &depositFixture{
		store:    store,
		chain:    chain,
		notifier: notifier,
		ledger:   ledger,
		uc:       uc,
		wallet:   store.seedWallet(t, newTestVault(t)),
	}
}

func (f *depositFixture) transfer(n int, amount string, block uint64) entities.TokenTransfer {
	tr := entities.TokenTransfer{
		From:        payerAddress,
		To:          f.wallet.Address,
		Amount:      dec(amount),
		TxHash:      txHash(n),
		BlockNumber: block,
	}
	f.chain.mu.Lock()
	f.chain.transfers = append(f.chain.transfers, tr)
	f.chain.mu.Unlock()
	return tr
}

func TestMatchesExpected(t *testing.T) {
	one := decimal.NewFromInt(1)
	cases := []struct {
		expected, received string
		want               bool
	}{
		{"50", "50", true},
		{"50", "49.5", true},
		{"50", "50.5", true},
		{"50", "49.49", false},
		{"50", "50.51", false},
		{"0", "0", false},
		{"100", "99.01", true},
	}
	for _, tc := range cases {
		got := usecases.MatchesExpected(dec(tc.expected), dec(tc.received), one)
		assert.Equal(t, tc.want, got, "expected=%s received=%s", tc.expected, tc.received)
	}
}

func TestDepositUsecase_ExpectedDepositLifecycle(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	record, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("50"))
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, record.Status)

	w, err := f.store.wallets.GetByUserID(ctx, f.wallet.UserID)
	require.NoError(t, err)
	assert.True(t, w.IsMonitored)

	from, err := f.uc.BackfillStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), from, "backfill window larger than the chain clamps to genesis")

	f.chain.setCurrent(1005)
	f.transfer(1, "50", 1000)

	tick, err := f.uc.Tick(ctx, record.ID, 995)
	require.NoError(t, err)
	assert.False(t, tick.Done)
	assert.Equal(t, uint64(995), tick.NextBlock, "the cursor trails the head and never moves back")
	assert.Equal(t, strings.ToLower(txHash(1)), tick.Deposit.TxHash.String)
	assert.Equal(t, uint64(6), tick.Deposit.Confirmations)
	assert.Equal(t, 1, f.notifier.ofType(entities.NotificationDepositPending))

	view, err := f.ledger.GetBalance(ctx, f.wallet.UserID, 10)
	require.NoError(t, err)
	assert.True(t, view.Balance.IsZero())

	f.chain.setCurrent(1011)
	tick, err = f.uc.Tick(ctx, record.ID, tick.NextBlock)
	require.NoError(t, err)
	assert.True(t, tick.Done)
	assert.Equal(t, entities.DepositStatusConfirmed, tick.Deposit.Status)
	assert.NotNil(t, tick.Deposit.ConfirmedAt)

	assert.True(t, dec("50").Equal(f.store.balance(t, f.wallet.UserID)))
	f.store.requireFold(t, f.wallet.UserID)
	assert.Equal(t, 1, f.notifier.ofType(entities.NotificationDepositConfirmed))

	w, err = f.store.wallets.GetByUserID(ctx, f.wallet.UserID)
	require.NoError(t, err)
	assert.False(t, w.IsMonitored, "monitor flag clears once nothing is awaited")

	// a later tick on a terminal deposit is a no-op
	tick, err = f.uc.Tick(ctx, record.ID, 1012)
	require.NoError(t, err)
	assert.True(t, tick.Done)
	assert.Len(t, f.store.ledgerRows(t, f.wallet.UserID), 1)
}

func TestDepositUsecase_TickRescansLateIndexedTransfers(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	record, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("25"))
	require.NoError(t, err)

	f.chain.setCurrent(1000)
	tick, err := f.uc.Tick(ctx, record.ID, 900)
	require.NoError(t, err)
	assert.False(t, tick.Done)
	assert.False(t, tick.Deposit.TxHash.Valid)
	assert.Equal(t, uint64(989), tick.NextBlock)

	// mined in block 998 but indexed only after the pass above reached block 1000
	f.transfer(7, "25", 998)
	f.chain.setCurrent(1003)
	tick, err = f.uc.Tick(ctx, record.ID, tick.NextBlock)
	require.NoError(t, err)
	require.True(t, tick.Deposit.TxHash.Valid)
	assert.Equal(t, strings.ToLower(txHash(7)), tick.Deposit.TxHash.String)
	assert.Equal(t, uint64(992), tick.NextBlock)

	// scanning the overlap again leaves a single record
	_, err = f.uc.Tick(ctx, record.ID, 989)
	require.NoError(t, err)
	deposits, total, err := f.uc.ListDeposits(ctx, f.wallet.UserID, utils.PaginationParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, deposits, 1)
	assert.Equal(t, record.ID, deposits[0].ID)
}

func TestDepositUsecase_ConfirmationBoundary(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	f.chain.setCurrent(1010)
	tr := f.transfer(2, "25", 1000)

	item, err := f.uc.ProcessTransfer(ctx, f.wallet, tr, 1010, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), item.Confirmations)
	assert.False(t, item.Credited)

	credited, err := f.uc.ConfirmPending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	stored, err := f.store.deposits.GetByTxHash(ctx, tr.TxHash)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusPending, stored.Status)

	f.chain.setCurrent(1011)
	credited, err = f.uc.ConfirmPending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, credited)
	assert.True(t, dec("25").Equal(f.store.balance(t, f.wallet.UserID)))

	credited, err = f.uc.ConfirmPending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)
}

func TestDepositUsecase_ProcessTransferIsIdempotent(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()
	tr := f.transfer(3, "75", 1000)

	for i := 0; i < 3; i++ {
		item, err := f.uc.ProcessTransfer(ctx, f.wallet, tr, 1020, nil)
		require.NoError(t, err)
		assert.True(t, item.Credited)
	}

	assert.True(t, dec("75").Equal(f.store.balance(t, f.wallet.UserID)))
	assert.Len(t, f.store.ledgerRows(t, f.wallet.UserID), 1)
	assert.Equal(t, 1, f.notifier.ofType(entities.NotificationDepositConfirmed))
}

func TestDepositUsecase_ConcurrentDetectionCreditsOnce(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	tr := f.transfer(4, "40", 1000)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.ProcessTransfer(context.Background(), f.wallet, tr, 1020, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, dec("40").Equal(f.store.balance(t, f.wallet.UserID)))
	assert.Len(t, f.store.ledgerRows(t, f.wallet.UserID), 1)
	f.store.requireFold(t, f.wallet.UserID)
}

func TestDepositUsecase_UnexpectedDeposits(t *testing.T) {
	t.Run("credited when allowed", func(t *testing.T) {
		f := newDepositFixture(t, defaultDepositConfig())
		tr := f.transfer(5, "30", 1000)

		item, err := f.uc.ProcessTransfer(context.Background(), f.wallet, tr, 1020, nil)
		require.NoError(t, err)
		assert.True(t, item.Credited)
		assert.True(t, dec("30").Equal(f.store.balance(t, f.wallet.UserID)))
	})

	t.Run("dust is held", func(t *testing.T) {
		f := newDepositFixture(t, defaultDepositConfig())
		tr := f.transfer(6, "0.5", 1000)

		item, err := f.uc.ProcessTransfer(context.Background(), f.wallet, tr, 1020, nil)
		require.NoError(t, err)
		assert.False(t, item.Credited)
		assert.Equal(t, entities.DepositStatusFailed, item.Status)
		assert.Empty(t, f.store.ledgerRows(t, f.wallet.UserID))
	})

	t.Run("held when crediting is off", func(t *testing.T) {
		cfg := defaultDepositConfig()
		cfg.CreditUnexpected = false
		f := newDepositFixture(t, cfg)
		tr := f.transfer(7, "500", 1000)

		item, err := f.uc.ProcessTransfer(context.Background(), f.wallet, tr, 1020, nil)
		require.NoError(t, err)
		assert.False(t, item.Credited)
		assert.Equal(t, 0, f.notifier.ofType(entities.NotificationDepositPending))
		assert.Empty(t, f.store.ledgerRows(t, f.wallet.UserID))
	})

	t.Run("amount outside tolerance does not match", func(t *testing.T) {
		cfg := defaultDepositConfig()
		cfg.CreditUnexpected = false
		f := newDepositFixture(t, cfg)
		ctx := context.Background()

		expected, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("50"))
		require.NoError(t, err)
		f.transfer(8, "45", 1000)

		_, err = f.uc.ScanRange(ctx, f.wallet, 990, 1020)
		require.NoError(t, err)

		still, err := f.store.deposits.GetByID(ctx, expected.ID)
		require.NoError(t, err)
		assert.False(t, still.TxHash.Valid)
		assert.Equal(t, entities.DepositStatusPending, still.Status)
	})
}

func TestDepositUsecase_CheckAddress(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	result, err := f.uc.CheckAddress(ctx, f.wallet.UserID)
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, "No deposits found", result.Message)
	assert.NotNil(t, result.Transactions)

	f.chain.setCurrent(1020)
	f.transfer(9, "10", 1000)
	f.transfer(10, "20", 1015)

	result, err = f.uc.CheckAddress(ctx, f.wallet.UserID)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, f.wallet.Address, result.Address)
	assert.Equal(t, "Found 2 transaction(s), 1 credited", result.Message)
	assert.True(t, dec("10").Equal(f.store.balance(t, f.wallet.UserID)))

	_, err = f.uc.CheckAddress(ctx, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestDepositUsecase_Expiry(t *testing.T) {
	ctx := context.Background()

	t.Run("stale expected deposits fail", func(t *testing.T) {
		cfg := defaultDepositConfig()
		cfg.MonitorTTL = -time.Hour
		f := newDepositFixture(t, cfg)

		record, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("5"))
		require.NoError(t, err)

		n, err := f.uc.ExpireStale(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored, err := f.store.deposits.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.DepositStatusFailed, stored.Status)

		w, err := f.store.wallets.GetByUserID(ctx, f.wallet.UserID)
		require.NoError(t, err)
		assert.False(t, w.IsMonitored)
	})

	t.Run("expire leaves matched deposits alone", func(t *testing.T) {
		f := newDepositFixture(t, defaultDepositConfig())
		record, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("20"))
		require.NoError(t, err)
		f.transfer(11, "20", 995)

		_, err = f.uc.Tick(ctx, record.ID, 990)
		require.NoError(t, err)
		require.NoError(t, f.uc.Expire(ctx, record.ID))

		stored, err := f.store.deposits.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.DepositStatusPending, stored.Status)
		assert.True(t, stored.TxHash.Valid)
	})

	t.Run("expire fails an unmatched deposit", func(t *testing.T) {
		f := newDepositFixture(t, defaultDepositConfig())
		record, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("20"))
		require.NoError(t, err)
		require.NoError(t, f.uc.Expire(ctx, record.ID))

		stored, err := f.store.deposits.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.DepositStatusFailed, stored.Status)
	})
}

func TestDepositUsecase_RevertedTransferFails(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	tr := f.transfer(12, "15", 1000)
	_, err := f.uc.ProcessTransfer(ctx, f.wallet, tr, 1003, nil)
	require.NoError(t, err)

	f.chain.mu.Lock()
	f.chain.reverted[strings.ToLower(tr.TxHash)] = true
	f.chain.mu.Unlock()
	f.chain.setCurrent(1020)

	credited, err := f.uc.ConfirmPending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, credited)

	stored, err := f.store.deposits.GetByTxHash(ctx, tr.TxHash)
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusFailed, stored.Status)
	assert.Empty(t, f.store.ledgerRows(t, f.wallet.UserID))
}

func TestDepositUsecase_InputValidationAndListing(t *testing.T) {
	f := newDepositFixture(t, defaultDepositConfig())
	ctx := context.Background()

	_, err := f.uc.CreateExpectedDeposit(ctx, uuid.Nil, dec("1"))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	_, err = f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("0"))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount)
	_, err = f.uc.CreateExpectedDeposit(ctx, uuid.New(), dec("1"))
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	for i := 0; i < 3; i++ {
		_, err := f.uc.CreateExpectedDeposit(ctx, f.wallet.UserID, dec("10"))
		require.NoError(t, err)
	}
	rows, total, err := f.uc.ListDeposits(ctx, f.wallet.UserID, utils.PaginationParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rows, 2)
}
