package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/internal/infrastructure/blockchain"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/metrics"
	"bsc-custody.backend/pkg/utils"
)

var hundred = decimal.NewFromInt(100)

// rescanOverlap is how many recent blocks each monitoring pass scans again.
// Recording is idempotent on the transaction hash, so a rescan never credits twice.
const rescanOverlap = entities.RequiredConfirmations

// MonitorTick is the outcome of one monitoring pass over an expected deposit
type MonitorTick struct {
	NextBlock uint64
	Done      bool
	Deposit   *entities.DepositRecord
}

// DepositUsecase detects token transfers into custodial wallets and credits them once final
type DepositUsecase struct {
	uow         repositories.UnitOfWork
	depositRepo repositories.DepositRepository
	walletRepo  repositories.WalletRepository
	ledger      *LedgerUsecase
	chain       DepositChain
	notifier    Notifier
	network     entities.Network
	cfg         config.DepositConfig
	nowFn       func() time.Time
}

// NewDepositUsecase creates a new deposit usecase
func NewDepositUsecase(
	uow repositories.UnitOfWork,
	depositRepo repositories.DepositRepository,
	walletRepo repositories.WalletRepository,
	ledger *LedgerUsecase,
	chain DepositChain,
	notifier Notifier,
	network entities.Network,
	cfg config.DepositConfig,
) *DepositUsecase {
	return &DepositUsecase{
		uow:         uow,
		depositRepo: depositRepo,
		walletRepo:  walletRepo,
		ledger:      ledger,
		chain:       chain,
		notifier:    notifier,
		network:     network,
		cfg:         cfg,
		nowFn:       time.Now,
	}
}

// MatchesExpected reports whether received lies within tolerancePercent of expected
func MatchesExpected(expected, received, tolerancePercent decimal.Decimal) bool {
	if !expected.IsPositive() {
		return false
	}
	band := expected.Mul(tolerancePercent).Div(hundred)
	return received.Sub(expected).Abs().LessThanOrEqual(band)
}

// CreateExpectedDeposit records that the user announced a deposit of amount
func (u *DepositUsecase) CreateExpectedDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.DepositRecord, error) {
	if userID == uuid.Nil {
		return nil, domainerrors.ErrInvalidInput
	}
	if !amount.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}

	wallet, err := u.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	record := &entities.DepositRecord{
		UserID:         userID,
		WalletAddress:  wallet.Address,
		ExpectedAmount: decimal.NewNullDecimal(amount),
		ReceivedAmount: decimal.Zero,
		Status:         entities.DepositStatusPending,
	}
	if err := u.depositRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	if err := u.walletRepo.SetMonitored(ctx, wallet.ID, true); err != nil {
		logger.Warn(ctx, "Failed to flag wallet as monitored", zap.String("address", wallet.Address), zap.Error(err))
	}
	return record, nil
}

// BackfillStart returns the first block a new monitoring session scans
func (u *DepositUsecase) BackfillStart(ctx context.Context) (uint64, error) {
	current, err := u.chain.GetCurrentBlock(ctx)
	if err != nil {
		return 0, err
	}
	return backfillFrom(current, u.cfg.BackfillBlocks), nil
}

// Tick advances monitoring of one expected deposit from fromBlock to the chain head.
// The next pass starts rescanOverlap blocks behind the head, since explorer indexes lag
// the head and a transfer in the newest blocks may only show up on a later pass.
// Done is set once the deposit reaches a terminal status.
func (u *DepositUsecase) Tick(ctx context.Context, depositID uuid.UUID, fromBlock uint64) (*MonitorTick, error) {
	record, err := u.depositRepo.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		u.releaseMonitor(ctx, record)
		return &MonitorTick{NextBlock: fromBlock, Done: true, Deposit: record}, nil
	}

	if record.TxHash.Valid {
		// matched already, only finality is left to observe
		if _, err := u.confirmRecord(ctx, record); err != nil {
			return nil, err
		}
		done := record.IsTerminal()
		if done {
			u.releaseMonitor(ctx, record)
		}
		return &MonitorTick{NextBlock: fromBlock, Done: done, Deposit: record}, nil
	}

	wallet, err := u.walletRepo.GetByUserID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	current, err := u.chain.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	if fromBlock > current {
		return &MonitorTick{NextBlock: fromBlock, Deposit: record}, nil
	}

	if _, err := u.ScanRange(ctx, wallet, fromBlock, current); err != nil {
		return nil, err
	}

	refreshed, err := u.depositRepo.GetByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	done := refreshed.IsTerminal()
	if done {
		u.releaseMonitor(ctx, refreshed)
	}
	return &MonitorTick{NextBlock: rescanFrom(fromBlock, current), Done: done, Deposit: refreshed}, nil
}

// ScanRange processes every transfer into wallet within [fromBlock, toBlock].
// Transfers are matched against the user's open expected deposits in arrival order.
func (u *DepositUsecase) ScanRange(ctx context.Context, wallet *entities.Wallet, fromBlock, toBlock uint64) ([]entities.DepositCheckItem, error) {
	transfers, err := u.chain.GetTokenTransfers(ctx, wallet.Address, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, nil
	}

	current, err := u.chain.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	if current < toBlock {
		current = toBlock
	}

	awaiting, err := u.depositRepo.ListAwaitingMatch(ctx, wallet.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]entities.DepositCheckItem, 0, len(transfers))
	for _, transfer := range transfers {
		var expected *entities.DepositRecord
		_, err := u.depositRepo.GetByTxHash(ctx, transfer.TxHash)
		switch {
		case errors.Is(err, domainerrors.ErrNotFound):
			expected, awaiting = u.takeMatch(awaiting, transfer.Amount)
		case err != nil:
			return items, err
		}

		item, err := u.ProcessTransfer(ctx, wallet, transfer, current, expected)
		if err != nil {
			logger.Error(ctx, "Failed to process transfer",
				zap.String("tx_hash", transfer.TxHash),
				zap.String("address", wallet.Address),
				zap.Error(err),
			)
			return items, err
		}
		items = append(items, *item)
	}
	return items, nil
}

// ProcessTransfer records a transfer into wallet and credits it once it has enough confirmations.
// It is idempotent on the transfer's transaction hash. expected may be nil for an unannounced deposit.
func (u *DepositUsecase) ProcessTransfer(
	ctx context.Context,
	wallet *entities.Wallet,
	transfer entities.TokenTransfer,
	currentBlock uint64,
	expected *entities.DepositRecord,
) (*entities.DepositCheckItem, error) {
	if !transfer.Amount.IsPositive() {
		return nil, domainerrors.ErrInvalidAmount
	}
	confirmations := blockchain.Confirmations(currentBlock, transfer.BlockNumber)

	record, err := u.depositRepo.GetByTxHash(ctx, transfer.TxHash)
	if errors.Is(err, domainerrors.ErrNotFound) {
		record, err = u.recordTransfer(ctx, wallet, transfer, confirmations, expected)
	}
	if err != nil {
		return nil, err
	}

	if record.Status == entities.DepositStatusPending {
		if confirmations >= entities.RequiredConfirmations {
			if err := u.credit(ctx, record.ID, confirmations); err != nil {
				return nil, err
			}
			if record, err = u.depositRepo.GetByID(ctx, record.ID); err != nil {
				return nil, err
			}
		} else if confirmations > record.Confirmations {
			record.Confirmations = confirmations
			if err := u.depositRepo.Update(ctx, record); err != nil {
				return nil, err
			}
		}
	}

	return u.checkItem(record, confirmations), nil
}

// CheckAddress scans the user's address over the backfill window and reports what it found
func (u *DepositUsecase) CheckAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositCheckResult, error) {
	wallet, err := u.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	current, err := u.chain.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	items, err := u.ScanRange(ctx, wallet, backfillFrom(current, u.cfg.BackfillBlocks), current)
	if err != nil {
		return nil, err
	}

	result := &entities.DepositCheckResult{
		Address:      wallet.Address,
		Found:        len(items) > 0,
		Transactions: items,
		Message:      "No deposits found",
	}
	if result.Transactions == nil {
		result.Transactions = []entities.DepositCheckItem{}
	}
	if result.Found {
		credited := 0
		for _, item := range items {
			if item.Credited {
				credited++
			}
		}
		result.Message = fmt.Sprintf("Found %d transaction(s), %d credited", len(items), credited)
	}
	return result, nil
}

// ConfirmPending re-checks matched deposits that have not reached finality yet.
// It returns the number of deposits credited during the pass.
func (u *DepositUsecase) ConfirmPending(ctx context.Context, limit int) (int, error) {
	records, err := u.depositRepo.ListPendingWithTxHash(ctx, limit)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, record := range records {
		ok, err := u.confirmRecord(ctx, record)
		if err != nil {
			logger.Warn(ctx, "Deposit confirmation check failed",
				zap.String("deposit_id", record.ID.String()),
				zap.String("tx_hash", record.TxHash.String),
				zap.Error(err),
			)
			continue
		}
		if ok {
			credited++
		}
	}
	return credited, nil
}

// ExpireStale fails expected deposits that never saw a transfer within the monitoring window
func (u *DepositUsecase) ExpireStale(ctx context.Context, limit int) (int, error) {
	cutoff := u.nowFn().Add(-u.cfg.MonitorTTL)
	stale, err := u.depositRepo.ListStaleAwaitingMatch(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(stale))
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	if err := u.depositRepo.MarkFailed(ctx, ids); err != nil {
		return 0, err
	}
	for _, d := range stale {
		d.Status = entities.DepositStatusFailed
		u.releaseMonitor(ctx, d)
	}
	return len(ids), nil
}

// OpenExpected returns expected deposits still waiting for a transfer, oldest first
func (u *DepositUsecase) OpenExpected(ctx context.Context, limit int) ([]*entities.DepositRecord, error) {
	return u.depositRepo.ListStaleAwaitingMatch(ctx, u.nowFn(), limit)
}

// ListDeposits returns the user's deposits newest first
func (u *DepositUsecase) ListDeposits(ctx context.Context, userID uuid.UUID, pagination utils.PaginationParams) ([]*entities.DepositRecord, int64, error) {
	return u.depositRepo.ListByUserID(ctx, userID, pagination.Limit, pagination.CalculateOffset())
}

// Expire fails one expected deposit, used when its monitoring session times out
func (u *DepositUsecase) Expire(ctx context.Context, depositID uuid.UUID) error {
	record, err := u.depositRepo.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	if record.Status != entities.DepositStatusPending || record.TxHash.Valid {
		return nil
	}
	if err := u.depositRepo.MarkFailed(ctx, []uuid.UUID{depositID}); err != nil {
		return err
	}
	record.Status = entities.DepositStatusFailed
	u.releaseMonitor(ctx, record)
	return nil
}

func (u *DepositUsecase) takeMatch(awaiting []*entities.DepositRecord, amount decimal.Decimal) (*entities.DepositRecord, []*entities.DepositRecord) {
	for i, d := range awaiting {
		if !d.ExpectedAmount.Valid {
			continue
		}
		if MatchesExpected(d.ExpectedAmount.Decimal, amount, u.cfg.TolerancePercent) {
			rest := make([]*entities.DepositRecord, 0, len(awaiting)-1)
			rest = append(rest, awaiting[:i]...)
			rest = append(rest, awaiting[i+1:]...)
			return d, rest
		}
	}
	return nil, awaiting
}

func (u *DepositUsecase) recordTransfer(
	ctx context.Context,
	wallet *entities.Wallet,
	transfer entities.TokenTransfer,
	confirmations uint64,
	expected *entities.DepositRecord,
) (*entities.DepositRecord, error) {
	if expected != nil {
		err := u.depositRepo.UpdateBlockchainData(ctx, expected.ID, repositories.BlockchainData{
			TxHash:        transfer.TxHash,
			FromAddress:   transfer.From,
			BlockNumber:   transfer.BlockNumber,
			Confirmations: confirmations,
			Amount:        transfer.Amount,
		})
		switch {
		case err == nil:
			metrics.DepositsDetected.WithLabelValues("matched").Inc()
			record, err := u.depositRepo.GetByID(ctx, expected.ID)
			if err != nil {
				return nil, err
			}
			u.notifyPending(ctx, record)
			return record, nil
		case errors.Is(err, domainerrors.ErrAlreadyExists):
			return u.depositRepo.GetByTxHash(ctx, transfer.TxHash)
		case errors.Is(err, domainerrors.ErrNotFound):
			// matched by a concurrent pass, record this transfer on its own
		default:
			return nil, err
		}
	}

	record := &entities.DepositRecord{
		UserID:         wallet.UserID,
		WalletAddress:  wallet.Address,
		ReceivedAmount: transfer.Amount,
		Status:         entities.DepositStatusPending,
		TxHash:         null.StringFrom(strings.ToLower(transfer.TxHash)),
		BlockNumber:    transfer.BlockNumber,
		Confirmations:  confirmations,
	}
	if transfer.From != "" {
		record.FromAddress = null.StringFrom(transfer.From)
	}

	outcome := "unexpected"
	if !u.cfg.CreditUnexpected || transfer.Amount.LessThan(u.cfg.MinCreditUSD) {
		// held for operator review, never auto-credited
		record.Status = entities.DepositStatusFailed
		outcome = "held"
	}

	if err := u.depositRepo.Create(ctx, record); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			return u.depositRepo.GetByTxHash(ctx, transfer.TxHash)
		}
		return nil, err
	}
	metrics.DepositsDetected.WithLabelValues(outcome).Inc()

	if record.Status == entities.DepositStatusFailed {
		logger.Warn(ctx, "Unexpected deposit held for review",
			zap.String("tx_hash", transfer.TxHash),
			zap.String("address", wallet.Address),
			zap.String("amount", transfer.Amount.String()),
		)
	} else {
		u.notifyPending(ctx, record)
	}
	return record, nil
}

// confirmRecord checks a matched deposit's receipt and credits it when final.
// It updates record in place and reports whether this call credited it.
func (u *DepositUsecase) confirmRecord(ctx context.Context, record *entities.DepositRecord) (bool, error) {
	ok, count, err := u.chain.IsConfirmed(ctx, record.TxHash.String, entities.RequiredConfirmations)
	if errors.Is(err, blockchain.ErrTxReverted) {
		logger.Warn(ctx, "Deposit transaction reverted",
			zap.String("deposit_id", record.ID.String()),
			zap.String("tx_hash", record.TxHash.String),
		)
		if err := u.depositRepo.MarkFailed(ctx, []uuid.UUID{record.ID}); err != nil {
			return false, err
		}
		record.Status = entities.DepositStatusFailed
		return false, nil
	}
	if errors.Is(err, blockchain.ErrTxNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !ok {
		if count > record.Confirmations {
			record.Confirmations = count
			if err := u.depositRepo.Update(ctx, record); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if err := u.credit(ctx, record.ID, count); err != nil {
		return false, err
	}
	refreshed, err := u.depositRepo.GetByID(ctx, record.ID)
	if err != nil {
		return false, err
	}
	*record = *refreshed
	return true, nil
}

// credit marks a pending deposit confirmed and credits the ledger in one unit.
// The row lock on the deposit makes concurrent attempts converge on a single credit.
func (u *DepositUsecase) credit(ctx context.Context, depositID uuid.UUID, confirmations uint64) error {
	var credited *entities.DepositRecord
	var entry *entities.LedgerTransaction

	record, err := u.depositRepo.GetByID(ctx, depositID)
	if err != nil {
		return err
	}
	if err := u.ledger.EnsureAccount(ctx, record.UserID); err != nil {
		return err
	}

	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		locked, err := u.depositRepo.GetByID(u.uow.WithLock(txCtx), depositID)
		if err != nil {
			return err
		}
		if locked.Status != entities.DepositStatusPending || !locked.TxHash.Valid {
			return nil
		}

		id := locked.ID
		row, applied, err := u.ledger.Credit(txCtx, &entities.CreditInput{
			UserID:        locked.UserID,
			Amount:        locked.ReceivedAmount,
			Type:          entities.LedgerTypeDeposit,
			ReferenceHash: locked.TxHash.String,
			DepositID:     &id,
			Description:   fmt.Sprintf("Deposit of %s %s", locked.ReceivedAmount.String(), u.network.TokenSymbol),
		})
		if err != nil {
			return err
		}

		now := u.nowFn()
		locked.Status = entities.DepositStatusConfirmed
		locked.Confirmations = confirmations
		locked.ConfirmedAt = &now
		if err := u.depositRepo.Update(txCtx, locked); err != nil {
			return err
		}
		if applied {
			credited = locked
			entry = row
		}
		return nil
	})
	if err != nil {
		return err
	}

	if credited != nil {
		metrics.DepositsCredited.Inc()
		logger.Info(ctx, "Deposit credited",
			zap.String("deposit_id", credited.ID.String()),
			zap.String("user_id", credited.UserID.String()),
			zap.String("tx_hash", credited.TxHash.String),
			zap.String("amount", credited.ReceivedAmount.String()),
		)
		u.notify(ctx, &entities.Notification{
			UserID:  credited.UserID,
			Type:    entities.NotificationDepositConfirmed,
			Title:   "Deposit confirmed",
			Message: fmt.Sprintf("Your deposit of %s %s has been credited", credited.ReceivedAmount.String(), u.network.TokenSymbol),
			Data: map[string]interface{}{
				"depositId":   credited.ID.String(),
				"txHash":      credited.TxHash.String,
				"amount":      credited.ReceivedAmount.String(),
				"newBalance":  entry.BalanceAfter.String(),
				"explorerUrl": u.network.TxURL(credited.TxHash.String),
			},
		})
	}
	return nil
}

func (u *DepositUsecase) checkItem(record *entities.DepositRecord, confirmations uint64) *entities.DepositCheckItem {
	if record.Confirmations > confirmations {
		confirmations = record.Confirmations
	}
	return &entities.DepositCheckItem{
		TxHash:        record.TxHash.String,
		Amount:        record.ReceivedAmount,
		BlockNumber:   record.BlockNumber,
		Confirmations: confirmations,
		Status:        record.Status,
		Credited:      record.IsCredited(),
		ExplorerURL:   u.network.TxURL(record.TxHash.String),
	}
}

func (u *DepositUsecase) notifyPending(ctx context.Context, record *entities.DepositRecord) {
	u.notify(ctx, &entities.Notification{
		UserID:  record.UserID,
		Type:    entities.NotificationDepositPending,
		Title:   "Deposit detected",
		Message: fmt.Sprintf("We detected %s %s, waiting for %d confirmations", record.ReceivedAmount.String(), u.network.TokenSymbol, entities.RequiredConfirmations),
		Data: map[string]interface{}{
			"depositId":   record.ID.String(),
			"txHash":      record.TxHash.String,
			"amount":      record.ReceivedAmount.String(),
			"explorerUrl": u.network.TxURL(record.TxHash.String),
		},
	})
}

// notify is fire-and-forget. A failed notification never undoes a credit.
func (u *DepositUsecase) notify(ctx context.Context, n *entities.Notification) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(ctx, n); err != nil {
		logger.Warn(ctx, "Failed to deliver notification",
			zap.String("user_id", n.UserID.String()),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
	}
}

// releaseMonitor clears the wallet's monitored flag once no expected deposit is open
func (u *DepositUsecase) releaseMonitor(ctx context.Context, record *entities.DepositRecord) {
	open, err := u.depositRepo.ListAwaitingMatch(ctx, record.UserID)
	if err != nil || len(open) > 0 {
		return
	}
	wallet, err := u.walletRepo.GetByUserID(ctx, record.UserID)
	if err != nil || !wallet.IsMonitored {
		return
	}
	if err := u.walletRepo.SetMonitored(ctx, wallet.ID, false); err != nil {
		logger.Warn(ctx, "Failed to clear wallet monitored flag", zap.String("address", wallet.Address), zap.Error(err))
	}
}

// rescanFrom is the cursor after a pass over [fromBlock, current]. It trails the head by
// rescanOverlap blocks and never moves backwards.
func rescanFrom(fromBlock, current uint64) uint64 {
	next := backfillFrom(current+1, rescanOverlap)
	if next < fromBlock {
		return fromBlock
	}
	return next
}

func backfillFrom(current, window uint64) uint64 {
	if current <= window {
		return 0
	}
	return current - window
}
