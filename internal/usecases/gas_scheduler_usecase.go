package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
	"bsc-custody.backend/internal/infrastructure/blockchain"
	"bsc-custody.backend/pkg/crypto"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/metrics"
)

// nativeTransferGas is the fixed gas cost of a plain native coin transfer
const nativeTransferGas uint64 = 21000

var (
	highCostMultiplier   = decimal.NewFromInt(10)
	mediumCostMultiplier = decimal.NewFromInt(5)
	lowCostMultiplier    = decimal.NewFromInt(3)

	errNoTokenBalance   = errors.New("wallet holds no tokens")
	errInsufficientGas  = errors.New("insufficient gas for token transfer")
	errDepositsInFlight = errors.New("deposits awaiting confirmations")
)

// sweepParams are the treasury settings in force for one cycle
type sweepParams struct {
	thresholds entities.SweepThresholds
	gasAmount  decimal.Decimal
	reserve    decimal.Decimal
}

// GasDistribution summarizes gas top-ups of one cycle
type GasDistribution struct {
	Sent   int
	Failed int
}

// GasSchedulerUsecase classifies custodial wallets by token balance, tops up their gas from the
// master wallet and sweeps their tokens into it.
type GasSchedulerUsecase struct {
	uow         repositories.UnitOfWork
	walletRepo  repositories.WalletRepository
	depositRepo repositories.DepositRepository
	gasOpRepo   repositories.GasOperationRepository
	cfgRepo     repositories.MasterWalletConfigRepository
	ledger      *LedgerUsecase
	chain       SweepChain
	master      MasterWallet
	keys        KeyVault
	lock        CycleLock
	notifier    Notifier
	network     entities.Network
	cfg         config.SweepConfig

	sleepFn func(ctx context.Context, d time.Duration) error
	nowFn   func() time.Time

	mu          sync.RWMutex
	gasCostUSD  decimal.Decimal
	lastReport  *entities.CycleReport
	lastCycleAt *time.Time
	tierRuns    map[entities.SweepPriority]time.Time
}

// NewGasSchedulerUsecase creates the sweep engine
func NewGasSchedulerUsecase(
	uow repositories.UnitOfWork,
	walletRepo repositories.WalletRepository,
	depositRepo repositories.DepositRepository,
	gasOpRepo repositories.GasOperationRepository,
	cfgRepo repositories.MasterWalletConfigRepository,
	ledger *LedgerUsecase,
	chain SweepChain,
	master MasterWallet,
	keys KeyVault,
	lock CycleLock,
	notifier Notifier,
	network entities.Network,
	cfg config.SweepConfig,
) *GasSchedulerUsecase {
	return &GasSchedulerUsecase{
		uow:         uow,
		walletRepo:  walletRepo,
		depositRepo: depositRepo,
		gasOpRepo:   gasOpRepo,
		cfgRepo:     cfgRepo,
		ledger:      ledger,
		chain:       chain,
		master:      master,
		keys:        keys,
		lock:        lock,
		notifier:    notifier,
		network:     network,
		cfg:         cfg,
		sleepFn:     sleepCtx,
		nowFn:       time.Now,
		gasCostUSD:  decimal.Zero,
		tierRuns:    make(map[entities.SweepPriority]time.Time),
	}
}

// WithClock replaces the engine's time source
func (u *GasSchedulerUsecase) WithClock(now func() time.Time) *GasSchedulerUsecase {
	u.nowFn = now
	return u
}

// Classify returns the priority tier balance earns and the threshold that earned it
func Classify(balance decimal.Decimal, th entities.SweepThresholds) (entities.SweepPriority, decimal.Decimal) {
	switch {
	case balance.GreaterThanOrEqual(th.High):
		return entities.PriorityHigh, th.High
	case balance.GreaterThanOrEqual(th.Medium):
		return entities.PriorityMedium, th.Medium
	case balance.GreaterThanOrEqual(th.Low):
		return entities.PriorityLow, th.Low
	}
	return entities.PriorityNone, decimal.Zero
}

// SortSchedule orders by priority, then by token balance descending within a tier
func SortSchedule(schedules []*entities.SweepSchedule) {
	sort.SliceStable(schedules, func(i, j int) bool {
		if schedules[i].Priority != schedules[j].Priority {
			return schedules[i].Priority < schedules[j].Priority
		}
		return schedules[i].TokenBalance.GreaterThan(schedules[j].TokenBalance)
	})
}

// RunCycle performs scan, classify, distribute, wait, sweep and log once.
// Only one cycle runs at a time across instances.
func (u *GasSchedulerUsecase) RunCycle(ctx context.Context) (*entities.CycleReport, error) {
	token, ok, err := u.lock.Acquire(ctx, u.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, domainerrors.ErrCycleInProgress
	}
	defer u.releaseLock(ctx, token)

	start := u.nowFn()
	ctx = logger.WithComponent(ctx, "sweep_cycle")
	params := u.loadParams(ctx)
	u.checkReserve(ctx, params)

	schedules, scanned, err := u.scan(ctx, params)
	if err != nil {
		logger.Error(ctx, "Sweep cycle scan failed", zap.Error(err))
		return nil, err
	}
	schedules, deferred := u.dueTiers(schedules, start)
	report := &entities.CycleReport{Scanned: scanned, Scheduled: len(schedules), Deferred: deferred}

	dist, err := u.distributeGas(ctx, schedules, params)
	report.GasSent = dist.Sent
	report.GasFailed = dist.Failed
	switch {
	case errors.Is(err, domainerrors.ErrInsufficientReserve):
		logger.Error(ctx, "Gas distribution aborted, master wallet reserve too low", zap.Error(err))
	case err != nil && ctx.Err() != nil:
		return report, ctx.Err()
	case err != nil:
		logger.Warn(ctx, "Gas distribution incomplete", zap.Error(err))
	}

	if dist.Sent > 0 {
		if err := u.sleepFn(ctx, u.cfg.SettleDelay); err != nil {
			return report, err
		}
	}

	outcomes := u.Sweep(ctx, schedules)
	u.markTiersRun(schedules, start)
	for _, o := range outcomes {
		if o.Error == "" {
			report.Swept++
		} else {
			report.SweepFailed++
		}
	}

	report.Duration = u.nowFn().Sub(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	finished := u.nowFn()
	u.mu.Lock()
	u.lastReport = report
	u.lastCycleAt = &finished
	u.mu.Unlock()

	logger.Info(ctx, "Sweep cycle finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("scheduled", report.Scheduled),
		zap.Int("deferred", report.Deferred),
		zap.Int("gas_sent", report.GasSent),
		zap.Int("gas_failed", report.GasFailed),
		zap.Int("swept", report.Swept),
		zap.Int("sweep_failed", report.SweepFailed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// Scan reads every custodial wallet's balances and returns the sorted sweep plan with the wallet count
func (u *GasSchedulerUsecase) Scan(ctx context.Context) ([]*entities.SweepSchedule, int, error) {
	return u.scan(ctx, u.loadParams(ctx))
}

// DistributeGas tops up every scheduled wallet lacking gas, batch by batch.
// A batch the master wallet cannot cover on top of its reserve aborts the distribution before any send.
func (u *GasSchedulerUsecase) DistributeGas(ctx context.Context, schedules []*entities.SweepSchedule) (GasDistribution, error) {
	return u.distributeGas(ctx, schedules, u.loadParams(ctx))
}

// Sweep transfers the tokens of every scheduled wallet holding gas into the master wallet.
// A failing wallet is recorded and skipped, the rest of its batch proceeds.
func (u *GasSchedulerUsecase) Sweep(ctx context.Context, schedules []*entities.SweepSchedule) []entities.SweepOutcome {
	ready := make([]*entities.SweepSchedule, 0, len(schedules))
	for _, s := range schedules {
		if s.GasDistributed {
			ready = append(ready, s)
		}
	}

	outcomes := make([]entities.SweepOutcome, 0, len(ready))
	for i, batch := range chunk(ready, u.batchSize()) {
		if i > 0 {
			if err := u.sleepFn(ctx, u.cfg.BatchDelay); err != nil {
				return outcomes
			}
		}
		outcomes = append(outcomes, u.sweepBatch(ctx, batch)...)
	}
	return outcomes
}

// Optimize recomputes the gas cost that the effective thresholds are floored on
func (u *GasSchedulerUsecase) Optimize(ctx context.Context) (entities.SweepThresholds, error) {
	gasPrice, err := u.chain.GetGasPrice(ctx)
	if err != nil {
		return entities.SweepThresholds{}, err
	}
	cost := u.usdCost(gasPrice, u.transferGasLimit())

	u.mu.Lock()
	u.gasCostUSD = cost
	u.mu.Unlock()

	th := u.effective(u.loadParams(ctx).thresholds)
	logger.Info(ctx, "Sweep thresholds optimized",
		zap.String("gas_price_wei", gasPrice.String()),
		zap.String("transfer_cost_usd", cost.StringFixed(4)),
		zap.String("high", th.High.String()),
		zap.String("medium", th.Medium.String()),
		zap.String("low", th.Low.String()),
	)
	return th, nil
}

// EffectiveThresholds returns the configured thresholds floored on the last gas cost estimate
func (u *GasSchedulerUsecase) EffectiveThresholds(ctx context.Context) entities.SweepThresholds {
	return u.effective(u.loadParams(ctx).thresholds)
}

// LastCycle returns the report of the most recent cycle, if any
func (u *GasSchedulerUsecase) LastCycle() (*entities.CycleReport, *time.Time) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastReport, u.lastCycleAt
}

// EmergencySweep tops up and sweeps one wallet right away, outside the tiering and batching
func (u *GasSchedulerUsecase) EmergencySweep(ctx context.Context, address string) (*entities.EmergencySweepResult, error) {
	if !common.IsHexAddress(address) {
		return nil, domainerrors.ErrInvalidAddress
	}
	wallet, err := u.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	token, ok, err := u.lock.Acquire(ctx, u.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, domainerrors.ErrCycleInProgress
	}
	defer u.releaseLock(ctx, token)

	ctx = logger.WithComponent(ctx, "emergency_sweep")
	params := u.loadParams(ctx)

	balance, err := u.chain.GetTokenBalance(ctx, wallet.Address)
	if err != nil {
		return &entities.EmergencySweepResult{Success: false, Reason: "token balance unavailable"}, nil
	}
	if !balance.IsPositive() {
		return &entities.EmergencySweepResult{Success: false, Reason: errNoTokenBalance.Error()}, nil
	}
	native, err := u.chain.GetNativeBalance(ctx, wallet.Address)
	if err != nil {
		return &entities.EmergencySweepResult{Success: false, Reason: "native balance unavailable"}, nil
	}

	priority, threshold := Classify(balance, u.effective(params.thresholds))
	s := &entities.SweepSchedule{
		WalletID:       wallet.ID,
		UserID:         wallet.UserID,
		WalletAddress:  wallet.Address,
		TokenBalance:   balance,
		NativeBalance:  native,
		Priority:       priority,
		Threshold:      threshold,
		GasDistributed: native.GreaterThanOrEqual(u.cfg.GasFloor),
	}

	if !s.GasDistributed {
		available, err := u.masterBalance(ctx)
		if err != nil {
			return &entities.EmergencySweepResult{Success: false, Reason: "master balance unavailable"}, nil
		}
		if _, err := u.distributeBatch(ctx, []*entities.SweepSchedule{s}, params, &available); err != nil {
			return &entities.EmergencySweepResult{Success: false, Reason: err.Error()}, nil
		}
		if !s.GasDistributed {
			return &entities.EmergencySweepResult{Success: false, Reason: "gas top-up failed"}, nil
		}
		if err := u.sleepFn(ctx, u.cfg.SettleDelay); err != nil {
			return nil, err
		}
	}

	outcome := u.sweepBatch(ctx, []*entities.SweepSchedule{s})[0]
	if outcome.Error != "" {
		return &entities.EmergencySweepResult{Success: false, Reason: outcome.Error, TxHash: outcome.TxHash}, nil
	}
	return &entities.EmergencySweepResult{
		Success: true,
		Reason:  fmt.Sprintf("swept %s %s", outcome.Amount.String(), u.network.TokenSymbol),
		TxHash:  outcome.TxHash,
	}, nil
}

// Stats aggregates gas operations over the trailing windowDays
func (u *GasSchedulerUsecase) Stats(ctx context.Context, windowDays int) (*entities.SweepStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	ops, err := u.gasOpRepo.ListSince(ctx, u.nowFn().AddDate(0, 0, -windowDays))
	if err != nil {
		return nil, err
	}

	stats := &entities.SweepStats{
		WindowDays:      windowDays,
		TotalCostUSD:    decimal.Zero,
		TotalNativeUsed: decimal.Zero,
		SweptVolume:     decimal.Zero,
	}
	for _, op := range ops {
		stats.TotalOperations++
		switch op.Status {
		case entities.GasOperationCompleted:
			stats.Completed++
		case entities.GasOperationFailed:
			stats.Failed++
		}
		stats.TotalCostUSD = stats.TotalCostUSD.Add(op.CostUSD)
		switch op.Type {
		case entities.GasOperationDistribute:
			stats.TotalNativeUsed = stats.TotalNativeUsed.Add(op.NativeAmount)
		case entities.GasOperationSweep:
			stats.SweptVolume = stats.SweptVolume.Add(op.TokenAmount)
		}
	}
	if stats.TotalOperations > 0 {
		rate := decimal.NewFromInt(stats.Completed).Mul(hundred).Div(decimal.NewFromInt(stats.TotalOperations))
		stats.SuccessRate = rate.Round(2).InexactFloat64()
	}
	return stats, nil
}

func (u *GasSchedulerUsecase) scan(ctx context.Context, params sweepParams) ([]*entities.SweepSchedule, int, error) {
	wallets, err := u.walletRepo.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	thresholds := u.effective(params.thresholds)

	var mu sync.Mutex
	schedules := make([]*entities.SweepSchedule, 0, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.batchSize())
	for _, w := range wallets {
		w := w
		g.Go(func() error {
			s, err := u.inspect(gctx, w, thresholds)
			if err != nil {
				logger.Warn(gctx, "Skipping wallet in scan", zap.String("address", w.Address), zap.Error(err))
				return nil
			}
			if s == nil {
				return nil
			}
			mu.Lock()
			schedules = append(schedules, s)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	SortSchedule(schedules)
	return schedules, len(wallets), nil
}

func (u *GasSchedulerUsecase) inspect(ctx context.Context, w *entities.Wallet, th entities.SweepThresholds) (*entities.SweepSchedule, error) {
	balance, err := u.chain.GetTokenBalance(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(u.cfg.MinSweepUSD) {
		return nil, nil
	}
	priority, threshold := Classify(balance, th)
	if priority == entities.PriorityNone {
		return nil, nil
	}

	native, err := u.chain.GetNativeBalance(ctx, w.Address)
	if err != nil {
		return nil, err
	}
	return &entities.SweepSchedule{
		WalletID:       w.ID,
		UserID:         w.UserID,
		WalletAddress:  w.Address,
		TokenBalance:   balance,
		NativeBalance:  native,
		Priority:       priority,
		Threshold:      threshold,
		GasDistributed: native.GreaterThanOrEqual(u.cfg.GasFloor),
	}, nil
}

func (u *GasSchedulerUsecase) distributeGas(ctx context.Context, schedules []*entities.SweepSchedule, params sweepParams) (GasDistribution, error) {
	var dist GasDistribution
	needing := make([]*entities.SweepSchedule, 0, len(schedules))
	for _, s := range schedules {
		if !s.GasDistributed {
			needing = append(needing, s)
		}
	}

	if len(needing) == 0 {
		return dist, nil
	}

	// sends of earlier batches are not mined yet when later batches run, so the
	// balance is read once and drawn down locally
	available, err := u.masterBalance(ctx)
	if err != nil {
		return dist, err
	}

	for i, batch := range chunk(needing, u.batchSize()) {
		if i > 0 {
			if err := u.sleepFn(ctx, u.cfg.BatchDelay); err != nil {
				return dist, err
			}
		}
		res, err := u.distributeBatch(ctx, batch, params, &available)
		dist.Sent += res.Sent
		dist.Failed += res.Failed
		if err != nil {
			return dist, err
		}
	}
	return dist, nil
}

// distributeBatch sends gas to every wallet of batch and logs the batch as one GasOperation.
// Wallets that received gas get GasDistributed set. available is the master balance left
// after earlier batches and is reduced by what this batch sends.
func (u *GasSchedulerUsecase) distributeBatch(ctx context.Context, batch []*entities.SweepSchedule, params sweepParams, available *decimal.Decimal) (GasDistribution, error) {
	var res GasDistribution
	op := u.newOperation(entities.GasOperationDistribute, batch)
	if err := u.gasOpRepo.Create(ctx, op); err != nil {
		return res, fmt.Errorf("failed to log gas operation: %w", err)
	}
	opCtx := logger.WithComponent(ctx, "gas_distribution")

	batchTotal := params.gasAmount.Mul(decimal.NewFromInt(int64(len(batch))))
	required := batchTotal.Add(params.reserve)
	if available.LessThan(required) {
		err := fmt.Errorf("%w: have %s, need %s", domainerrors.ErrInsufficientReserve, available.String(), required.String())
		u.finishOperation(opCtx, op, []string{err.Error()}, true)
		return res, err
	}

	gasPrice, err := u.chain.GetGasPrice(ctx)
	if err != nil {
		gasPrice = nil
	}

	var errs []string
	for _, s := range batch {
		hash, err := u.master.SendNative(ctx, s.WalletAddress, params.gasAmount)
		metrics.GasSends.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			res.Failed++
			errs = append(errs, s.WalletAddress+": "+err.Error())
			logger.Warn(opCtx, "Gas top-up failed",
				zap.String("operation_id", op.ID.String()),
				zap.String("address", s.WalletAddress),
				zap.Error(err),
			)
			continue
		}
		res.Sent++
		s.GasDistributed = true
		op.TxHashes = append(op.TxHashes, hash)
	}

	sent := decimal.NewFromInt(int64(res.Sent))
	op.NativeAmount = params.gasAmount.Mul(sent)
	*available = available.Sub(op.NativeAmount)
	op.GasUsed = nativeTransferGas * uint64(res.Sent)
	op.CostUSD = u.usdCost(gasPrice, nativeTransferGas).Mul(sent)
	u.finishOperation(opCtx, op, errs, res.Sent == 0 && res.Failed > 0)
	return res, nil
}

func (u *GasSchedulerUsecase) sweepBatch(ctx context.Context, batch []*entities.SweepSchedule) []entities.SweepOutcome {
	op := u.newOperation(entities.GasOperationSweep, batch)
	logged := true
	if err := u.gasOpRepo.Create(ctx, op); err != nil {
		logged = false
		logger.Error(ctx, "Failed to log sweep operation", zap.Error(err))
	}

	outcomes := make([]entities.SweepOutcome, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.batchSize())
	for i, s := range batch {
		i, s := i, s
		g.Go(func() error {
			outcomes[i] = u.sweepWallet(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	var errs []string
	costNative := decimal.Zero
	failed := 0
	for _, o := range outcomes {
		metrics.Sweeps.WithLabelValues(resultLabel(o.Error)).Inc()
		if o.TxHash != "" {
			op.TxHashes = append(op.TxHashes, o.TxHash)
		}
		if o.Error != "" {
			failed++
			errs = append(errs, o.WalletAddress+": "+o.Error)
			continue
		}
		op.TokenAmount = op.TokenAmount.Add(o.Amount)
		op.GasUsed += o.GasUsed
		costNative = costNative.Add(o.CostNative)
	}
	op.CostUSD = costNative.Mul(u.cfg.NativeUSDPrice)

	if logged {
		u.finishOperation(ctx, op, errs, failed == len(outcomes) && failed > 0)
	}
	return outcomes
}

func (u *GasSchedulerUsecase) sweepWallet(ctx context.Context, s *entities.SweepSchedule) (out entities.SweepOutcome) {
	out = entities.SweepOutcome{
		WalletAddress: s.WalletAddress,
		Amount:        decimal.Zero,
		CostNative:    decimal.Zero,
		Credited:      decimal.Zero,
	}
	fail := func(err error) entities.SweepOutcome {
		out.Error = err.Error()
		logger.Warn(ctx, "Wallet sweep failed",
			zap.String("address", s.WalletAddress),
			zap.String("tx_hash", out.TxHash),
			zap.Error(err),
		)
		return out
	}

	wallet, err := u.walletRepo.GetByAddress(ctx, s.WalletAddress)
	if err != nil {
		return fail(err)
	}
	inFlight, err := u.depositRepo.CountInFlight(ctx, wallet.Address)
	if err != nil {
		return fail(err)
	}
	if inFlight > 0 {
		return fail(errDepositsInFlight)
	}
	incoming, err := u.incomingTransfers(ctx, wallet.Address)
	if err != nil {
		return fail(fmt.Errorf("list incoming transfers: %w", err))
	}

	balance, err := u.chain.GetTokenBalance(ctx, wallet.Address)
	if err != nil {
		return fail(err)
	}
	if !balance.IsPositive() {
		return fail(errNoTokenBalance)
	}

	master := u.master.Address()
	gasPrice, err := u.chain.GetGasPrice(ctx)
	if err != nil {
		return fail(err)
	}
	gasLimit, err := u.chain.EstimateTokenTransferGas(ctx, wallet.Address, master, balance)
	if err != nil {
		return fail(err)
	}
	need := weiCost(gasPrice, gasLimit)
	native, err := u.chain.GetNativeBalance(ctx, wallet.Address)
	if err != nil {
		return fail(err)
	}
	if native.LessThan(need) {
		return fail(fmt.Errorf("%w: holds %s, needs %s", errInsufficientGas, native.String(), need.String()))
	}

	key, err := openKey(u.keys, wallet.EncryptedPrivateKey)
	if err != nil {
		return fail(err)
	}
	hash, err := u.chain.SendToken(ctx, key, master, balance, blockchain.SendOptions{GasPrice: gasPrice, GasLimit: gasLimit})
	crypto.Zero(key)
	if err != nil {
		return fail(err)
	}
	out.TxHash = hash

	receipt, err := u.chain.WaitForReceipt(ctx, hash, u.cfg.ReceiptTimeout)
	if err != nil {
		return fail(err)
	}
	if !receipt.Success {
		return fail(blockchain.ErrTxReverted)
	}

	price := gasPrice
	if receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
		price = receipt.EffectiveGasPrice
	}
	out.Amount = balance
	out.GasUsed = receipt.GasUsed
	out.CostNative = weiCost(price, receipt.GasUsed)

	credited, err := u.settleSweep(ctx, wallet, balance, hash, incoming)
	if err != nil {
		logger.Error(ctx, "Sweep landed but crediting failed",
			zap.String("address", wallet.Address),
			zap.String("tx_hash", hash),
			zap.Error(err),
		)
		return fail(fmt.Errorf("credit sweep: %w", err))
	}
	out.Credited = credited

	logger.Info(ctx, "Wallet swept",
		zap.String("address", wallet.Address),
		zap.String("tx_hash", hash),
		zap.String("amount", balance.String()),
		zap.String("credited", credited.String()),
	)
	return out
}

// settleSweep marks the wallet's confirmed deposits swept and credits only the part of amount
// they do not already cover. Incoming transfers no deposit record knows yet are recorded as
// swept under their own hash and take that part newest first, so detection later skips them.
// What no transfer accounts for is credited against the sweep hash.
func (u *GasSchedulerUsecase) settleSweep(
	ctx context.Context,
	wallet *entities.Wallet,
	amount decimal.Decimal,
	sweepHash string,
	incoming []entities.TokenTransfer,
) (decimal.Decimal, error) {
	if err := u.ledger.EnsureAccount(ctx, wallet.UserID); err != nil {
		return decimal.Zero, err
	}

	credited := decimal.Zero
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		deposits, err := u.depositRepo.ListConfirmedUnswept(txCtx, wallet.Address)
		if err != nil {
			return err
		}
		covered := decimal.Zero
		ids := make([]uuid.UUID, 0, len(deposits))
		for _, d := range deposits {
			covered = covered.Add(d.ReceivedAmount)
			ids = append(ids, d.ID)
		}
		if err := u.depositRepo.MarkSwept(txCtx, ids, sweepHash); err != nil {
			return err
		}

		remainder := amount.Sub(covered)
		if remainder.IsNegative() {
			remainder = decimal.Zero
		}

		for i := len(incoming) - 1; i >= 0; i-- {
			tr := incoming[i]
			_, err := u.depositRepo.GetByTxHash(txCtx, tr.TxHash)
			if err == nil {
				continue
			}
			if !errors.Is(err, domainerrors.ErrNotFound) {
				return err
			}

			part := decimal.Min(tr.Amount, remainder)
			record, err := u.recordSweptTransfer(txCtx, wallet, tr, sweepHash)
			if err != nil {
				return err
			}
			if !part.IsPositive() {
				continue
			}
			id := record.ID
			_, applied, err := u.ledger.Credit(txCtx, &entities.CreditInput{
				UserID:        wallet.UserID,
				Amount:        part,
				Type:          entities.LedgerTypeDeposit,
				ReferenceHash: tr.TxHash,
				DepositID:     &id,
				Description:   fmt.Sprintf("Deposit of %s %s settled by sweep", part.String(), u.network.TokenSymbol),
			})
			if err != nil {
				return err
			}
			remainder = remainder.Sub(part)
			if applied {
				credited = credited.Add(part)
			}
		}

		_, applied, err := u.ledger.Credit(txCtx, &entities.CreditInput{
			UserID:        wallet.UserID,
			Amount:        remainder,
			Type:          entities.LedgerTypeSweep,
			ReferenceHash: sweepHash,
			Description:   fmt.Sprintf("Sweep of %s %s to treasury", amount.String(), u.network.TokenSymbol),
		})
		if err != nil {
			return err
		}
		if applied {
			credited = credited.Add(remainder)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	if credited.IsPositive() && u.notifier != nil {
		n := &entities.Notification{
			UserID:  wallet.UserID,
			Type:    entities.NotificationSweepCompleted,
			Title:   "Balance credited",
			Message: fmt.Sprintf("%s %s received on your deposit address has been credited", credited.String(), u.network.TokenSymbol),
			Data: map[string]interface{}{
				"txHash":      sweepHash,
				"amount":      credited.String(),
				"explorerUrl": u.network.TxURL(sweepHash),
			},
		}
		if err := u.notifier.Notify(ctx, n); err != nil {
			logger.Warn(ctx, "Failed to deliver notification", zap.String("user_id", wallet.UserID.String()), zap.Error(err))
		}
	}
	return credited, nil
}

// recordSweptTransfer stores a transfer that reached the wallet without being detected
func (u *GasSchedulerUsecase) recordSweptTransfer(ctx context.Context, wallet *entities.Wallet, tr entities.TokenTransfer, sweepHash string) (*entities.DepositRecord, error) {
	now := u.nowFn()
	record := &entities.DepositRecord{
		UserID:         wallet.UserID,
		WalletAddress:  wallet.Address,
		ReceivedAmount: tr.Amount,
		Status:         entities.DepositStatusSwept,
		TxHash:         null.StringFrom(strings.ToLower(tr.TxHash)),
		BlockNumber:    tr.BlockNumber,
		Confirmations:  entities.RequiredConfirmations,
		SweepTxHash:    null.StringFrom(sweepHash),
		ConfirmedAt:    &now,
	}
	if tr.From != "" {
		record.FromAddress = null.StringFrom(tr.From)
	}
	if err := u.depositRepo.Create(ctx, record); err != nil {
		return nil, err
	}
	metrics.DepositsDetected.WithLabelValues("swept").Inc()
	logger.Info(ctx, "Undetected transfer recorded at sweep",
		zap.String("tx_hash", tr.TxHash),
		zap.String("address", wallet.Address),
		zap.String("amount", tr.Amount.String()),
		zap.String("sweep_tx_hash", sweepHash),
	)
	return record, nil
}

// incomingTransfers lists token transfers into address over the lookback window, oldest first
func (u *GasSchedulerUsecase) incomingTransfers(ctx context.Context, address string) ([]entities.TokenTransfer, error) {
	current, err := u.chain.GetCurrentBlock(ctx)
	if err != nil {
		return nil, err
	}
	transfers, err := u.chain.GetTokenTransfers(ctx, address, backfillFrom(current, u.lookbackBlocks()), current)
	if err != nil {
		return nil, err
	}
	incoming := make([]entities.TokenTransfer, 0, len(transfers))
	for _, tr := range transfers {
		if strings.EqualFold(tr.To, address) && tr.Amount.IsPositive() {
			incoming = append(incoming, tr)
		}
	}
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].BlockNumber < incoming[j].BlockNumber
	})
	return incoming, nil
}

// dueTiers drops schedules whose tier was swept more recently than its interval allows
func (u *GasSchedulerUsecase) dueTiers(schedules []*entities.SweepSchedule, now time.Time) ([]*entities.SweepSchedule, int) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	due := make([]*entities.SweepSchedule, 0, len(schedules))
	deferred := 0
	for _, s := range schedules {
		last, ok := u.tierRuns[s.Priority]
		if interval := u.tierInterval(s.Priority); ok && interval > 0 && now.Sub(last) < interval {
			deferred++
			continue
		}
		due = append(due, s)
	}
	return due, deferred
}

// markTiersRun stamps the tiers that had a wallet ready to sweep, a cycle without gas retries them
func (u *GasSchedulerUsecase) markTiersRun(schedules []*entities.SweepSchedule, at time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, s := range schedules {
		if s.GasDistributed {
			u.tierRuns[s.Priority] = at
		}
	}
}

func (u *GasSchedulerUsecase) tierInterval(p entities.SweepPriority) time.Duration {
	switch p {
	case entities.PriorityMedium:
		return u.cfg.MediumTierInterval
	case entities.PriorityLow:
		return u.cfg.LowTierInterval
	}
	return 0
}

func (u *GasSchedulerUsecase) masterBalance(ctx context.Context) (decimal.Decimal, error) {
	balance, err := u.master.NativeBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("master balance: %w", err)
	}
	metrics.MasterNativeBalance.Set(balance.InexactFloat64())
	return balance, nil
}

func (u *GasSchedulerUsecase) newOperation(kind entities.GasOperationType, batch []*entities.SweepSchedule) *entities.GasOperation {
	addresses := make([]string, 0, len(batch))
	for _, s := range batch {
		addresses = append(addresses, s.WalletAddress)
	}
	return &entities.GasOperation{
		Type:            kind,
		WalletAddresses: addresses,
		TxHashes:        []string{},
		NativeAmount:    decimal.Zero,
		TokenAmount:     decimal.Zero,
		CostUSD:         decimal.Zero,
		Status:          entities.GasOperationPending,
	}
}

func (u *GasSchedulerUsecase) finishOperation(ctx context.Context, op *entities.GasOperation, errs []string, failed bool) {
	now := u.nowFn()
	op.CompletedAt = &now
	op.FailureCount = len(errs)
	op.SuccessCount = len(op.WalletAddresses) - len(errs)
	if op.SuccessCount < 0 {
		op.SuccessCount = 0
	}
	if failed {
		op.Status = entities.GasOperationFailed
		op.SuccessCount = 0
		op.FailureCount = len(op.WalletAddresses)
	} else {
		op.Status = entities.GasOperationCompleted
	}
	if len(errs) > 0 {
		op.ErrorMessage.SetValid(strings.Join(errs, "; "))
	}
	if err := u.gasOpRepo.Update(ctx, op); err != nil {
		logger.Error(ctx, "Failed to finalize gas operation", zap.String("operation_id", op.ID.String()), zap.Error(err))
	}
}

func (u *GasSchedulerUsecase) loadParams(ctx context.Context) sweepParams {
	params := sweepParams{
		thresholds: entities.SweepThresholds{
			High:   u.cfg.HighThresholdUSD,
			Medium: u.cfg.MediumThresholdUSD,
			Low:    u.cfg.LowThresholdUSD,
		},
		gasAmount: u.cfg.GasAmountPerWallet,
		reserve:   u.cfg.MinNativeReserve,
	}
	stored, err := u.cfgRepo.Get(ctx)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrNotFound) {
			logger.Warn(ctx, "Falling back to configured sweep settings", zap.Error(err))
		}
		return params
	}
	params.thresholds = stored.Thresholds()
	params.gasAmount = stored.GasAmountPerWallet
	params.reserve = stored.MinNativeReserve
	return params
}

func (u *GasSchedulerUsecase) effective(configured entities.SweepThresholds) entities.SweepThresholds {
	u.mu.RLock()
	cost := u.gasCostUSD
	u.mu.RUnlock()
	return entities.SweepThresholds{
		High:   decimal.Max(configured.High, cost.Mul(highCostMultiplier)),
		Medium: decimal.Max(configured.Medium, cost.Mul(mediumCostMultiplier)),
		Low:    decimal.Max(configured.Low, cost.Mul(lowCostMultiplier)),
	}
}

func (u *GasSchedulerUsecase) checkReserve(ctx context.Context, params sweepParams) {
	balance, err := u.master.NativeBalance(ctx)
	if err != nil {
		logger.Warn(ctx, "Master wallet balance unavailable", zap.Error(err))
		return
	}
	metrics.MasterNativeBalance.Set(balance.InexactFloat64())
	if balance.LessThan(params.reserve) {
		logger.Error(ctx, "Master wallet below minimum native reserve",
			zap.String("address", u.master.Address()),
			zap.String("balance", balance.String()),
			zap.String("reserve", params.reserve.String()),
		)
	}
}

// usdCost prices gasLimit units at gasPrice in USD. A nil price costs nothing.
func (u *GasSchedulerUsecase) usdCost(gasPrice *big.Int, gasLimit uint64) decimal.Decimal {
	return weiCost(gasPrice, gasLimit).Mul(u.cfg.NativeUSDPrice)
}

func (u *GasSchedulerUsecase) releaseLock(ctx context.Context, token string) {
	if err := u.lock.Release(context.WithoutCancel(ctx), token); err != nil {
		logger.Warn(ctx, "Failed to release sweep cycle lock", zap.Error(err))
	}
}

func (u *GasSchedulerUsecase) batchSize() int {
	if u.cfg.BatchSize <= 0 {
		return 10
	}
	return u.cfg.BatchSize
}

func (u *GasSchedulerUsecase) lockTTL() time.Duration {
	if u.cfg.CycleLockTTL <= 0 {
		return 30 * time.Minute
	}
	return u.cfg.CycleLockTTL
}

func (u *GasSchedulerUsecase) lookbackBlocks() uint64 {
	if u.cfg.TransferLookbackBlocks == 0 {
		return 5000
	}
	return u.cfg.TransferLookbackBlocks
}

func (u *GasSchedulerUsecase) transferGasLimit() uint64 {
	if u.cfg.TransferGasLimit == 0 {
		return 65000
	}
	return u.cfg.TransferGasLimit
}

// weiCost converts gasPrice * gasLimit wei into native coin units
func weiCost(gasPrice *big.Int, gasLimit uint64) decimal.Decimal {
	if gasPrice == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	return blockchain.ToDecimal(wei, blockchain.NativeDecimals)
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func resultLabel(errMsg string) string {
	if errMsg != "" {
		return "failure"
	}
	return "success"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
