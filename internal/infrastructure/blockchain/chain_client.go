package blockchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/metrics"
)

var (
	// ErrTxNotFound means every source answered and none knows the hash
	ErrTxNotFound  = errors.New("transaction not found")
	ErrTxReverted  = errors.New("transaction reverted")
	ErrInvalidKey  = errors.New("invalid signing key")
	ErrNoEndpoints = errors.New("no rpc endpoints configured")
)

const defaultReceiptPoll = 3 * time.Second

// TxInfo is a transaction as reported by a chain source
type TxInfo struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	Input       []byte
	BlockNumber uint64
	Pending     bool
}

// ReceiptInfo is the outcome of a mined transaction
type ReceiptInfo struct {
	TxHash            string
	BlockNumber       uint64
	Success           bool
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// SendOptions overrides the values a send would otherwise fetch from the chain
type SendOptions struct {
	Nonce    *uint64
	GasPrice *big.Int
	GasLimit uint64
}

type named interface {
	Name() string
}

type chainSource interface {
	named
	NativeBalance(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenTransfers(ctx context.Context, token, recipient common.Address, fromBlock, toBlock uint64) ([]TransferLog, error)
	Transaction(ctx context.Context, hash common.Hash) (*TxInfo, error)
	Receipt(ctx context.Context, hash common.Hash) (*ReceiptInfo, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
}

type chainWriter interface {
	named
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	Send(ctx context.Context, tx *types.Transaction) error
}

// ChainClient reads through the indexer API first, then each RPC endpoint in order.
// Writes go to the RPC endpoints only.
type ChainClient struct {
	sources       []chainSource
	writers       []chainWriter
	token         common.Address
	tokenDecimals int32
	chainID       *big.Int
	receiptPoll   time.Duration
}

// NewChainClient builds the provider chain explorer -> rpc-primary -> rpc-fallback-N
func NewChainClient(cfg config.BlockchainConfig, factory *ClientFactory) (*ChainClient, error) {
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("%w: token contract %q", domainerrors.ErrInvalidAddress, cfg.TokenContract)
	}

	var sources []chainSource
	if cfg.ExplorerAPIURL != "" && cfg.ExplorerAPIKey != "" {
		sources = append(sources, NewExplorerClient(cfg.ExplorerAPIURL, cfg.ExplorerAPIKey, cfg.RequestTimeout))
	}

	var writers []chainWriter
	for i, endpoint := range cfg.RPCEndpoints() {
		name := "rpc-primary"
		if i > 0 {
			name = fmt.Sprintf("rpc-fallback-%d", i)
		}
		src := NewRPCSource(name, endpoint, factory)
		sources = append(sources, src)
		writers = append(writers, src)
	}
	if len(writers) == 0 {
		return nil, ErrNoEndpoints
	}

	return newChainClient(sources, writers, common.HexToAddress(cfg.TokenContract), cfg.TokenDecimals, big.NewInt(cfg.ChainID)), nil
}

func newChainClient(sources []chainSource, writers []chainWriter, token common.Address, decimals int32, chainID *big.Int) *ChainClient {
	return &ChainClient{
		sources:       sources,
		writers:       writers,
		token:         token,
		tokenDecimals: decimals,
		chainID:       chainID,
		receiptPoll:   defaultReceiptPoll,
	}
}

// TokenDecimals returns the precision of the custody token
func (c *ChainClient) TokenDecimals() int32 {
	return c.tokenDecimals
}

// TokenAddress returns the custody token contract
func (c *ChainClient) TokenAddress() string {
	return c.token.Hex()
}

// GetNativeBalance returns the native coin balance in whole units
func (c *ChainClient) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := firstSuccess(ctx, c.sources, "native_balance", func(s chainSource) (*big.Int, error) {
		return s.NativeBalance(ctx, addr)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(wei, NativeDecimals), nil
}

// GetTokenBalance returns the custody token balance in whole units
func (c *ChainClient) GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := firstSuccess(ctx, c.sources, "token_balance", func(s chainSource) (*big.Int, error) {
		return s.TokenBalance(ctx, c.token, addr)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return ToDecimal(raw, c.tokenDecimals), nil
}

// GetTransaction looks up a transaction by hash
func (c *ChainClient) GetTransaction(ctx context.Context, txHash string) (*TxInfo, error) {
	hash, err := parseHash(txHash)
	if err != nil {
		return nil, err
	}
	return firstSuccess(ctx, c.sources, "transaction", func(s chainSource) (*TxInfo, error) {
		return s.Transaction(ctx, hash)
	})
}

// GetReceipt looks up a transaction receipt by hash
func (c *ChainClient) GetReceipt(ctx context.Context, txHash string) (*ReceiptInfo, error) {
	hash, err := parseHash(txHash)
	if err != nil {
		return nil, err
	}
	return firstSuccess(ctx, c.sources, "receipt", func(s chainSource) (*ReceiptInfo, error) {
		return s.Receipt(ctx, hash)
	})
}

// GetCurrentBlock returns the latest block height
func (c *ChainClient) GetCurrentBlock(ctx context.Context) (uint64, error) {
	return firstSuccess(ctx, c.sources, "block_number", func(s chainSource) (uint64, error) {
		return s.BlockNumber(ctx)
	})
}

// GetGasPrice returns the current gas price in wei
func (c *ChainClient) GetGasPrice(ctx context.Context) (*big.Int, error) {
	return firstSuccess(ctx, c.sources, "gas_price", func(s chainSource) (*big.Int, error) {
		return s.GasPrice(ctx)
	})
}

// Confirmations counts the inclusion block itself as the first confirmation
func Confirmations(currentBlock, txBlock uint64) uint64 {
	if txBlock == 0 || currentBlock < txBlock {
		return 0
	}
	return currentBlock - txBlock + 1
}

// IsConfirmed reports whether txHash has at least required confirmations.
// A reverted transaction is never confirmed and yields ErrTxReverted.
func (c *ChainClient) IsConfirmed(ctx context.Context, txHash string, required uint64) (bool, uint64, error) {
	receipt, err := c.GetReceipt(ctx, txHash)
	if err != nil {
		return false, 0, err
	}
	if !receipt.Success {
		return false, 0, ErrTxReverted
	}
	current, err := c.GetCurrentBlock(ctx)
	if err != nil {
		return false, 0, err
	}
	count := Confirmations(current, receipt.BlockNumber)
	return count >= required, count, nil
}

// GetTokenTransfers lists custody token transfers into address within [fromBlock, toBlock]
func (c *ChainClient) GetTokenTransfers(ctx context.Context, address string, fromBlock, toBlock uint64) ([]entities.TokenTransfer, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	if fromBlock > toBlock {
		return nil, nil
	}
	logs, err := firstSuccess(ctx, c.sources, "token_transfers", func(s chainSource) ([]TransferLog, error) {
		return s.TokenTransfers(ctx, c.token, addr, fromBlock, toBlock)
	})
	if err != nil {
		return nil, err
	}

	transfers := make([]entities.TokenTransfer, 0, len(logs))
	for _, lg := range logs {
		transfers = append(transfers, entities.TokenTransfer{
			From:        lg.From.Hex(),
			To:          lg.To.Hex(),
			Amount:      ToDecimal(lg.Value, c.tokenDecimals),
			TxHash:      strings.ToLower(lg.TxHash.Hex()),
			BlockNumber: lg.BlockNumber,
		})
	}
	return transfers, nil
}

// PendingNonce returns the next nonce for address
func (c *ChainClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	return firstSuccess(ctx, c.writers, "pending_nonce", func(w chainWriter) (uint64, error) {
		return w.PendingNonce(ctx, addr)
	})
}

// EstimateTokenTransferGas estimates the gas of transfer(to, amount) sent by from
func (c *ChainClient) EstimateTokenTransferGas(ctx context.Context, from, to string, amount decimal.Decimal) (uint64, error) {
	sender, err := parseAddress(from)
	if err != nil {
		return 0, err
	}
	recipient, err := parseAddress(to)
	if err != nil {
		return 0, err
	}
	data, err := PackTransfer(recipient, ToBaseUnits(amount, c.tokenDecimals))
	if err != nil {
		return 0, err
	}
	msg := ethereum.CallMsg{From: sender, To: &c.token, Data: data}
	return firstSuccess(ctx, c.writers, "estimate_gas", func(w chainWriter) (uint64, error) {
		return w.EstimateGas(ctx, msg)
	})
}

// SendNative transfers amount of the native coin to to, signed by privateKey
func (c *ChainClient) SendNative(ctx context.Context, privateKey []byte, to string, amount decimal.Decimal, opts SendOptions) (string, error) {
	recipient, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", domainerrors.ErrInvalidAmount
	}
	return c.send(ctx, privateKey, recipient, ToBaseUnits(amount, NativeDecimals), nil, opts)
}

// SendToken transfers amount of the custody token to to, signed by privateKey
func (c *ChainClient) SendToken(ctx context.Context, privateKey []byte, to string, amount decimal.Decimal, opts SendOptions) (string, error) {
	recipient, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", domainerrors.ErrInvalidAmount
	}
	data, err := PackTransfer(recipient, ToBaseUnits(amount, c.tokenDecimals))
	if err != nil {
		return "", err
	}
	return c.send(ctx, privateKey, c.token, big.NewInt(0), data, opts)
}

// WaitForReceipt polls until the receipt is available or timeout elapses.
// A reverted receipt is returned together with ErrTxReverted.
func (c *ChainClient) WaitForReceipt(ctx context.Context, txHash string, timeout time.Duration) (*ReceiptInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.GetReceipt(ctx, txHash)
		if err == nil {
			if !receipt.Success {
				return receipt, ErrTxReverted
			}
			return receipt, nil
		}
		if !errors.Is(err, ErrTxNotFound) && !errors.Is(err, domainerrors.ErrProviderExhausted) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt for %s not available: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *ChainClient) send(ctx context.Context, privateKey []byte, to common.Address, value *big.Int, data []byte, opts SendOptions) (string, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", ErrInvalidKey
	}
	defer wipeKey(key)
	from := crypto.PubkeyToAddress(key.PublicKey)

	var nonce uint64
	if opts.Nonce != nil {
		nonce = *opts.Nonce
	} else {
		nonce, err = firstSuccess(ctx, c.writers, "pending_nonce", func(w chainWriter) (uint64, error) {
			return w.PendingNonce(ctx, from)
		})
		if err != nil {
			return "", err
		}
	}

	gasPrice := opts.GasPrice
	if gasPrice == nil {
		if gasPrice, err = c.GetGasPrice(ctx); err != nil {
			return "", err
		}
	}

	gasLimit := opts.GasLimit
	if gasLimit == 0 {
		msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}
		gasLimit, err = firstSuccess(ctx, c.writers, "estimate_gas", func(w chainWriter) (uint64, error) {
			return w.EstimateGas(ctx, msg)
		})
		if err != nil {
			return "", err
		}
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	_, err = firstSuccess(ctx, c.writers, "send_transaction", func(w chainWriter) (struct{}, error) {
		if err := w.Send(ctx, signed); err != nil && !isAlreadyKnown(err) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return "", err
	}
	return strings.ToLower(signed.Hash().Hex()), nil
}

// firstSuccess tries sources in order and returns the first answer.
// A source that does not know a hash may just be lagging, so the next one is asked too.
// ErrTxNotFound is returned only when every source answered not found.
func firstSuccess[S named, T any](ctx context.Context, sources []S, operation string, call func(S) (T, error)) (T, error) {
	var zero T
	var lastErr error
	notFound := false
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := call(src)
		metrics.ObserveProvider(src.Name(), operation, err)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrTxNotFound) {
			notFound = true
			logger.Debug(ctx, "Chain source does not know the hash",
				zap.String("source", src.Name()),
				zap.String("operation", operation),
			)
			continue
		}
		lastErr = err
		logger.Warn(ctx, "Chain source failed",
			zap.String("source", src.Name()),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}

	if notFound && lastErr == nil {
		return zero, ErrTxNotFound
	}
	metrics.ProviderExhausted.WithLabelValues(operation).Inc()
	if lastErr == nil {
		lastErr = ErrNoEndpoints
	}
	return zero, fmt.Errorf("%s: %w: %w", operation, domainerrors.ErrProviderExhausted, lastErr)
}

func parseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", domainerrors.ErrInvalidAddress, address)
	}
	return common.HexToAddress(address), nil
}

func parseHash(txHash string) (common.Hash, error) {
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txHash)), "0x")
	if _, err := hex.DecodeString(raw); err != nil || len(raw) != 64 {
		return common.Hash{}, fmt.Errorf("%w: invalid transaction hash %q", domainerrors.ErrInvalidInput, txHash)
	}
	return common.HexToHash(raw), nil
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func wipeKey(key *ecdsa.PrivateKey) {
	if key != nil && key.D != nil {
		key.D.SetInt64(0)
	}
}
