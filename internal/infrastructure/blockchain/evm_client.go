package blockchain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	dialEVMClient    = ethclient.Dial
	getClientChainID = func(client *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}
)

// EVMClient wraps a single JSON-RPC endpoint
type EVMClient struct {
	client  *ethclient.Client
	chainID *big.Int
	rpcURL  string
	// testCallView allows deterministic unit tests without network sockets.
	testCallView func(ctx context.Context, to string, data []byte) ([]byte, error)
}

// rpcTransaction carries the fields of eth_getTransactionByHash that types.Transaction drops
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	Input       hexutil.Bytes   `json:"input"`
}

func (t *rpcTransaction) info() *TxInfo {
	info := &TxInfo{
		Hash:  t.Hash.Hex(),
		From:  t.From.Hex(),
		Value: big.NewInt(0),
		Input: t.Input,
	}
	if t.To != nil {
		info.To = t.To.Hex()
	}
	if t.Value != nil {
		info.Value = t.Value.ToInt()
	}
	if t.BlockNumber == nil {
		info.Pending = true
	} else {
		info.BlockNumber = t.BlockNumber.ToInt().Uint64()
	}
	return info
}

// NewEVMClient dials rpcURL and reads its chain id
func NewEVMClient(rpcURL string) (*EVMClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	return &EVMClient{
		client:  client,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

// NewEVMClientWithCallView creates an EVM client that uses an injected CallView implementation.
// This is intended for unit tests where RPC sockets are unavailable.
func NewEVMClientWithCallView(chainID *big.Int, callViewFn func(ctx context.Context, to string, data []byte) ([]byte, error)) *EVMClient {
	if chainID == nil {
		chainID = big.NewInt(56)
	}
	return &EVMClient{
		chainID:      chainID,
		testCallView: callViewFn,
	}
}

// ChainID returns the chain ID reported by the endpoint
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// URL returns the endpoint this client talks to
func (c *EVMClient) URL() string {
	return c.rpcURL
}

// GetBalance gets the native coin balance of an address in wei
func (c *EVMClient) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.client.BalanceAt(ctx, address, nil)
}

// GetTokenBalance gets the ERC20 token balance of an address in base units
func (c *EVMClient) GetTokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := c.CallView(ctx, token.Hex(), data)
	if err != nil {
		return nil, err
	}
	return UnpackBalance(out)
}

// GetTransaction returns the transaction with its sender and inclusion block.
// A missing transaction yields ErrTxNotFound.
func (c *EVMClient) GetTransaction(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	var raw *rpcTransaction
	if err := c.client.Client().CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrTxNotFound
	}
	return raw.info(), nil
}

// GetTransactionReceipt gets a transaction receipt. A missing receipt yields ErrTxNotFound.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTxNotFound
	}
	return receipt, err
}

// GetBlockNumber gets the latest block number
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

// EstimateGas estimates gas for a transaction
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.client.EstimateGas(ctx, msg)
}

// PendingNonceAt returns the next nonce for an account including pending transactions
func (c *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.client.PendingNonceAt(ctx, account)
}

// SendTransaction broadcasts a signed transaction
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.client.SendTransaction(ctx, tx)
}

// FilterTransfers returns ERC20 Transfer events of token sent to recipient within [fromBlock, toBlock]
func (c *EVMClient) FilterTransfers(ctx context.Context, token, recipient common.Address, fromBlock, toBlock uint64) ([]TransferLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{token},
		Topics: [][]common.Hash{
			{TransferEventTopic},
			nil,
			{common.BytesToHash(recipient.Bytes())},
		},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	transfers := make([]TransferLog, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		decoded, err := DecodeTransferLog(lg.Topics, lg.Data, lg.TxHash, lg.BlockNumber)
		if err != nil {
			continue
		}
		transfers = append(transfers, *decoded)
	}
	return transfers, nil
}

// CallView executes a read-only contract call
func (c *EVMClient) CallView(ctx context.Context, to string, data []byte) ([]byte, error) {
	if c.testCallView != nil {
		return c.testCallView(ctx, to, data)
	}
	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}
	return c.client.CallContract(ctx, msg, nil)
}

// Close closes the client connection
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
