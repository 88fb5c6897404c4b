package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCSource is one JSON-RPC endpoint resolved lazily through the client factory
type RPCSource struct {
	name    string
	url     string
	factory *ClientFactory
}

// NewRPCSource creates a source for url. name labels it in logs and metrics.
func NewRPCSource(name, url string, factory *ClientFactory) *RPCSource {
	return &RPCSource{name: name, url: url, factory: factory}
}

func (s *RPCSource) Name() string {
	return s.name
}

func (s *RPCSource) client() (*EVMClient, error) {
	return s.factory.GetEVMClient(s.url)
}

func (s *RPCSource) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return c.GetBalance(ctx, address)
}

func (s *RPCSource) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return c.GetTokenBalance(ctx, token, owner)
}

func (s *RPCSource) TokenTransfers(ctx context.Context, token, recipient common.Address, fromBlock, toBlock uint64) ([]TransferLog, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return c.FilterTransfers(ctx, token, recipient, fromBlock, toBlock)
}

func (s *RPCSource) Transaction(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return c.GetTransaction(ctx, hash)
}

func (s *RPCSource) Receipt(ctx context.Context, hash common.Hash) (*ReceiptInfo, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	receipt, err := c.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	return receiptInfo(receipt), nil
}

func (s *RPCSource) BlockNumber(ctx context.Context) (uint64, error) {
	c, err := s.client()
	if err != nil {
		return 0, err
	}
	return c.GetBlockNumber(ctx)
}

func (s *RPCSource) GasPrice(ctx context.Context) (*big.Int, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return c.SuggestGasPrice(ctx)
}

func (s *RPCSource) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c, err := s.client()
	if err != nil {
		return 0, err
	}
	return c.EstimateGas(ctx, msg)
}

func (s *RPCSource) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	c, err := s.client()
	if err != nil {
		return 0, err
	}
	return c.PendingNonceAt(ctx, account)
}

func (s *RPCSource) Send(ctx context.Context, tx *types.Transaction) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	return c.SendTransaction(ctx, tx)
}

func receiptInfo(r *types.Receipt) *ReceiptInfo {
	info := &ReceiptInfo{
		TxHash:  r.TxHash.Hex(),
		Success: r.Status == types.ReceiptStatusSuccessful,
		GasUsed: r.GasUsed,
	}
	if r.BlockNumber != nil {
		info.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		info.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	return info
}
