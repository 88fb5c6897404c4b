package blockchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// TransferEventTopic is keccak256("Transfer(address,address,uint256)")
var TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	return parsed
}

// PackBalanceOf encodes balanceOf(owner)
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return parsedERC20.Pack("balanceOf", owner)
}

// PackTransfer encodes transfer(to, value)
func PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return parsedERC20.Pack("transfer", to, value)
}

// UnpackBalance decodes a balanceOf result. Empty output means the holder never touched the token.
func UnpackBalance(out []byte) (*big.Int, error) {
	if len(out) == 0 {
		return big.NewInt(0), nil
	}
	values, err := parsedERC20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balance: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok || balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// TransferLog is a decoded ERC20 Transfer event
type TransferLog struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

// DecodeTransferLog decodes a Transfer event from its topics and data
func DecodeTransferLog(topics []common.Hash, data []byte, txHash common.Hash, blockNumber uint64) (*TransferLog, error) {
	if len(topics) != 3 || topics[0] != TransferEventTopic {
		return nil, fmt.Errorf("not an erc20 transfer log")
	}
	values, err := parsedERC20.Unpack("Transfer", data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack transfer: %w", err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected transfer value type %T", values[0])
	}
	return &TransferLog{
		From:        common.BytesToAddress(topics[1].Bytes()),
		To:          common.BytesToAddress(topics[2].Bytes()),
		Value:       value,
		TxHash:      txHash,
		BlockNumber: blockNumber,
	}, nil
}
