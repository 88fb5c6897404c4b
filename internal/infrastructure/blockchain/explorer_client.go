package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const explorerNoTransactions = "No transactions found"

// explorerEnvelope covers both the account module shape {status, message, result}
// and the proxy module shape {jsonrpc, id, result|error}
type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type explorerTokenTx struct {
	BlockNumber     string `json:"blockNumber"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
}

type explorerReceipt struct {
	TransactionHash   common.Hash  `json:"transactionHash"`
	BlockNumber       *hexutil.Big `json:"blockNumber"`
	Status            *hexutil.Big `json:"status"`
	GasUsed           *hexutil.Big `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big `json:"effectiveGasPrice"`
}

// ExplorerClient reads chain data from a BscScan-compatible indexer API
type ExplorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewExplorerClient creates an indexer API client
func NewExplorerClient(baseURL, apiKey string, timeout time.Duration) *ExplorerClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ExplorerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *ExplorerClient) Name() string {
	return "explorer"
}

func (e *ExplorerClient) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	var raw string
	if err := e.account(ctx, "balance", url.Values{"address": {address.Hex()}, "tag": {"latest"}}, &raw); err != nil {
		return nil, err
	}
	return parseDecimalBig(raw)
}

func (e *ExplorerClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	params := url.Values{
		"contractaddress": {token.Hex()},
		"address":         {owner.Hex()},
		"tag":             {"latest"},
	}
	var raw string
	if err := e.account(ctx, "tokenbalance", params, &raw); err != nil {
		return nil, err
	}
	return parseDecimalBig(raw)
}

func (e *ExplorerClient) TokenTransfers(ctx context.Context, token, recipient common.Address, fromBlock, toBlock uint64) ([]TransferLog, error) {
	params := url.Values{
		"contractaddress": {token.Hex()},
		"address":         {recipient.Hex()},
		"startblock":      {strconv.FormatUint(fromBlock, 10)},
		"endblock":        {strconv.FormatUint(toBlock, 10)},
		"sort":            {"asc"},
	}
	var rows []explorerTokenTx
	if err := e.account(ctx, "tokentx", params, &rows); err != nil {
		return nil, err
	}

	transfers := make([]TransferLog, 0, len(rows))
	for _, row := range rows {
		if !strings.EqualFold(row.To, recipient.Hex()) {
			continue
		}
		if row.ContractAddress != "" && !strings.EqualFold(row.ContractAddress, token.Hex()) {
			continue
		}
		value, err := parseDecimalBig(row.Value)
		if err != nil {
			return nil, err
		}
		block, err := strconv.ParseUint(row.BlockNumber, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block number %q: %w", row.BlockNumber, err)
		}
		transfers = append(transfers, TransferLog{
			From:        common.HexToAddress(row.From),
			To:          common.HexToAddress(row.To),
			Value:       value,
			TxHash:      common.HexToHash(row.Hash),
			BlockNumber: block,
		})
	}
	return transfers, nil
}

func (e *ExplorerClient) Transaction(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	var raw *rpcTransaction
	if err := e.proxy(ctx, "eth_getTransactionByHash", url.Values{"txhash": {hash.Hex()}}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrTxNotFound
	}
	return raw.info(), nil
}

func (e *ExplorerClient) Receipt(ctx context.Context, hash common.Hash) (*ReceiptInfo, error) {
	var raw *explorerReceipt
	if err := e.proxy(ctx, "eth_getTransactionReceipt", url.Values{"txhash": {hash.Hex()}}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.BlockNumber == nil {
		return nil, ErrTxNotFound
	}

	info := &ReceiptInfo{
		TxHash:      raw.TransactionHash.Hex(),
		BlockNumber: raw.BlockNumber.ToInt().Uint64(),
	}
	if raw.Status != nil {
		info.Success = raw.Status.ToInt().Sign() > 0
	}
	if raw.GasUsed != nil {
		info.GasUsed = raw.GasUsed.ToInt().Uint64()
	}
	if raw.EffectiveGasPrice != nil {
		info.EffectiveGasPrice = raw.EffectiveGasPrice.ToInt()
	}
	return info, nil
}

func (e *ExplorerClient) BlockNumber(ctx context.Context) (uint64, error) {
	var raw hexutil.Uint64
	if err := e.proxy(ctx, "eth_blockNumber", nil, &raw); err != nil {
		return 0, err
	}
	return uint64(raw), nil
}

func (e *ExplorerClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var raw hexutil.Big
	if err := e.proxy(ctx, "eth_gasPrice", nil, &raw); err != nil {
		return nil, err
	}
	return raw.ToInt(), nil
}

func (e *ExplorerClient) account(ctx context.Context, action string, params url.Values, out interface{}) error {
	return e.call(ctx, "account", action, params, out)
}

func (e *ExplorerClient) proxy(ctx context.Context, action string, params url.Values, out interface{}) error {
	return e.call(ctx, "proxy", action, params, out)
}

func (e *ExplorerClient) call(ctx context.Context, module, action string, params url.Values, out interface{}) error {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("module", module)
	query.Set("action", action)
	query.Set("apikey", e.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build explorer request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("explorer %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer %s returned HTTP %d", action, resp.StatusCode)
	}

	var env explorerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("invalid explorer response: %w", err)
	}
	if env.Error != nil {
		return fmt.Errorf("explorer %s error %d: %s", action, env.Error.Code, env.Error.Message)
	}
	if env.Status == "0" {
		if strings.HasPrefix(env.Message, explorerNoTransactions) {
			return json.Unmarshal([]byte("[]"), out)
		}
		var detail string
		_ = json.Unmarshal(env.Result, &detail)
		return fmt.Errorf("explorer %s failed: %s %s", action, env.Message, detail)
	}
	if len(env.Result) == 0 {
		return fmt.Errorf("explorer %s returned no result", action)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("invalid explorer %s result: %w", action, err)
	}
	return nil
}

func parseDecimalBig(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", raw)
	}
	return value, nil
}
