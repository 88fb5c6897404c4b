package entities

import "github.com/shopspring/decimal"

// TokenTransfer is a token Transfer event as seen by a chain data source
type TokenTransfer struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      string          `json:"hash"`
	BlockNumber uint64          `json:"blockNumber"`
}
