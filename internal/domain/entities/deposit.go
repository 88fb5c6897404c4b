package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// DepositStatus represents deposit status
type DepositStatus string

const (
	DepositStatusPending     DepositStatus = "pending"
	DepositStatusConfirmed   DepositStatus = "confirmed"
	DepositStatusFailed      DepositStatus = "failed"
	DepositStatusSwept       DepositStatus = "swept"
	DepositStatusSweepFailed DepositStatus = "sweep_failed"
)

// RequiredConfirmations is the platform-wide finality depth
const RequiredConfirmations uint64 = 12

// DepositRecord tracks one detected or expected deposit
type DepositRecord struct {
	ID             uuid.UUID           `json:"id"`
	UserID         uuid.UUID           `json:"userId"`
	WalletAddress  string              `json:"walletAddress"`
	ExpectedAmount decimal.NullDecimal `json:"expectedAmount"`
	ReceivedAmount decimal.Decimal     `json:"receivedAmount"`
	Status         DepositStatus       `json:"status"`
	TxHash         null.String         `json:"txHash"`
	FromAddress    null.String         `json:"fromAddress,omitempty"`
	BlockNumber    uint64              `json:"blockNumber"`
	Confirmations  uint64              `json:"confirmations"`
	SweepTxHash    null.String         `json:"sweepTxHash,omitempty"`
	GasTxHash      null.String         `json:"gasTxHash,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
	ConfirmedAt    *time.Time          `json:"confirmedAt,omitempty"`
}

// IsTerminal reports whether the record will no longer change status on its own
func (d *DepositRecord) IsTerminal() bool {
	switch d.Status {
	case DepositStatusConfirmed, DepositStatusSwept, DepositStatusFailed, DepositStatusSweepFailed:
		return true
	}
	return false
}

// IsCredited reports whether the ledger already holds this deposit
func (d *DepositRecord) IsCredited() bool {
	return d.Status == DepositStatusConfirmed || d.Status == DepositStatusSwept || d.Status == DepositStatusSweepFailed
}

// MonitorDepositInput starts monitoring for an expected deposit
type MonitorDepositInput struct {
	UserID         string `json:"userId" binding:"required"`
	ExpectedAmount string `json:"expectedAmount" binding:"required"`
}

// CheckDepositInput asks for an on-demand scan of the user's address
type CheckDepositInput struct {
	UserID string `json:"userId" binding:"required"`
}

// DepositCheckItem is one transfer found during a manual check
type DepositCheckItem struct {
	TxHash        string          `json:"txHash"`
	Amount        decimal.Decimal `json:"amount"`
	BlockNumber   uint64          `json:"blockNumber"`
	Confirmations uint64          `json:"confirmations"`
	Status        DepositStatus   `json:"status"`
	Credited      bool            `json:"credited"`
	ExplorerURL   string          `json:"explorerUrl,omitempty"`
}

// DepositCheckResult summarizes a manual check
type DepositCheckResult struct {
	Address      string             `json:"address"`
	Found        bool               `json:"found"`
	Transactions []DepositCheckItem `json:"transactions"`
	Message      string             `json:"message"`
}
