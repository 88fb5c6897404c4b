package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// GasOperationType represents the kind of batch
type GasOperationType string

const (
	GasOperationDistribute GasOperationType = "distribute"
	GasOperationSweep      GasOperationType = "sweep"
	GasOperationBatch      GasOperationType = "batch"
)

// GasOperationStatus represents batch status
type GasOperationStatus string

const (
	GasOperationPending   GasOperationStatus = "pending"
	GasOperationCompleted GasOperationStatus = "completed"
	GasOperationFailed    GasOperationStatus = "failed"
)

// GasOperation logs one distribute or sweep batch
type GasOperation struct {
	ID              uuid.UUID          `json:"id"`
	Type            GasOperationType   `json:"type"`
	WalletAddresses []string           `json:"walletAddresses"`
	TxHashes        []string           `json:"txHashes"`
	NativeAmount    decimal.Decimal    `json:"nativeAmount"`
	TokenAmount     decimal.Decimal    `json:"tokenAmount"`
	GasUsed         uint64             `json:"gasUsed"`
	CostUSD         decimal.Decimal    `json:"costUsd"`
	SuccessCount    int                `json:"successCount"`
	FailureCount    int                `json:"failureCount"`
	Status          GasOperationStatus `json:"status"`
	ErrorMessage    null.String        `json:"errorMessage,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

// SweepStats aggregates gas operations over a trailing window
type SweepStats struct {
	WindowDays      int             `json:"windowDays"`
	TotalOperations int64           `json:"totalOperations"`
	Completed       int64           `json:"completed"`
	Failed          int64           `json:"failed"`
	TotalCostUSD    decimal.Decimal `json:"totalCostUsd"`
	TotalNativeUsed decimal.Decimal `json:"totalNativeUsed"`
	SweptVolume     decimal.Decimal `json:"sweptVolume"`
	SuccessRate     float64         `json:"successRate"`
}
