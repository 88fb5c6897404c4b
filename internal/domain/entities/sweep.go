package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SweepPriority is the urgency tier of a wallet. Lower sweeps first.
type SweepPriority int

const (
	PriorityNone   SweepPriority = 0
	PriorityHigh   SweepPriority = 1
	PriorityMedium SweepPriority = 2
	PriorityLow    SweepPriority = 3
)

// SweepThresholds are USD balances that earn each tier
type SweepThresholds struct {
	High   decimal.Decimal `json:"high"`
	Medium decimal.Decimal `json:"medium"`
	Low    decimal.Decimal `json:"low"`
}

// SweepSchedule is the per-cycle, in-memory plan entry for one wallet
type SweepSchedule struct {
	WalletID       uuid.UUID       `json:"walletId"`
	UserID         uuid.UUID       `json:"userId"`
	WalletAddress  string          `json:"walletAddress"`
	TokenBalance   decimal.Decimal `json:"tokenBalance"`
	NativeBalance  decimal.Decimal `json:"nativeBalance"`
	Priority       SweepPriority   `json:"priority"`
	GasDistributed bool            `json:"gasDistributed"`
	Threshold      decimal.Decimal `json:"threshold"`
}

// SweepOutcome is the result of one wallet sweep
type SweepOutcome struct {
	WalletAddress string          `json:"walletAddress"`
	TxHash        string          `json:"txHash,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	GasUsed       uint64          `json:"gasUsed"`
	CostNative    decimal.Decimal `json:"costNative"`
	Credited      decimal.Decimal `json:"credited"`
	Error         string          `json:"error,omitempty"`
}

// CycleReport summarizes one scheduler cycle
type CycleReport struct {
	Scanned     int           `json:"scanned"`
	Scheduled   int           `json:"scheduled"`
	Deferred    int           `json:"deferred"`
	GasSent     int           `json:"gasSent"`
	GasFailed   int           `json:"gasFailed"`
	Swept       int           `json:"swept"`
	SweepFailed int           `json:"sweepFailed"`
	Duration    time.Duration `json:"duration"`
}

// SweepStatus is the admin view of the scheduler
type SweepStatus struct {
	Running          bool            `json:"running"`
	AutoSweepEnabled bool            `json:"autoSweepEnabled"`
	Thresholds       SweepThresholds `json:"thresholds"`
	LastCycle        *CycleReport    `json:"lastCycle,omitempty"`
	LastCycleAt      *time.Time      `json:"lastCycleAt,omitempty"`
}

// EmergencySweepInput targets a single wallet
type EmergencySweepInput struct {
	Address string `json:"address" binding:"required"`
}

// EmergencySweepResult reports the outcome of a manual single-wallet sweep
type EmergencySweepResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	TxHash  string `json:"txHash,omitempty"`
}
