package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MasterWalletConfig is the singleton treasury configuration
type MasterWalletConfig struct {
	ID                  uuid.UUID       `json:"id"`
	Address             string          `json:"address"`
	EncryptedPrivateKey string          `json:"-"`
	MinNativeReserve    decimal.Decimal `json:"minNativeReserve"`
	GasAmountPerWallet  decimal.Decimal `json:"gasAmountPerWallet"`
	HighThresholdUSD    decimal.Decimal `json:"highThresholdUsd"`
	MediumThresholdUSD  decimal.Decimal `json:"mediumThresholdUsd"`
	LowThresholdUSD     decimal.Decimal `json:"lowThresholdUsd"`
	AutoSweepEnabled    bool            `json:"autoSweepEnabled"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Thresholds returns the configured sweep thresholds
func (c *MasterWalletConfig) Thresholds() SweepThresholds {
	return SweepThresholds{
		High:   c.HighThresholdUSD,
		Medium: c.MediumThresholdUSD,
		Low:    c.LowThresholdUSD,
	}
}

// UpdateMasterWalletConfigInput holds admin changes; nil fields stay untouched
type UpdateMasterWalletConfigInput struct {
	MinNativeReserve   *string `json:"minNativeReserve"`
	GasAmountPerWallet *string `json:"gasAmountPerWallet"`
	HighThresholdUSD   *string `json:"highThresholdUsd"`
	MediumThresholdUSD *string `json:"mediumThresholdUsd"`
	LowThresholdUSD    *string `json:"lowThresholdUsd"`
}
