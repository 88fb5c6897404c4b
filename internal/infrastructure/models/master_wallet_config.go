package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MasterWalletConfig struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Address             string          `gorm:"type:varchar(42);not null"`
	EncryptedPrivateKey string          `gorm:"type:text;not null"`
	MinNativeReserve    decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	GasAmountPerWallet  decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	HighThresholdUSD    decimal.Decimal `gorm:"column:high_threshold_usd;type:decimal(36,18);not null"`
	MediumThresholdUSD  decimal.Decimal `gorm:"column:medium_threshold_usd;type:decimal(36,18);not null"`
	LowThresholdUSD     decimal.Decimal `gorm:"column:low_threshold_usd;type:decimal(36,18);not null"`
	AutoSweepEnabled    bool            `gorm:"default:false"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (MasterWalletConfig) TableName() string {
	return "master_wallet_configs"
}
