package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type GasOperation struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OperationType   string          `gorm:"type:varchar(20);not null;index"`
	WalletAddresses pq.StringArray  `gorm:"type:text[]"`
	TxHashes        pq.StringArray  `gorm:"type:text[]"`
	NativeAmount    decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	TokenAmount     decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	GasUsed         int64
	CostUSD         decimal.Decimal `gorm:"column:cost_usd;type:decimal(36,18);not null;default:0"`
	SuccessCount    int
	FailureCount    int
	Status          string      `gorm:"type:varchar(20);not null;index"`
	ErrorMessage    null.String `gorm:"type:text"`
	CreatedAt       time.Time   `gorm:"index"`
	CompletedAt     *time.Time
}

func (GasOperation) TableName() string {
	return "gas_operations"
}
