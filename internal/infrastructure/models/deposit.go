package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type Deposit struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	WalletAddress  string              `gorm:"type:varchar(42);not null;index"`
	ExpectedAmount decimal.NullDecimal `gorm:"type:decimal(36,18)"`
	ReceivedAmount decimal.Decimal     `gorm:"type:decimal(36,18);not null;default:0"`
	Status         string              `gorm:"type:varchar(20);not null;index"`
	TxHash         null.String         `gorm:"type:varchar(66);uniqueIndex"` // unique once set
	FromAddress    null.String         `gorm:"type:varchar(42)"`
	BlockNumber    int64
	Confirmations  int64
	SweepTxHash    null.String `gorm:"type:varchar(66)"`
	GasTxHash      null.String `gorm:"type:varchar(66)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
}

func (Deposit) TableName() string {
	return "deposits"
}
