package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerTransaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Type          string          `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(36,18);not null"`
	ReferenceHash string          `gorm:"type:varchar(66);not null;uniqueIndex"`
	DepositID     *uuid.UUID      `gorm:"type:uuid;index"`
	Description   string          `gorm:"type:text"`
	CreatedAt     time.Time
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

type Profile struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Balance   decimal.Decimal `gorm:"type:decimal(36,18);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Profile) TableName() string {
	return "profiles"
}
