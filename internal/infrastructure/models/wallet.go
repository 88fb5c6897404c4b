package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

type Wallet struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex"` // one wallet per user
	Address             string      `gorm:"type:varchar(42);not null;uniqueIndex"`
	EncryptedPrivateKey string      `gorm:"type:text;not null"`
	EncryptedMnemonic   null.String `gorm:"type:text"`
	Network             string      `gorm:"type:varchar(32);not null"`
	IsMonitored         bool        `gorm:"default:false"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Wallet) TableName() string {
	return "wallets"
}
