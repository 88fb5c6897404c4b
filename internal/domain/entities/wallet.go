package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Wallet is the custodial deposit wallet issued to a user. One per user.
type Wallet struct {
	ID                  uuid.UUID   `json:"id"`
	UserID              uuid.UUID   `json:"userId"`
	Address             string      `json:"address"`
	EncryptedPrivateKey string      `json:"-"`
	EncryptedMnemonic   null.String `json:"-"`
	Network             string      `json:"network"`
	IsMonitored         bool        `json:"isMonitored"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// WalletData is the result of a get-or-create call
type WalletData struct {
	Wallet *Wallet `json:"wallet"`
	IsNew  bool    `json:"isNew"`
}

// GenerateWalletInput is the body of a wallet issuance request
type GenerateWalletInput struct {
	UserID string `json:"userId" binding:"required"`
}
