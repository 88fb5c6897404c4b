package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerTransactionType represents the kind of balance mutation
type LedgerTransactionType string

const (
	LedgerTypeDeposit    LedgerTransactionType = "deposit"
	LedgerTypeWithdrawal LedgerTransactionType = "withdrawal"
	LedgerTypeSweep      LedgerTransactionType = "sweep"
	LedgerTypeAdjustment LedgerTransactionType = "adjustment"
)

// LedgerTransaction is an append-only balance mutation.
// BalanceAfter always equals BalanceBefore + Amount.
type LedgerTransaction struct {
	ID            uuid.UUID             `json:"id"`
	UserID        uuid.UUID             `json:"userId"`
	Type          LedgerTransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	BalanceBefore decimal.Decimal       `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal       `json:"balanceAfter"`
	ReferenceHash string                `json:"referenceHash"`
	DepositID     *uuid.UUID            `json:"depositId,omitempty"`
	Description   string                `json:"description"`
	CreatedAt     time.Time             `json:"createdAt"`
}

// Profile holds the running balance of a user
type Profile struct {
	UserID    uuid.UUID       `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreditInput describes one ledger credit
type CreditInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Type          LedgerTransactionType
	ReferenceHash string
	DepositID     *uuid.UUID
	Description   string
}

// BalanceView is the read model for a user's balance page
type BalanceView struct {
	UserID       uuid.UUID            `json:"userId"`
	Balance      decimal.Decimal      `json:"balance"`
	Transactions []*LedgerTransaction `json:"transactions"`
}
