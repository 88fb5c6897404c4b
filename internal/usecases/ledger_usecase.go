package usecases

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/domain/repositories"
)

const defaultLedgerHistory = 20

// LedgerUsecase owns user balances. Every balance change is an append-only ledger row.
type LedgerUsecase struct {
	uow         repositories.UnitOfWork
	ledgerRepo  repositories.LedgerRepository
	profileRepo repositories.ProfileRepository
}

// NewLedgerUsecase creates a new ledger usecase
func NewLedgerUsecase(
	uow repositories.UnitOfWork,
	ledgerRepo repositories.LedgerRepository,
	profileRepo repositories.ProfileRepository,
) *LedgerUsecase {
	return &LedgerUsecase{
		uow:         uow,
		ledgerRepo:  ledgerRepo,
		profileRepo: profileRepo,
	}
}

// Credit applies input to the user's balance and appends the matching ledger row in one unit.
// A reference hash that was already credited is a no-op: it returns (nil, false, nil).
func (u *LedgerUsecase) Credit(ctx context.Context, input *entities.CreditInput) (*entities.LedgerTransaction, bool, error) {
	if err := validateCredit(input); err != nil {
		return nil, false, err
	}
	if err := u.EnsureAccount(ctx, input.UserID); err != nil {
		return nil, false, err
	}

	var entry *entities.LedgerTransaction
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		// the profile row lock serializes credits per user
		profile, err := u.profileRepo.GetByUserID(u.uow.WithLock(txCtx), input.UserID)
		if err != nil {
			return err
		}

		exists, err := u.ledgerRepo.ExistsByReference(txCtx, input.ReferenceHash)
		if err != nil {
			return err
		}
		if exists {
			return domainerrors.ErrDuplicateTransaction
		}

		after := profile.Balance.Add(input.Amount)
		if after.IsNegative() {
			return domainerrors.ErrInvalidAmount
		}

		row := &entities.LedgerTransaction{
			UserID:        input.UserID,
			Type:          input.Type,
			Amount:        input.Amount,
			BalanceBefore: profile.Balance,
			BalanceAfter:  after,
			ReferenceHash: strings.ToLower(input.ReferenceHash),
			DepositID:     input.DepositID,
			Description:   input.Description,
		}
		if err := u.ledgerRepo.Create(txCtx, row); err != nil {
			return err
		}
		if err := u.profileRepo.UpdateBalance(txCtx, input.UserID, after); err != nil {
			return err
		}
		entry = row
		return nil
	})
	if errors.Is(err, domainerrors.ErrDuplicateTransaction) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// EnsureAccount creates the user's zero-balance profile if it does not exist yet
func (u *LedgerUsecase) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	_, err := u.profileRepo.GetByUserID(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return err
	}
	err = u.profileRepo.Create(ctx, &entities.Profile{UserID: userID, Balance: decimal.Zero})
	if errors.Is(err, domainerrors.ErrAlreadyExists) {
		return nil
	}
	return err
}

// GetBalance returns the user's balance with the most recent ledger rows
func (u *LedgerUsecase) GetBalance(ctx context.Context, userID uuid.UUID, limit int) (*entities.BalanceView, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultLedgerHistory
	}

	view := &entities.BalanceView{UserID: userID, Balance: decimal.Zero}
	profile, err := u.profileRepo.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		view.Balance = profile.Balance
	case errors.Is(err, domainerrors.ErrNotFound):
		view.Transactions = []*entities.LedgerTransaction{}
		return view, nil
	default:
		return nil, err
	}

	rows, err := u.ledgerRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	view.Transactions = rows
	return view, nil
}

// VerifyBalance reports whether the stored balance equals the sum of the user's ledger rows
func (u *LedgerUsecase) VerifyBalance(ctx context.Context, userID uuid.UUID) (bool, error) {
	sum, err := u.ledgerRepo.SumByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	profile, err := u.profileRepo.GetByUserID(ctx, userID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return sum.IsZero(), nil
	}
	if err != nil {
		return false, err
	}
	return profile.Balance.Equal(sum), nil
}

func validateCredit(input *entities.CreditInput) error {
	if input == nil || input.UserID == uuid.Nil || strings.TrimSpace(input.ReferenceHash) == "" {
		return domainerrors.ErrInvalidInput
	}
	switch input.Type {
	case entities.LedgerTypeDeposit:
		if !input.Amount.IsPositive() {
			return domainerrors.ErrInvalidAmount
		}
	case entities.LedgerTypeSweep:
		// a sweep fully covered by earlier deposits is recorded with a zero amount
		if input.Amount.IsNegative() {
			return domainerrors.ErrInvalidAmount
		}
	case entities.LedgerTypeWithdrawal, entities.LedgerTypeAdjustment:
		if input.Amount.IsZero() {
			return domainerrors.ErrInvalidAmount
		}
	default:
		return domainerrors.ErrInvalidInput
	}
	return nil
}
