package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
)

func TestLedgerRepository_AppendAndSum(t *testing.T) {
	db := newTestDB(t)
	createLedgerTables(t, db)
	repo := NewLedgerRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.Create(ctx, &entities.LedgerTransaction{
		UserID: userID, Type: entities.LedgerTypeDeposit, ReferenceHash: "0xAA",
		Amount: decimal.RequireFromString("10.25"), BalanceBefore: decimal.Zero, BalanceAfter: decimal.RequireFromString("10.25"),
	}))
	require.NoError(t, repo.Create(ctx, &entities.LedgerTransaction{
		UserID: userID, Type: entities.LedgerTypeSweep, ReferenceHash: "0xbb",
		Amount: decimal.RequireFromString("0.75"), BalanceBefore: decimal.RequireFromString("10.25"), BalanceAfter: decimal.NewFromInt(11),
	}))

	err := repo.Create(ctx, &entities.LedgerTransaction{
		UserID: userID, Type: entities.LedgerTypeDeposit, ReferenceHash: "0xaa", Amount: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, domainerrors.ErrDuplicateTransaction)

	exists, err := repo.ExistsByReference(ctx, "0xAa")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = repo.ExistsByReference(ctx, "0xcc")
	require.NoError(t, err)
	require.False(t, exists)

	sum, err := repo.SumByUserID(ctx, userID)
	require.NoError(t, err)
	require.True(t, sum.Equal(decimal.NewFromInt(11)), "sum=%s", sum)

	rows, err := repo.ListByUserID(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.True(t, row.BalanceAfter.Equal(row.BalanceBefore.Add(row.Amount)))
	}

	empty, err := repo.SumByUserID(ctx, uuid.New())
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}

func TestProfileRepository_Flow(t *testing.T) {
	db := newTestDB(t)
	createLedgerTables(t, db)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	_, err := repo.GetByUserID(ctx, userID)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	require.NoError(t, repo.Create(ctx, &entities.Profile{UserID: userID, Balance: decimal.Zero}))
	require.ErrorIs(t, repo.Create(ctx, &entities.Profile{UserID: userID}), domainerrors.ErrAlreadyExists)

	require.NoError(t, repo.UpdateBalance(ctx, userID, decimal.RequireFromString("42.5")))
	got, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("42.5")))

	require.ErrorIs(t, repo.UpdateBalance(ctx, uuid.New(), decimal.Zero), domainerrors.ErrNotFound)
}
