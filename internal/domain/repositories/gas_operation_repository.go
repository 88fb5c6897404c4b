package repositories

import (
	"context"
	"time"

	"bsc-custody.backend/internal/domain/entities"
)

// GasOperationRepository defines gas/sweep batch log operations
type GasOperationRepository interface {
	Create(ctx context.Context, op *entities.GasOperation) error
	Update(ctx context.Context, op *entities.GasOperation) error
	List(ctx context.Context, limit, offset int) ([]*entities.GasOperation, int64, error)
	ListSince(ctx context.Context, since time.Time) ([]*entities.GasOperation, error)
}
