package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/interfaces/http/response"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/utils"
)

type depositService interface {
	CreateExpectedDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.DepositRecord, error)
	CheckAddress(ctx context.Context, userID uuid.UUID) (*entities.DepositCheckResult, error)
	ListDeposits(ctx context.Context, userID uuid.UUID, pagination utils.PaginationParams) ([]*entities.DepositRecord, int64, error)
}

// DepositWatcher starts a monitoring session for an expected deposit
type DepositWatcher interface {
	Watch(ctx context.Context, deposit *entities.DepositRecord) error
}

// DepositHandler handles deposit endpoints
type DepositHandler struct {
	deposits depositService
	monitor  DepositWatcher
}

// NewDepositHandler creates a new deposit handler
func NewDepositHandler(deposits *usecases.DepositUsecase, monitor DepositWatcher) *DepositHandler {
	return &DepositHandler{deposits: deposits, monitor: monitor}
}

// MonitorDeposit records an expected deposit and starts watching the user's address
// POST /api/v1/deposits/monitor
func (h *DepositHandler) MonitorDeposit(c *gin.Context) {
	var input entities.MonitorDepositInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest("userId and expectedAmount are required"))
		return
	}
	userID, err := utils.ParseID(input.UserID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}
	amount, err := decimal.NewFromString(input.ExpectedAmount)
	if err != nil || !amount.IsPositive() {
		response.Error(c, domainerrors.BadRequest("expectedAmount must be a positive number"))
		return
	}

	ctx := c.Request.Context()
	deposit, err := h.deposits.CreateExpectedDeposit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("Wallet not found, generate a wallet first"))
			return
		}
		response.Error(c, err)
		return
	}

	// the session outlives the request
	if err := h.monitor.Watch(context.WithoutCancel(ctx), deposit); err != nil {
		// the confirmation job still expires the record, so the request succeeds
		logger.Error(ctx, "Failed to start deposit monitoring",
			zap.String("deposit_id", deposit.ID.String()),
			zap.Error(err),
		)
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": "Deposit monitoring started",
		"deposit": deposit,
	})
}

// CheckDeposits scans the user's address on demand
// POST /api/v1/deposits/check
func (h *DepositHandler) CheckDeposits(c *gin.Context) {
	var input entities.CheckDepositInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest("userId is required"))
		return
	}
	userID, err := utils.ParseID(input.UserID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}

	ctx := c.Request.Context()
	result, err := h.deposits.CheckAddress(ctx, userID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("Wallet not found"))
			return
		}
		logger.Warn(ctx, "Manual deposit check failed", zap.String("user_id", userID.String()), zap.Error(err))
		if domainerrors.IsRetryable(err) {
			response.Error(c, domainerrors.ServiceUnavailable("Unable to check deposits right now, please try again shortly", err))
			return
		}
		response.Error(c, domainerrors.InternalServerError("Unable to check deposits"))
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ListDeposits lists a user's deposits
// GET /api/v1/deposits?userId=&page=&limit=
func (h *DepositHandler) ListDeposits(c *gin.Context) {
	userID, err := utils.ParseID(c.Query("userId"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	pagination := utils.GetPaginationParams(page, limit)

	deposits, total, err := h.deposits.ListDeposits(c.Request.Context(), userID, pagination)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"deposits": deposits,
		"meta":     utils.CalculateMeta(total, pagination.Page, pagination.Limit),
	})
}
