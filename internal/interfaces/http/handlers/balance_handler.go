package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/interfaces/http/response"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/utils"
)

type balanceService interface {
	GetBalance(ctx context.Context, userID uuid.UUID, limit int) (*entities.BalanceView, error)
	VerifyBalance(ctx context.Context, userID uuid.UUID) (bool, error)
}

type notificationInbox interface {
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.Notification, error)
}

// BalanceHandler serves the user's balance page
type BalanceHandler struct {
	ledger balanceService
	inbox  notificationInbox
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(ledger *usecases.LedgerUsecase, inbox notificationInbox) *BalanceHandler {
	return &BalanceHandler{ledger: ledger, inbox: inbox}
}

// GetBalance returns the balance and recent ledger rows. ?verify=true also checks the fold.
// GET /api/v1/users/:userId/balance
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	userID, err := utils.ParseID(c.Param("userId"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ctx := c.Request.Context()
	view, err := h.ledger.GetBalance(ctx, userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	body := gin.H{
		"userId":       view.UserID,
		"balance":      view.Balance,
		"transactions": view.Transactions,
	}
	if c.Query("verify") == "true" {
		consistent, err := h.ledger.VerifyBalance(ctx, userID)
		if err != nil {
			response.Error(c, err)
			return
		}
		body["consistent"] = consistent
	}
	response.Success(c, http.StatusOK, body)
}

// GetNotifications returns the user's recent deposit notifications
// GET /api/v1/users/:userId/notifications
func (h *BalanceHandler) GetNotifications(c *gin.Context) {
	userID, err := utils.ParseID(c.Param("userId"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := h.inbox.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"notifications": items})
}
