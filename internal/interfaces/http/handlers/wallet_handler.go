package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/interfaces/http/response"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/utils"
)

type walletService interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*entities.WalletData, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
}

// WalletHandler issues custodial deposit wallets
type WalletHandler struct {
	walletUsecase walletService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletUsecase *usecases.WalletUsecase) *WalletHandler {
	return &WalletHandler{walletUsecase: walletUsecase}
}

// GenerateWallet returns the user's deposit address, creating the wallet on first use
// POST /generate-wallet
func (h *WalletHandler) GenerateWallet(c *gin.Context) {
	data, ok := h.getOrCreate(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"address": data.Wallet.Address,
	})
}

// GetOrCreateWallet is the full form of GenerateWallet
// POST /api/v1/wallets
func (h *WalletHandler) GetOrCreateWallet(c *gin.Context) {
	data, ok := h.getOrCreate(c)
	if !ok {
		return
	}
	status := http.StatusOK
	if data.IsNew {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{
		"address": data.Wallet.Address,
		"isNew":   data.IsNew,
		"network": data.Wallet.Network,
		"wallet":  data.Wallet,
	})
}

// GetWallet looks up a user's wallet
// GET /api/v1/wallets/:userId
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, err := utils.ParseID(c.Param("userId"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return
	}

	wallet, err := h.walletUsecase.GetWallet(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			response.Error(c, domainerrors.NotFound("Wallet not found"))
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"wallet": wallet})
}

func (h *WalletHandler) getOrCreate(c *gin.Context) (*entities.WalletData, bool) {
	var input entities.GenerateWalletInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest("userId is required"))
		return nil, false
	}
	userID, err := utils.ParseID(input.UserID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid userId"))
		return nil, false
	}

	data, err := h.walletUsecase.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrBadRequest) || errors.Is(err, domainerrors.ErrInvalidInput) {
			response.Error(c, domainerrors.BadRequest("Invalid userId"))
			return nil, false
		}
		response.Error(c, domainerrors.InternalServerError("Failed to generate wallet"))
		return nil, false
	}
	return data, true
}
