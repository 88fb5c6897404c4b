package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
)

type mockWalletService struct {
	mock.Mock
}

func (m *mockWalletService) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*entities.WalletData, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WalletData), args.Error(1)
}

func (m *mockWalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Wallet), args.Error(1)
}

func walletRouter(svc *mockWalletService) *gin.Engine {
	h := &WalletHandler{walletUsecase: svc}
	r := gin.New()
	r.POST("/generate-wallet", h.GenerateWallet)
	r.POST("/api/v1/wallets", h.GetOrCreateWallet)
	r.GET("/api/v1/wallets/:userId", h.GetWallet)
	return r
}

func TestWalletHandler_GenerateWallet(t *testing.T) {
	svc := new(mockWalletService)
	userID := uuid.New()
	wallet := &entities.Wallet{ID: uuid.New(), UserID: userID, Address: "0x00000000000000000000000000000000000000aa", Network: "BSC"}
	svc.On("GetOrCreateWallet", mock.Anything, userID).Return(&entities.WalletData{Wallet: wallet, IsNew: true}, nil).Once()

	w := doJSON(t, walletRouter(svc), http.MethodPost, "/generate-wallet", map[string]string{"userId": userID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"address": wallet.Address}, decode(t, w))
	svc.AssertExpectations(t)
}

func TestWalletHandler_GenerateWalletErrors(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		w := doJSON(t, walletRouter(new(mockWalletService)), http.MethodPost, "/generate-wallet", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("malformed user", func(t *testing.T) {
		w := doJSON(t, walletRouter(new(mockWalletService)), http.MethodPost, "/generate-wallet", map[string]string{"userId": "abc"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("malformed body", func(t *testing.T) {
		w := doJSON(t, walletRouter(new(mockWalletService)), http.MethodPost, "/generate-wallet", "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("generation failure", func(t *testing.T) {
		svc := new(mockWalletService)
		svc.On("GetOrCreateWallet", mock.Anything, mock.Anything).Return(nil, errors.New("vault sealed"))

		w := doJSON(t, walletRouter(svc), http.MethodPost, "/generate-wallet", map[string]string{"userId": uuid.NewString()})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "vault sealed")
	})
}

func TestWalletHandler_GetOrCreateWallet(t *testing.T) {
	svc := new(mockWalletService)
	userID := uuid.New()
	wallet := &entities.Wallet{ID: uuid.New(), UserID: userID, Address: "0x00000000000000000000000000000000000000bb", Network: "BSC"}
	svc.On("GetOrCreateWallet", mock.Anything, userID).Return(&entities.WalletData{Wallet: wallet, IsNew: true}, nil).Once()
	svc.On("GetOrCreateWallet", mock.Anything, userID).Return(&entities.WalletData{Wallet: wallet, IsNew: false}, nil).Once()
	r := walletRouter(svc)

	first := doJSON(t, r, http.MethodPost, "/api/v1/wallets", map[string]string{"userId": userID.String()})
	require.Equal(t, http.StatusCreated, first.Code)
	body := decode(t, first)
	assert.Equal(t, true, body["isNew"])
	assert.Equal(t, "BSC", body["network"])
	assert.NotContains(t, first.Body.String(), "ncrypted")

	second := doJSON(t, r, http.MethodPost, "/api/v1/wallets", map[string]string{"userId": userID.String()})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, false, decode(t, second)["isNew"])
}

func TestWalletHandler_GetWallet(t *testing.T) {
	svc := new(mockWalletService)
	known, unknown := uuid.New(), uuid.New()
	svc.On("GetWallet", mock.Anything, known).Return(&entities.Wallet{UserID: known, Address: "0xabc"}, nil)
	svc.On("GetWallet", mock.Anything, unknown).Return(nil, domainerrors.ErrNotFound)
	r := walletRouter(svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/wallets/"+known.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0xabc")

	w = doJSON(t, r, http.MethodGet, "/api/v1/wallets/"+unknown.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/v1/wallets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
