package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/interfaces/http/middleware"
	"bsc-custody.backend/internal/interfaces/http/response"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/utils"
)

type sweepService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (*entities.SweepStatus, error)
	TriggerManualCycle(ctx context.Context) bool
	EmergencySweep(ctx context.Context, address string) (*entities.EmergencySweepResult, error)
	GetStats(ctx context.Context, windowDays int) (*entities.SweepStats, error)
	ListOperations(ctx context.Context, pagination utils.PaginationParams) ([]*entities.GasOperation, int64, error)
	UpdateConfig(ctx context.Context, input *entities.UpdateMasterWalletConfigInput) (*entities.MasterWalletConfig, error)
}

// SweepHandler exposes the sweep engine to operators
type SweepHandler struct {
	sweep sweepService
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(sweep *usecases.SweepServiceUsecase) *SweepHandler {
	return &SweepHandler{sweep: sweep}
}

// GetStatus GET /api/v1/admin/sweep/status
func (h *SweepHandler) GetStatus(c *gin.Context) {
	status, err := h.sweep.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// Start POST /api/v1/admin/sweep/start
func (h *SweepHandler) Start(c *gin.Context) {
	if err := h.sweep.Start(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	h.audit(c, "start")
	response.Success(c, http.StatusOK, gin.H{"success": true, "running": true})
}

// Stop POST /api/v1/admin/sweep/stop
func (h *SweepHandler) Stop(c *gin.Context) {
	if err := h.sweep.Stop(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	h.audit(c, "stop")
	response.Success(c, http.StatusOK, gin.H{"success": true, "running": false})
}

// Trigger hands one cycle to the scheduler and answers immediately
// POST /api/v1/admin/sweep/trigger
func (h *SweepHandler) Trigger(c *gin.Context) {
	h.audit(c, "trigger")
	message := "Sweep cycle triggered"
	started := h.sweep.TriggerManualCycle(c.Request.Context())
	if !started {
		message = "A manual sweep cycle is already running"
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"success": true,
		"started": started,
		"message": message,
	})
}

// EmergencySweep POST /api/v1/admin/sweep/emergency
func (h *SweepHandler) EmergencySweep(c *gin.Context) {
	var input entities.EmergencySweepInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "reason": "address is required"})
		return
	}

	h.audit(c, "emergency_sweep", zap.String("address", input.Address))
	result, err := h.sweep.EmergencySweep(c.Request.Context(), input.Address)
	if err != nil {
		status, reason := emergencyFailure(err)
		if status >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "Emergency sweep failed", zap.String("address", input.Address), zap.Error(err))
		}
		c.JSON(status, gin.H{"success": false, "reason": reason})
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetStats GET /api/v1/admin/sweep/stats?days=
func (h *SweepHandler) GetStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	stats, err := h.sweep.GetStats(c.Request.Context(), days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ListOperations GET /api/v1/admin/sweep/operations?page=&limit=
func (h *SweepHandler) ListOperations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	pagination := utils.GetPaginationParams(page, limit)

	ops, total, err := h.sweep.ListOperations(c.Request.Context(), pagination)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"operations": ops,
		"meta":       utils.CalculateMeta(total, pagination.Page, pagination.Limit),
	})
}

// UpdateConfig PUT /api/v1/admin/sweep/config
func (h *SweepHandler) UpdateConfig(c *gin.Context) {
	var input entities.UpdateMasterWalletConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid request body"))
		return
	}
	cfg, err := h.sweep.UpdateConfig(c.Request.Context(), &input)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.audit(c, "update_config")
	response.Success(c, http.StatusOK, gin.H{"config": cfg})
}

func (h *SweepHandler) audit(c *gin.Context, action string, fields ...zap.Field) {
	operator, _ := middleware.GetOperatorID(c)
	fields = append(fields, zap.String("action", action), zap.String("operator", operator))
	logger.Info(c.Request.Context(), "Sweep admin action", fields...)
}

func emergencyFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidAddress):
		return http.StatusBadRequest, "invalid address"
	case errors.Is(err, domainerrors.ErrNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.Is(err, domainerrors.ErrCycleInProgress):
		return http.StatusConflict, "a sweep cycle is in progress, retry later"
	case domainerrors.IsRetryable(err):
		return http.StatusServiceUnavailable, "blockchain providers unavailable"
	}
	return http.StatusInternalServerError, "emergency sweep failed"
}
