package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/pkg/logger"
)

// Success sends a success response
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Error sends an error response. Bare domain errors are mapped to their HTTP status.
func Error(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError && c.Request != nil {
		logger.Error(c.Request.Context(), "Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	c.JSON(appErr.Status, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"error":   appErr.Message,
	})
}

// ErrorWithError sends an error response with a specific status and message
func ErrorWithError(c *gin.Context, status int, code string, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func toAppError(err error) *domainerrors.AppError {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		return domainerrors.NewAppError(http.StatusNotFound, domainerrors.CodeNotFound, "resource not found", err)
	case errors.Is(err, domainerrors.ErrBadRequest),
		errors.Is(err, domainerrors.ErrInvalidInput),
		errors.Is(err, domainerrors.ErrInvalidAddress),
		errors.Is(err, domainerrors.ErrInvalidAmount):
		return domainerrors.NewAppError(http.StatusBadRequest, domainerrors.CodeInvalidInput, err.Error(), err)
	case errors.Is(err, domainerrors.ErrAlreadyExists),
		errors.Is(err, domainerrors.ErrDuplicateTransaction),
		errors.Is(err, domainerrors.ErrCycleInProgress):
		return domainerrors.NewAppError(http.StatusConflict, domainerrors.CodeConflict, err.Error(), err)
	case errors.Is(err, domainerrors.ErrUnauthorized):
		return domainerrors.NewAppError(http.StatusUnauthorized, domainerrors.CodeUnauthorized, "unauthorized", err)
	case errors.Is(err, domainerrors.ErrForbidden):
		return domainerrors.NewAppError(http.StatusForbidden, domainerrors.CodeForbidden, "forbidden", err)
	case errors.Is(err, domainerrors.ErrProviderExhausted):
		return domainerrors.ServiceUnavailable("blockchain providers unavailable, retry later", err)
	}
	return domainerrors.InternalError(err)
}
