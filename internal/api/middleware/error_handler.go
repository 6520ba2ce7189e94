// Package middleware provides the HTTP middleware shared by the fake backend
// and the live dashboard server.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

// ErrorHandler renders errors added via c.Error() as the backend envelope
// {"success": false, "error": ...}.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusInternalServerError
			}
			logger.Warn("Request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", status),
				zap.Error(appErr.Err),
			)
			c.JSON(status, gin.H{
				"success": false,
				"error":   appErr.Message,
			})
			return
		}

		logger.Error("Unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	}
}
