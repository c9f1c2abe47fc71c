package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/model"
)

// 对外错误文案，不暴露任何内部错误细节
var errorMessages = map[string]string{
	"NOT_FOUND":           "Resource not found",
	"POLL_CLOSED":         "Poll is closed or expired",
	"INVALID_OPTION":      "Option does not belong to this poll",
	"DUPLICATE_VOTE":      "You have already voted on this poll",
	"FORBIDDEN":           "Only the poll creator can perform this action",
	"UNAUTHORIZED":        "Invalid or expired credentials",
	"RATE_LIMITED":        "Rate limit exceeded",
	"SERVICE_UNAVAILABLE": "Service temporarily unavailable",
	"INVALID_INPUT":       "Invalid request",
	"CONFLICT":            "Resource already exists",
	"INTERNAL":            "Internal server error",
}

// respondError 错误统一按分类映射为HTTP状态码和稳定的错误码
func respondError(c *gin.Context, err error) {
	code := model.ErrorCode(err)
	message := errorMessages[code]

	// 校验类错误把具体原因带给调用方
	if errors.Is(err, model.ErrInvalidInput) && err != model.ErrInvalidInput {
		message = err.Error()
	}

	c.JSON(model.HTTPStatus(err), gin.H{
		"error": message,
		"code":  code,
	})
}

func respondHealthy(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": service})
	}
}
