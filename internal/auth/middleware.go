package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/pollhub/internal/model"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// RequireToken 校验Authorization头中的Bearer令牌，身份写入请求上下文
func RequireToken(manager *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := claimsFromRequest(manager, c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token is missing or invalid",
				"code":  model.ErrorCode(model.ErrUnauthorized),
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

// OptionalToken 令牌可选，带有效令牌则解析身份，否则按匿名继续
func OptionalToken(manager *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := claimsFromRequest(manager, c); err == nil {
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUsername, claims.Username)
		}
		c.Next()
	}
}

func claimsFromRequest(manager *TokenManager, c *gin.Context) (*Claims, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, model.ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, model.ErrUnauthorized
	}

	return manager.Verify(strings.TrimSpace(parts[1]))
}

// Identity 从请求上下文取出认证身份
func Identity(c *gin.Context) (int64, string, bool) {
	userID, ok := c.Get(ContextUserID)
	if !ok {
		return 0, "", false
	}
	username, _ := c.Get(ContextUsername)
	name, _ := username.(string)
	id, ok := userID.(int64)
	return id, name, ok
}
