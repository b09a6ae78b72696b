package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
)

// IdentityKey 是身份在 Gin Context 中的存储键
const IdentityKey = "identity"

// Auth 返回一个 Gin 中间件，用于验证身份令牌。
// 令牌可放在 Authorization: Bearer 头，或 token 查询参数
// （浏览器的 WebSocket API 无法携带自定义请求头）。
// 缺失或无效的令牌直接拒绝请求——WebSocket 升级发生在这之后，
// 等价于没有身份就立即断开。
func Auth(identities *service.IdentityService) gin.HandlerFunc {
	if identities == nil {
		panic("IdentityService cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		tokenStr := extractToken(c)
		if tokenStr == "" {
			logrus.Warn("Auth middleware: missing identity token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity token is required"})
			c.Abort()
			return
		}

		identity, err := identities.Parse(tokenStr)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: invalid identity token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired identity token"})
			c.Abort()
			return
		}

		c.Set(IdentityKey, identity)
		logrus.WithField("user_id", identity.ID).Debug("Auth middleware: identity bound")
		c.Next()
	}
}

// extractToken 依次尝试 Authorization 头和 token 查询参数
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}
