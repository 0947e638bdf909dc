package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/domain"
)

// ContextUserKey 认证中间件写入 gin 上下文的用户键
const ContextUserKey = "user"

// JWTAuth JWT 认证中间件
//
// 每个请求都走完整的 Verify：签名、令牌版本、封禁标志。
// 被踢出或封禁的账户下一个请求立即失效，不等令牌过期。
type JWTAuth struct {
	authService *auth.Service
	log         *zap.Logger
}

// NewJWTAuth 创建 JWT 认证中间件
func NewJWTAuth(authService *auth.Service, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		authService: authService,
		log:         log,
	}
}

// RequireAuth 要求有效的访问令牌
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "authentication required",
			})
			c.Abort()
			return
		}

		user, err := ja.authService.Verify(token)
		if err != nil {
			ja.log.Warn("token rejected",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			status := http.StatusUnauthorized
			message := "invalid or expired token"
			switch {
			case errors.Is(err, auth.ErrUserBanned):
				status = http.StatusForbidden
				message = "account is banned"
			case errors.Is(err, auth.ErrSessionStoreReset):
				message = "Database reset"
			}
			c.JSON(status, gin.H{
				"success": false,
				"message": message,
			})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser 从 gin 上下文取出已认证用户
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	val, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok
}

// ExtractToken 从请求中提取访问令牌
//
// 依次尝试 Authorization: Bearer、X-Auth-Token 头、cookie。
// 仪表盘旧版本把令牌放请求体，由各 handler 自行兜底读取。
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	if token := c.GetHeader("X-Auth-Token"); token != "" {
		return token
	}

	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
