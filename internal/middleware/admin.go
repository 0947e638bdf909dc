package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"astreon/backend/internal/domain"
)

// RequireAdmin 要求管理员权限（须在 RequireAuth 之后挂载）
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}

// RequireRole 要求指定角色之一
func RequireRole(allowedRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "authentication required",
			})
			c.Abort()
			return
		}

		for _, role := range allowedRoles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "insufficient permissions",
		})
		c.Abort()
	}
}
