package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/keygen"
	"astreon/backend/internal/service"
	"astreon/backend/internal/storage"
)

// errorStatus 业务错误到 HTTP 状态码的映射
var errorStatus = map[error]int{
	// 认证
	auth.ErrInvalidInvite:     http.StatusBadRequest,
	auth.ErrInvalidEmail:      http.StatusBadRequest,
	auth.ErrInvalidPassword:   http.StatusBadRequest,
	auth.ErrInvalidUsername:   http.StatusBadRequest,
	auth.ErrUsernameExists:    http.StatusConflict,
	auth.ErrEmailExists:       http.StatusConflict,
	auth.ErrUserNotFound:      http.StatusNotFound,
	auth.ErrInvalidCredentials: http.StatusUnauthorized,
	auth.ErrUserBanned:        http.StatusForbidden,
	auth.ErrInvalidToken:      http.StatusUnauthorized,
	auth.ErrSessionStoreReset: http.StatusUnauthorized,

	// 卡密
	service.ErrKeyNotFound:         http.StatusNotFound,
	service.ErrGenerationExhausted: http.StatusConflict,
	service.ErrInvalidAmount:       http.StatusBadRequest,
	service.ErrInvalidCount:        http.StatusBadRequest,
	service.ErrNotKeyOwner:         http.StatusForbidden,
	service.ErrLifetimeKey:         http.StatusBadRequest,
	keygen.ErrInvalidFormat:        http.StatusBadRequest,

	// 激活
	service.ErrKeyNotActivatable: http.StatusForbidden,
	service.ErrHwidMismatch:      http.StatusForbidden,
	service.ErrInvalidHwid:       http.StatusBadRequest,

	// 经销商
	service.ErrNotAReseller:        http.StatusForbidden,
	service.ErrProductNotAllowed:   http.StatusForbidden,
	service.ErrInsufficientBalance: http.StatusPaymentRequired,
	service.ErrInvalidBalance:      http.StatusBadRequest,

	// 邀请/应用/管理
	service.ErrInviteNotFound:      http.StatusNotFound,
	service.ErrApplicationNotFound: http.StatusNotFound,
	service.ErrNotApplicationOwner: http.StatusForbidden,
	service.ErrInvalidAppName:      http.StatusBadRequest,
	service.ErrInvalidRole:         http.StatusBadRequest,
	service.ErrSelfDelete:          http.StatusBadRequest,
	storage.ErrUserNotFound:        http.StatusNotFound,
}

// errorMessages 对外提示消息（仪表盘按 message 字符串做条件分支，措辞是契约）
var errorMessages = map[error]string{
	auth.ErrSessionStoreReset:      "Database reset",
	auth.ErrInvalidCredentials:     "Invalid username or password",
	auth.ErrUserBanned:             "Account is banned",
	auth.ErrInvalidToken:           "Invalid or expired token",
	auth.ErrInvalidInvite:          "Invalid or already used invite code",
	service.ErrInsufficientBalance: "Insufficient balance",
	service.ErrHwidMismatch:        "HWID mismatch",
	service.ErrKeyNotActivatable:   "Key is expired or frozen",
	service.ErrKeyNotFound:         "Key not found",
}

// WriteError 把业务错误翻译成统一的失败响应
func WriteError(c *gin.Context, err error) {
	for target, status := range errorStatus {
		if errors.Is(err, target) {
			message := target.Error()
			if msg, ok := errorMessages[target]; ok {
				message = msg
			}
			Fail(c, status, message)
			return
		}
	}
	InternalError(c)
}
