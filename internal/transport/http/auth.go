package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/monitoring"
)

// AuthHandler 认证相关的 HTTP 处理器
type AuthHandler struct {
	authService *auth.Service
	metrics     *monitoring.Metrics
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service, metrics *monitoring.Metrics) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		metrics:     metrics,
	}
}

type registerRequest struct {
	InviteCode string `json:"inviteCode" binding:"required"`
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	result, err := h.authService.Register(auth.RegisterInput{
		InviteCode: req.InviteCode,
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		IP:         c.ClientIP(),
	})
	if err != nil {
		WriteError(c, err)
		return
	}

	h.metrics.UsersRegistered.Inc()
	OK(c, gin.H{
		"token":        result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"expiresIn":    result.Tokens.ExpiresIn,
		"user":         result.User,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	result, err := h.authService.Login(req.Username, req.Password, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserBanned):
			h.metrics.RecordLogin("banned")
		default:
			h.metrics.RecordLogin("failure")
		}
		WriteError(c, err)
		return
	}

	h.metrics.RecordLogin("success")
	OK(c, gin.H{
		"token":        result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"expiresIn":    result.Tokens.ExpiresIn,
		"user":         result.User,
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// Verify POST /api/auth/verify
//
// 仪表盘每次加载都会调用：令牌可以放请求头也可以放请求体。
func (h *AuthHandler) Verify(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		BadRequest(c, "token is required")
		return
	}

	user, err := h.authService.Verify(token)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"user": user})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	accessToken, err := h.authService.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"token": accessToken})
}

// Logout POST /api/auth/logout
//
// 注销刷新令牌对应的服务端会话；访问令牌用到自然过期。
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	if err := h.authService.Logout(req.RefreshToken); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Logged out")
}
