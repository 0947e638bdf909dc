package httptransport

import (
	"github.com/gin-gonic/gin"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/middleware"
)

// AccountHandler 账户自助操作的 HTTP 处理器
type AccountHandler struct {
	authService *auth.Service
}

// NewAccountHandler 创建账户处理器
func NewAccountHandler(authService *auth.Service) *AccountHandler {
	return &AccountHandler{authService: authService}
}

type updateUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// UpdateUsername POST /api/account/update-username
func (h *AccountHandler) UpdateUsername(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req updateUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.authService.UpdateUsername(user.ID, req.Username); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Username updated")
}

type updateEmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// UpdateEmail POST /api/account/update-email
func (h *AccountHandler) UpdateEmail(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req updateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.authService.UpdateEmail(user.ID, req.Email); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Email updated")
}

type updatePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// UpdatePassword POST /api/account/update-password
//
// 成功后旧令牌全部失效，仪表盘拿新令牌重新登录。
func (h *AccountHandler) UpdatePassword(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.authService.ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Password updated, please log in again")
}

// Delete POST /api/account/delete
func (h *AccountHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.authService.DeleteAccount(user.ID); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Account deleted")
}
