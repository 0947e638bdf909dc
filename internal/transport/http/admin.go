package httptransport

import (
	"github.com/gin-gonic/gin"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/websocket"
)

// AdminHandler 管理面板的 HTTP 处理器
type AdminHandler struct {
	admins      *service.AdminService
	invites     *service.InviteService
	ledger      *service.LedgerService
	authService *auth.Service
	metrics     *monitoring.Metrics
	hub         *websocket.Hub
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(admins *service.AdminService, invites *service.InviteService, ledger *service.LedgerService, authService *auth.Service, metrics *monitoring.Metrics, hub *websocket.Hub) *AdminHandler {
	return &AdminHandler{
		admins:      admins,
		invites:     invites,
		ledger:      ledger,
		authService: authService,
		metrics:     metrics,
		hub:         hub,
	}
}

// ListUsers GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	type query struct {
		Page     int    `form:"page,default=1"`
		PageSize int    `form:"pageSize,default=20"`
		Search   string `form:"search"`
		Role     string `form:"role"`
	}
	var q query
	if err := c.ShouldBindQuery(&q); err != nil {
		BadRequest(c, "invalid query parameters")
		return
	}

	var role *domain.UserRole
	if q.Role != "" {
		r := domain.UserRole(q.Role)
		if !domain.ValidRole(r) {
			BadRequest(c, "invalid role filter")
			return
		}
		role = &r
	}

	page, err := h.admins.ListUsers(q.Page, q.PageSize, q.Search, role)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{
		"users":    page.Users,
		"total":    page.Total,
		"page":     page.Page,
		"pageSize": page.PageSize,
	})
}

// GetUser GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	detail, err := h.admins.GetUser(c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"user": detail.User, "keys": detail.Keys})
}

type createUserRequest struct {
	Username        string   `json:"username" binding:"required"`
	Email           string   `json:"email" binding:"required"`
	Password        string   `json:"password" binding:"required"`
	Role            string   `json:"role" binding:"required"`
	Balance         float64  `json:"balance"`
	AllowedProducts []string `json:"allowedProducts"`
}

// CreateUser POST /api/admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	user, err := h.admins.CreateUser(service.CreateUserInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		Role:            domain.UserRole(req.Role),
		Balance:         req.Balance,
		AllowedProducts: req.AllowedProducts,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"user": user})
}

// DeleteUser DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	caller, _ := middleware.CurrentUser(c)
	if err := h.admins.DeleteUser(caller.ID, c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "User deleted")
}

type banRequest struct {
	Banned *bool `json:"banned" binding:"required"`
}

// BanUser POST /api/admin/users/:id/ban
func (h *AdminHandler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.authService.SetBanned(c.Param("id"), *req.Banned); err != nil {
		WriteError(c, err)
		return
	}
	if *req.Banned {
		OKMessage(c, "User banned")
		return
	}
	OKMessage(c, "User unbanned")
}

// KickUser POST /api/admin/users/:id/kick
func (h *AdminHandler) KickUser(c *gin.Context) {
	userID := c.Param("id")
	if err := h.authService.Kick(userID); err != nil {
		WriteError(c, err)
		return
	}
	h.metrics.SessionsKicked.Inc()
	h.hub.Publish(userID, websocket.EventSessionKick, gin.H{"reason": "kicked by admin"})
	OKMessage(c, "Sessions revoked")
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetRole POST /api/admin/users/:id/role
func (h *AdminHandler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.admins.SetRole(c.Param("id"), domain.UserRole(req.Role)); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Role updated")
}

type generateInvitesRequest struct {
	Count int `json:"count" binding:"required"`
}

// GenerateInvites POST /api/admin/invites
func (h *AdminHandler) GenerateInvites(c *gin.Context) {
	caller, _ := middleware.CurrentUser(c)

	var req generateInvitesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	generated, err := h.invites.Generate(caller.ID, req.Count)
	if err != nil {
		WriteError(c, err)
		return
	}

	// 明文只在这个响应里出现一次
	codes := make([]string, 0, len(generated))
	for _, g := range generated {
		codes = append(codes, g.Code)
	}
	OK(c, gin.H{"codes": codes})
}

// ListInvites GET /api/admin/invites
func (h *AdminHandler) ListInvites(c *gin.Context) {
	invites, err := h.invites.List()
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"invites": invites})
}

// DeleteInvite DELETE /api/admin/invites/:code
func (h *AdminHandler) DeleteInvite(c *gin.Context) {
	if err := h.invites.Delete(c.Param("code")); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Invite deleted")
}

type balanceRequest struct {
	Balance *float64 `json:"balance" binding:"required"`
}

// SetBalance POST /api/admin/resellers/:id/balance
func (h *AdminHandler) SetBalance(c *gin.Context) {
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.ledger.SetBalance(c.Param("id"), *req.Balance); err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"balance": *req.Balance})
}

type addBalanceRequest struct {
	Amount *float64 `json:"amount" binding:"required"`
}

// AddBalance POST /api/admin/resellers/:id/add-balance
func (h *AdminHandler) AddBalance(c *gin.Context) {
	var req addBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	balance, err := h.ledger.AddBalance(c.Param("id"), *req.Amount)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"balance": balance})
}

type productsRequest struct {
	Products []string `json:"products" binding:"required"`
}

// SetProducts POST /api/admin/resellers/:id/products
func (h *AdminHandler) SetProducts(c *gin.Context) {
	var req productsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if err := h.ledger.SetAllowedProducts(c.Param("id"), req.Products); err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"products": req.Products})
}

// Statistics GET /api/admin/stats
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.admins.Statistics()
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"stats": stats})
}
