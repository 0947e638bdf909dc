package httptransport

import (
	"github.com/gin-gonic/gin"

	"astreon/backend/internal/middleware"
	"astreon/backend/internal/service"
)

// ApplicationHandler 应用子作用域的 HTTP 处理器
type ApplicationHandler struct {
	applications *service.ApplicationService
}

// NewApplicationHandler 创建应用处理器
func NewApplicationHandler(applications *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

// List GET /api/applications
func (h *ApplicationHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	apps, err := h.applications.List(user.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"applications": apps})
}

type createApplicationRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create POST /api/applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	app, err := h.applications.Create(user.ID, req.Name)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"application": app})
}

// RotateToken POST /api/applications/:id/rotate
func (h *ApplicationHandler) RotateToken(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	app, err := h.applications.RotateToken(user, c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"application": app})
}

// Delete DELETE /api/applications/:id
func (h *ApplicationHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.applications.Delete(user, c.Param("id")); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "Application deleted")
}
