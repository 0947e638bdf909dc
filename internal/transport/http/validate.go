package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/websocket"
)

// ValidateHandler 受保护客户端的卡密校验入口
//
// 无需账户令牌：客户端只带卡密和硬件指纹。
type ValidateHandler struct {
	activations *service.ActivationService
	metrics     *monitoring.Metrics
	hub         *websocket.Hub
}

// NewValidateHandler 创建校验处理器
func NewValidateHandler(activations *service.ActivationService, metrics *monitoring.Metrics, hub *websocket.Hub) *ValidateHandler {
	return &ValidateHandler{
		activations: activations,
		metrics:     metrics,
		hub:         hub,
	}
}

type validateRequest struct {
	Key  string `json:"key" binding:"required"`
	HWID string `json:"hwid" binding:"required"`
	IP   string `json:"ip"`
}

// Validate POST /api/validate
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "key and hwid are required")
		return
	}

	ip := req.IP
	if ip == "" {
		ip = c.ClientIP()
	}

	now := time.Now()
	key, err := h.activations.Activate(req.Key, req.HWID, ip, now)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrHwidMismatch):
			h.metrics.RecordActivation("mismatch")
		case errors.Is(err, service.ErrKeyNotActivatable):
			h.metrics.RecordActivation("rejected")
		default:
			h.metrics.RecordActivation("error")
		}
		WriteError(c, err)
		return
	}

	result := "revalidated"
	if key.UsedAt != nil && now.Sub(*key.UsedAt) < time.Second {
		result = "bound"
	}
	h.metrics.RecordActivation(result)
	h.hub.Publish(key.UserID, websocket.EventKeyActivated, gin.H{
		"key":    key.Key,
		"result": result,
	})

	OK(c, gin.H{
		"key":       key.Key,
		"product":   key.Product,
		"expiresAt": key.ExpiresAt,
	})
}
