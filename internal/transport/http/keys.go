package httptransport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/websocket"
)

// KeyHandler 卡密管理的 HTTP 处理器（仪表盘侧）
type KeyHandler struct {
	keys          *service.KeyService
	activations   *service.ActivationService
	bulk          *service.BulkService
	defaultFormat string
	metrics       *monitoring.Metrics
	hub           *websocket.Hub
}

// NewKeyHandler 创建卡密处理器
func NewKeyHandler(keys *service.KeyService, activations *service.ActivationService, bulk *service.BulkService, defaultFormat string, metrics *monitoring.Metrics, hub *websocket.Hub) *KeyHandler {
	return &KeyHandler{
		keys:          keys,
		activations:   activations,
		bulk:          bulk,
		defaultFormat: defaultFormat,
		metrics:       metrics,
		hub:           hub,
	}
}

type generateRequest struct {
	Format        string  `json:"format"`
	Product       string  `json:"product"`
	Unit          string  `json:"unit" binding:"required"`
	Amount        int     `json:"amount"`
	Count         int     `json:"count"`
	ApplicationID *string `json:"applicationId"`
}

// Generate POST /api/keys/generate
func (h *KeyHandler) Generate(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	unit, err := domain.ParseDurationUnit(req.Unit)
	if err != nil {
		BadRequest(c, "invalid duration unit")
		return
	}
	if req.Format == "" {
		req.Format = h.defaultFormat
	}

	created, err := h.keys.Generate(service.GenerateInput{
		AccountID:     user.ID,
		ApplicationID: req.ApplicationID,
		Product:       req.Product,
		Format:        req.Format,
		Unit:          unit,
		Amount:        req.Amount,
		Count:         req.Count,
	})
	if err != nil {
		WriteError(c, err)
		return
	}

	h.metrics.KeysGenerated.Add(float64(len(created)))
	h.hub.Publish(user.ID, websocket.EventKeyGenerated, gin.H{"count": len(created)})
	OK(c, gin.H{"keys": created})
}

// List GET /api/keys/list
func (h *KeyHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	keys, err := h.keys.List(user.ID)
	if err != nil {
		WriteError(c, err)
		return
	}

	// 状态是派生值，列表响应里按当前时刻算出来一起返回
	now := time.Now()
	type keyView struct {
		domain.LicenseKey
		Status domain.KeyStatus `json:"status"`
	}
	views := make([]keyView, 0, len(keys))
	for i := range keys {
		views = append(views, keyView{LicenseKey: keys[i], Status: keys[i].Status(now)})
	}
	OK(c, gin.H{"keys": views})
}

// Stats GET /api/keys/stats
func (h *KeyHandler) Stats(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	stats, err := h.keys.Stats(user.ID, time.Now())
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"stats": stats})
}

type addTimeRequest struct {
	Key    string `json:"key" binding:"required"`
	Unit   string `json:"unit" binding:"required"`
	Amount int    `json:"amount"`
}

// AddTime POST /api/keys/addtime
func (h *KeyHandler) AddTime(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req addTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	unit, err := domain.ParseDurationUnit(req.Unit)
	if err != nil {
		BadRequest(c, "invalid duration unit")
		return
	}

	key, err := h.keys.AddTime(user, req.Key, unit, req.Amount)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"key": key})
}

type freezeRequest struct {
	Key    string `json:"key" binding:"required"`
	Frozen *bool  `json:"frozen" binding:"required"`
}

// Freeze POST /api/keys/freeze
func (h *KeyHandler) Freeze(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req freezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	key, err := h.keys.SetFrozen(user, req.Key, *req.Frozen)
	if err != nil {
		WriteError(c, err)
		return
	}

	if *req.Frozen {
		h.metrics.KeysFrozen.Inc()
	}
	h.hub.Publish(user.ID, websocket.EventKeyFrozen, gin.H{"key": key.Key, "frozen": key.Frozen})
	OK(c, gin.H{"key": key})
}

type resetHwidRequest struct {
	Key string `json:"key" binding:"required"`
}

// ResetHwid POST /api/keys/resethwid
func (h *KeyHandler) ResetHwid(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req resetHwidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	if err := h.activations.ResetHwid(user, req.Key); err != nil {
		WriteError(c, err)
		return
	}
	OKMessage(c, "HWID reset")
}

// Delete DELETE /api/keys/:key
func (h *KeyHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.keys.Delete(user, c.Param("key")); err != nil {
		WriteError(c, err)
		return
	}

	h.metrics.KeysDeleted.Inc()
	h.hub.Publish(user.ID, websocket.EventKeyDeleted, gin.H{"key": c.Param("key")})
	OKMessage(c, "Key deleted")
}

type bulkDeleteRequest struct {
	Keys      []string `json:"keys"`
	Selection string   `json:"selection"` // "", "expired", "all"
}

// BulkDelete POST /api/keys/bulk-delete
func (h *KeyHandler) BulkDelete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	values := req.Keys
	var err error
	switch req.Selection {
	case "expired":
		values, err = h.bulk.SelectExpired(user.ID, time.Now())
	case "all":
		values, err = h.bulk.SelectAll(user.ID)
	case "":
		if len(values) == 0 {
			BadRequest(c, "keys or selection required")
			return
		}
	default:
		BadRequest(c, "invalid selection")
		return
	}
	if err != nil {
		WriteError(c, err)
		return
	}

	result := h.bulk.DeleteKeys(user, values)
	h.metrics.KeysDeleted.Add(float64(result.SuccessCount))
	h.hub.Publish(user.ID, websocket.EventKeyDeleted, result)

	// 部分失败仍然是 200，仪表盘展示 "3/5 deleted"
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"successCount": result.SuccessCount,
		"total":        result.Total,
	})
}
