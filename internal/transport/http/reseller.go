package httptransport

import (
	"github.com/gin-gonic/gin"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/websocket"
)

// ResellerHandler 经销商自助面板的 HTTP 处理器
type ResellerHandler struct {
	ledger        *service.LedgerService
	keys          *service.KeyService
	defaultFormat string
	metrics       *monitoring.Metrics
	hub           *websocket.Hub
}

// NewResellerHandler 创建经销商处理器
func NewResellerHandler(ledger *service.LedgerService, keys *service.KeyService, defaultFormat string, metrics *monitoring.Metrics, hub *websocket.Hub) *ResellerHandler {
	return &ResellerHandler{
		ledger:        ledger,
		keys:          keys,
		defaultFormat: defaultFormat,
		metrics:       metrics,
		hub:           hub,
	}
}

// Balance GET /api/reseller/balance
func (h *ResellerHandler) Balance(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	balance, products, err := h.ledger.Balance(user.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{
		"balance":   balance,
		"products":  products,
		"unitPrice": h.ledger.UnitPrice(),
	})
}

// Keys GET /api/reseller/keys
func (h *ResellerHandler) Keys(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	keys, err := h.keys.ListByCreator(user.ID)
	if err != nil {
		WriteError(c, err)
		return
	}
	OK(c, gin.H{"keys": keys})
}

type issueRequest struct {
	Product string `json:"product" binding:"required"`
	Format  string `json:"format"`
	Unit    string `json:"unit" binding:"required"`
	Amount  int    `json:"amount"`
}

// Issue POST /api/reseller/keys/generate
//
// 一次一张，价格固定：扣费与发卡原子完成，余额不足直接拒绝。
func (h *ResellerHandler) Issue(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req issueRequest
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

	result, err := h.ledger.ReserveAndIssue(user.ID, req.Product, req.Format, unit, req.Amount)
	if err != nil {
		WriteError(c, err)
		return
	}

	h.metrics.ResellerIssues.Inc()
	h.metrics.KeysGenerated.Inc()
	h.hub.Publish(user.ID, websocket.EventKeyGenerated, gin.H{"count": 1})
	OK(c, gin.H{
		"key":     result.Key,
		"balance": result.Balance,
	})
}
