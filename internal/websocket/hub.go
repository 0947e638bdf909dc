package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/pool"
)

// EventType 推送给仪表盘的事件类型
type EventType string

const (
	EventKeyGenerated EventType = "key_generated"
	EventKeyDeleted   EventType = "key_deleted"
	EventKeyFrozen    EventType = "key_frozen"
	EventKeyActivated EventType = "key_activated"
	EventSessionKick  EventType = "session_kicked"
	EventPing         EventType = "ping"
	EventPong         EventType = "pong"
)

// Event 推送消息
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 一条已认证的仪表盘连接
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub 管理仪表盘的 WebSocket 连接
//
// 事件按账户定向推送：卡密事件只发给卡密归属账户（和管理员看板），
// 广播走协程池，慢客户端直接断开不拖累别人。
type Hub struct {
	clients    map[string]map[*Client]bool // userID -> connections
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Run 退出后关闭，解除登记通道上的阻塞
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	authSvc  *auth.Service
	workers  *pool.WorkerPool
	log      *zap.Logger
}

// NewHub 创建连接管理器
func NewHub(authSvc *auth.Service, allowedOrigins []string, log *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		authSvc:    authSvc,
		workers:    pool.NewWorkerPool(4, 256),
		log:        log,
	}
	h.workers.OnPanic(func(r any) {
		log.Error("websocket broadcast panic", zap.Any("error", r))
	})
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		for _, origin := range allowed {
			if origin == "*" {
				return true
			}
		}
		requestOrigin := r.Header.Get("Origin")
		if requestOrigin == "" {
			return true
		}
		for _, origin := range allowed {
			if requestOrigin == origin {
				return true
			}
		}
		return false
	}
}

// Run 运行连接登记循环，ctx 取消后关闭全部连接
//
// 工作协程随 ctx 退出，任务队列不关闭，停机后的 Publish 不会恐慌。
func (h *Hub) Run(ctx context.Context) {
	h.workers.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.userID]; ok {
				if conns[client] {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.userID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// add 登记连接；Run 已退出时返回 false
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove 注销连接；Run 已退出时直接返回，不再阻塞
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish 向指定账户的所有连接推送事件
func (h *Hub) Publish(userID string, eventType EventType, payload any) {
	select {
	case <-h.done:
		return
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.workers.TrySubmit(func() {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for client := range h.clients[userID] {
			select {
			case client.send <- raw:
			default:
				// 发送队列满的客户端视为失联
				go h.remove(client)
			}
		}
	})
}

// HandleConnection 处理 /api/ws 升级请求（令牌经 query 或 header 提交）
func (h *Hub) HandleConnection(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		token = c.Query("token")
	}
	user, err := h.authSvc.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		userID: user.ID,
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    h,
	}
	if !h.add(client) {
		_ = conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for client := range conns {
			close(client.send)
			_ = client.conn.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

func (c *Client) readLoop() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// 仪表盘不上行业务消息，只保持心跳
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
