package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/config"
	"astreon/backend/internal/health"
	"astreon/backend/internal/middleware"
	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/storage"
	"astreon/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config            *config.Config
	AuthService       *auth.Service
	KeyService        *service.KeyService
	ActivationService *service.ActivationService
	LedgerService     *service.LedgerService
	InviteService     *service.InviteService
	AppService        *service.ApplicationService
	BulkService       *service.BulkService
	AdminService      *service.AdminService
	Store             storage.Store
	Metrics           *monitoring.Metrics
	Health            *health.Checker
	WebSocketHub      *websocket.Hub
	Logger            *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.BodySizeLimit(middleware.SmallBodyLimit))

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Auth-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics)
	keyHandler := NewKeyHandler(deps.KeyService, deps.ActivationService, deps.BulkService, deps.Config.License.DefaultFormat, deps.Metrics, deps.WebSocketHub)
	validateHandler := NewValidateHandler(deps.ActivationService, deps.Metrics, deps.WebSocketHub)
	accountHandler := NewAccountHandler(deps.AuthService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.InviteService, deps.LedgerService, deps.AuthService, deps.Metrics, deps.WebSocketHub)
	resellerHandler := NewResellerHandler(deps.LedgerService, deps.KeyService, deps.Config.License.DefaultFormat, deps.Metrics, deps.WebSocketHub)
	appHandler := NewApplicationHandler(deps.AppService)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, deps.Logger)
	loginLimit := middleware.StoreRateLimit(deps.Store, "login", int64(deps.Config.RateLimit.LoginPerMinute), time.Minute)
	validateLimit := middleware.IPRateLimit(float64(deps.Config.RateLimit.ValidatePerSecond), deps.Config.RateLimit.ValidatePerSecond*2)

	// 运维端点
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	router.GET("/ws", deps.WebSocketHub.HandleConnection)

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			OK(c, gin.H{"status": "ok"})
		})

		// 受保护客户端校验（无账户令牌，仅限流）
		api.POST("/validate", validateLimit, validateHandler.Validate)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", loginLimit, authHandler.Register)
			authGroup.POST("/login", loginLimit, authHandler.Login)
			authGroup.POST("/verify", authHandler.Verify)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		keys := api.Group("/keys", jwtAuth.RequireAuth())
		{
			keys.POST("/generate", keyHandler.Generate)
			keys.GET("/list", keyHandler.List)
			keys.GET("/stats", keyHandler.Stats)
			keys.POST("/addtime", keyHandler.AddTime)
			keys.POST("/freeze", keyHandler.Freeze)
			keys.POST("/resethwid", keyHandler.ResetHwid)
			keys.POST("/bulk-delete", keyHandler.BulkDelete)
			keys.DELETE("/:key", keyHandler.Delete)
		}

		account := api.Group("/account", jwtAuth.RequireAuth())
		{
			account.POST("/update-username", accountHandler.UpdateUsername)
			account.POST("/update-email", accountHandler.UpdateEmail)
			account.POST("/update-password", accountHandler.UpdatePassword)
			account.POST("/delete", accountHandler.Delete)
		}

		apps := api.Group("/applications", jwtAuth.RequireAuth())
		{
			apps.GET("", appHandler.List)
			apps.POST("", appHandler.Create)
			apps.POST("/:id/rotate", appHandler.RotateToken)
			apps.DELETE("/:id", appHandler.Delete)
		}

		reseller := api.Group("/reseller", jwtAuth.RequireAuth(), middleware.RequireRole("reseller", "admin"))
		{
			reseller.GET("/balance", resellerHandler.Balance)
			reseller.GET("/keys", resellerHandler.Keys)
			reseller.POST("/keys/generate", resellerHandler.Issue)
		}

		admin := api.Group("/admin", jwtAuth.RequireAuth(), middleware.RequireAdmin())
		{
			admin.GET("/users", adminHandler.ListUsers)
			admin.POST("/users", adminHandler.CreateUser)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
			admin.POST("/users/:id/ban", adminHandler.BanUser)
			admin.POST("/users/:id/kick", adminHandler.KickUser)
			admin.POST("/users/:id/role", adminHandler.SetRole)

			admin.GET("/invites", adminHandler.ListInvites)
			admin.POST("/invites", adminHandler.GenerateInvites)
			admin.DELETE("/invites/:code", adminHandler.DeleteInvite)

			admin.POST("/resellers/:id/balance", adminHandler.SetBalance)
			admin.POST("/resellers/:id/add-balance", adminHandler.AddBalance)
			admin.POST("/resellers/:id/products", adminHandler.SetProducts)

			admin.GET("/stats", adminHandler.Statistics)
		}
	}

	return router
}
