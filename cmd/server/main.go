package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"astreon/backend/internal/auth"
	jwtpkg "astreon/backend/internal/auth/jwt"
	"astreon/backend/internal/config"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/health"
	"astreon/backend/internal/logger"
	"astreon/backend/internal/monitoring"
	"astreon/backend/internal/service"
	"astreon/backend/internal/storage"
	"astreon/backend/internal/storage/hybrid"
	"astreon/backend/internal/storage/memory"
	sqlstore "astreon/backend/internal/storage/sql"
	httptransport "astreon/backend/internal/transport/http"
	"astreon/backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting astreon server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewChecker(store, log)

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(store, jwtManager)
	keyService := service.NewKeyService(store, cfg.License.MaxBatchSize)
	activationService := service.NewActivationService(store)
	ledgerService := service.NewLedgerService(store, keyService, cfg.License.ResellerPrice)
	inviteService := service.NewInviteService(store)
	appService := service.NewApplicationService(store)
	bulkService := service.NewBulkService(keyService)
	adminService := service.NewAdminService(store)

	// 开发模式：引导默认管理员和一个可用邀请码
	if cfg.Log.Development {
		bootstrapDevData(store, inviteService, log)
	}

	wsHub := websocket.NewHub(authService, cfg.CORS.AllowedOrigins, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:            cfg,
		AuthService:       authService,
		KeyService:        keyService,
		ActivationService: activationService,
		LedgerService:     ledgerService,
		InviteService:     inviteService,
		AppService:        appService,
		BulkService:       bulkService,
		AdminService:      adminService,
		Store:             store,
		Metrics:           metrics,
		Health:            healthChecker,
		WebSocketHub:      wsHub,
		Logger:            log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅退出
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}

// initializeStorage 根据配置选择存储后端
//
// 未配置数据库时用内存存储（开发）；配置了数据库且启用 Redis 时
// 用混合存储，否则纯 SQL。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	if cfg.Redis.Enabled {
		log.Info("using hybrid storage",
			zap.String("database", cfg.Database.Type),
			zap.String("redis", cfg.Redis.Address),
		)
		return hybrid.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
	}

	log.Info("using sql storage", zap.String("database", cfg.Database.Type))
	return sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
}

// bootstrapDevData 创建开发用的默认管理员和邀请码
func bootstrapDevData(store storage.Store, invites *service.InviteService, log *zap.Logger) {
	if _, err := store.GetUserByUsername("admin"); err == nil {
		return
	}

	hash, err := auth.HashPassword("admin123")
	if err != nil {
		log.Warn("failed to bootstrap dev admin", zap.Error(err))
		return
	}
	now := time.Now()
	admin := &domain.User{
		ID:           uuid.New().String(),
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(admin); err != nil {
		log.Warn("failed to bootstrap dev admin", zap.Error(err))
		return
	}
	log.Info("dev admin created", zap.String("username", "admin"), zap.String("password", "admin123"))

	generated, err := invites.Generate(admin.ID, 1)
	if err != nil || len(generated) == 0 {
		log.Warn("failed to bootstrap dev invite", zap.Error(err))
		return
	}
	log.Info("dev invite code", zap.String("code", generated[0].Code))
}
