package sql

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"astreon/backend/internal/domain"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
//
// 业务查询走 database/sql 手写语句，表结构迁移走 GORM AutoMigrate。
// 限流计数与会话缓存是易失数据，单机部署时落在进程内存，
// 多实例部署用 hybrid 存储把这两类换成 Redis。
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"

	volatile volatileState
}

// volatileState 进程内的限流/会话计数
type volatileState struct {
	mu         sync.Mutex
	rateLimits map[string]*rateEntry
	sessions   map[string]sessionEntry
}

type rateEntry struct {
	count    int64
	expireAt time.Time
}

type sessionEntry struct {
	userID   string
	expireAt time.Time
}

// NewStore 创建 SQL 数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	switch driverName {
	case "mysql":
		gormDB, err = gorm.Open(gormmysql.New(gormmysql.Config{Conn: db}), gormConfig)
	case "postgres":
		gormDB, err = gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
		volatile: volatileState{
			rateLimits: make(map[string]*rateEntry),
			sessions:   make(map[string]sessionEntry),
		},
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) migrate() error {
	if s.gormDB == nil {
		return nil
	}
	return s.gormDB.AutoMigrate(
		&domain.User{},
		&domain.LicenseKey{},
		&domain.InviteCode{},
		&domain.Application{},
	)
}

// rebind 把 `?` 占位符改写成 PostgreSQL 的 `$n` 形式
func (s *Store) rebind(query string) string {
	if s.driverName != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isDuplicateErr 判断是否为唯一索引冲突
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}

// ========== RateLimit Repository（进程内实现） ==========

// IncrementRateLimit 递增窗口计数
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.volatile.mu.Lock()
	defer s.volatile.mu.Unlock()

	now := time.Now()
	entry, ok := s.volatile.rateLimits[key]
	if !ok || now.After(entry.expireAt) {
		entry = &rateEntry{expireAt: now.Add(window)}
		s.volatile.rateLimits[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// GetRateLimit 获取当前窗口计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.volatile.mu.Lock()
	defer s.volatile.mu.Unlock()

	entry, ok := s.volatile.rateLimits[key]
	if !ok || time.Now().After(entry.expireAt) {
		return 0, nil
	}
	return entry.count, nil
}

// ========== Session Repository（进程内实现） ==========

// CacheSession 缓存会话
func (s *Store) CacheSession(sessionID, userID string, ttl time.Duration) error {
	s.volatile.mu.Lock()
	defer s.volatile.mu.Unlock()
	s.volatile.sessions[sessionID] = sessionEntry{
		userID:   userID,
		expireAt: time.Now().Add(ttl),
	}
	return nil
}

// GetCachedSession 读取缓存会话
func (s *Store) GetCachedSession(sessionID string) (string, error) {
	s.volatile.mu.Lock()
	defer s.volatile.mu.Unlock()
	entry, ok := s.volatile.sessions[sessionID]
	if !ok || time.Now().After(entry.expireAt) {
		return "", fmt.Errorf("session not found")
	}
	return entry.userID, nil
}

// DeleteCachedSession 删除缓存会话
func (s *Store) DeleteCachedSession(sessionID string) error {
	s.volatile.mu.Lock()
	defer s.volatile.mu.Unlock()
	delete(s.volatile.sessions, sessionID)
	return nil
}
