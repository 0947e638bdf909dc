package hybrid

import (
	"fmt"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage/redis"
	sqlstore "astreon/backend/internal/storage/sql"
)

// keyCacheTTL 卡密缓存时长
//
// 校验接口的热路径读多写少，短 TTL 限制绑定/冻结写入后
// 其他实例看到陈旧副本的窗口。
const keyCacheTTL = 30 * time.Second

// Store 混合存储：SQL 持久层 + Redis 缓存层
//
// 持久数据全部落 SQL；卡密读取走缓存旁路（cache-aside），
// 限流计数与会话改由 Redis 承担，多实例部署共享。
type Store struct {
	*sqlstore.Store
	cache *redis.Cache
}

// NewStore 创建混合存储实例
func NewStore(
	dbType, dsn string,
	maxOpenConns, maxIdleConns int,
	connMaxLifetime time.Duration,
	redisAddr, redisPassword string,
	redisDB int,
) (*Store, error) {
	db, err := sqlstore.NewStore(dbType, dsn, maxOpenConns, maxIdleConns, connMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		Store: db,
		cache: cache,
	}, nil
}

// Close 关闭 SQL 与 Redis 连接
func (s *Store) Close() error {
	cacheErr := s.cache.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return cacheErr
}

// Health SQL 与 Redis 任一不可用即不健康
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return err
	}
	return s.cache.Ping()
}

// ========== Key Repository（缓存旁路） ==========

// GetKeyByValue 先查缓存，未命中回源并回填
func (s *Store) GetKeyByValue(value string) (*domain.LicenseKey, error) {
	if key, err := s.cache.GetCachedKey(value); err == nil {
		return key, nil
	}

	key, err := s.Store.GetKeyByValue(value)
	if err != nil {
		return nil, err
	}
	_ = s.cache.CacheKey(key, keyCacheTTL)
	return key, nil
}

// UpdateKey 写穿 SQL 后使缓存失效
func (s *Store) UpdateKey(key *domain.LicenseKey) error {
	if err := s.Store.UpdateKey(key); err != nil {
		return err
	}
	return s.cache.InvalidateKey(key.Key)
}

// DeleteKey 删除后使缓存失效
func (s *Store) DeleteKey(value string) error {
	if err := s.Store.DeleteKey(value); err != nil {
		return err
	}
	return s.cache.InvalidateKey(value)
}

// BindHwid CAS 绑定成功与否都使缓存失效（绑定失败也会刷新簿记字段）
func (s *Store) BindHwid(value, hwid, ip string, now time.Time) error {
	err := s.Store.BindHwid(value, hwid, ip, now)
	_ = s.cache.InvalidateKey(value)
	return err
}

// TouchKeyCheck 簿记更新后使缓存失效
func (s *Store) TouchKeyCheck(value, ip string, now time.Time) error {
	if err := s.Store.TouchKeyCheck(value, ip, now); err != nil {
		return err
	}
	return s.cache.InvalidateKey(value)
}

// ========== RateLimit / Session（Redis 承担） ==========

// IncrementRateLimit 递增共享限流计数
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(key, window)
}

// GetRateLimit 读取共享限流计数
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.cache.GetRateLimit(key)
}

// CacheSession 缓存会话到 Redis
func (s *Store) CacheSession(sessionID, userID string, ttl time.Duration) error {
	return s.cache.CacheSession(sessionID, userID, ttl)
}

// GetCachedSession 读取 Redis 会话
func (s *Store) GetCachedSession(sessionID string) (string, error) {
	return s.cache.GetCachedSession(sessionID)
}

// DeleteCachedSession 删除 Redis 会话
func (s *Store) DeleteCachedSession(sessionID string) error {
	return s.cache.DeleteCachedSession(sessionID)
}
