package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"astreon/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现
//
// 承担两类数据：卡密热读缓存（校验接口命中路径）和
// 限流计数/会话这类天然带 TTL 的易失数据。
type Cache struct {
	client *goredis.Client
	ctx    context.Context
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping 测试连接
func (c *Cache) Ping() error {
	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// ========== 卡密缓存 ==========

func keyCacheKey(value string) string {
	return "key:" + value
}

// CacheKey 缓存卡密记录
func (c *Cache) CacheKey(key *domain.LicenseKey, ttl time.Duration) error {
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, keyCacheKey(key.Key), data, ttl).Err()
}

// GetCachedKey 获取缓存的卡密记录
func (c *Cache) GetCachedKey(value string) (*domain.LicenseKey, error) {
	data, err := c.client.Get(c.ctx, keyCacheKey(value)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var key domain.LicenseKey
	if err := json.Unmarshal([]byte(data), &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// InvalidateKey 删除卡密缓存（任何写操作后调用）
func (c *Cache) InvalidateKey(value string) error {
	return c.client.Del(c.ctx, keyCacheKey(value)).Err()
}

// ========== 限流计数 ==========

// IncrementRateLimit 递增窗口计数，首个递增设置过期
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	redisKey := "ratelimit:" + key
	count, err := c.client.Incr(c.ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = c.client.Expire(c.ctx, redisKey, window).Err()
	}
	return count, nil
}

// GetRateLimit 获取当前窗口计数
func (c *Cache) GetRateLimit(key string) (int64, error) {
	count, err := c.client.Get(c.ctx, "ratelimit:"+key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return count, err
}

// ========== 会话缓存 ==========

// CacheSession 缓存会话
func (c *Cache) CacheSession(sessionID, userID string, ttl time.Duration) error {
	return c.client.Set(c.ctx, "session:"+sessionID, userID, ttl).Err()
}

// GetCachedSession 读取缓存会话
func (c *Cache) GetCachedSession(sessionID string) (string, error) {
	userID, err := c.client.Get(c.ctx, "session:"+sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrCacheMiss
	}
	return userID, err
}

// DeleteCachedSession 删除缓存会话
func (c *Cache) DeleteCachedSession(sessionID string) error {
	return c.client.Del(c.ctx, "session:"+sessionID).Err()
}
