package storage

import (
	"errors"
	"time"

	"astreon/backend/internal/domain"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = errors.New("username already exists")
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = errors.New("email already exists")
	// ErrKeyNotFound 卡密不存在
	ErrKeyNotFound = errors.New("license key not found")
	// ErrKeyExists 卡密字符串冲突（全局唯一索引）
	ErrKeyExists = errors.New("license key already exists")
	// ErrHwidBound 卡密已绑定其他硬件（CAS 首绑失败）
	ErrHwidBound = errors.New("license key already bound to a hwid")
	// ErrInviteNotFound 邀请码不存在
	ErrInviteNotFound = errors.New("invite code not found")
	// ErrInviteUsed 邀请码已被使用（单调 false→true 已发生）
	ErrInviteUsed = errors.New("invite code already used")
	// ErrApplicationNotFound 应用不存在
	ErrApplicationNotFound = errors.New("application not found")
)

// UserRepository 定义用户数据存取操作。
//
// 写操作按字段拆分：除 UpdateUserProfile（用户名/邮箱）外，
// 余额、角色、封禁、令牌版本各自有定向变更方法。没有整行写回，
// 管理操作不会覆盖并发进行中的账本扣费。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)

	// UpdateUserProfile 只更新用户名/邮箱/updated_at，唯一性约束同 CreateUser。
	UpdateUserProfile(user *domain.User) error
	// UpdateUserPassword 更新密码哈希并递增令牌版本（旧令牌全部作废）。
	UpdateUserPassword(userID, passwordHash string) error
	// BumpTokenVersion 原子递增令牌版本。
	BumpTokenVersion(userID string) error
	SetUserBanned(userID string, banned bool) error
	SetUserRole(userID string, role domain.UserRole) error
	// SetUserBalance 写入余额；调用方需持有该账户的账本锁。
	SetUserBalance(userID string, balance float64) error
	SetUserProducts(userID string, products []string) error

	UpdateLastLogin(userID, ip string) error
	DeleteUser(userID string) error // 级联删除其应用与卡密
}

// KeyRepository 定义卡密数据存取操作。
type KeyRepository interface {
	SaveKey(key *domain.LicenseKey) error
	GetKeyByValue(value string) (*domain.LicenseKey, error)
	ListKeysByUserID(userID string) ([]domain.LicenseKey, error)
	ListKeysByCreator(creatorID string) ([]domain.LicenseKey, error)
	UpdateKey(key *domain.LicenseKey) error
	DeleteKey(value string) error

	// BindHwid 对未绑定的卡密执行首次硬件绑定（比较并交换）。
	// 并发竞争同一张卡密时恰好一个调用成功，其余返回 ErrHwidBound。
	BindHwid(value, hwid, ip string, now time.Time) error

	// TouchKeyCheck 更新 lastCheckAt/lastIp，成功与失败的校验都要记录。
	TouchKeyCheck(value, ip string, now time.Time) error
}

// InviteRepository 定义邀请码数据存取操作。
type InviteRepository interface {
	SaveInvite(invite *domain.InviteCode) error
	GetInviteByHash(hash string) (*domain.InviteCode, error)
	ListInvites() ([]domain.InviteCode, error)
	DeleteInvite(hash string) error

	// MarkInviteUsed 单调置位：已使用的邀请码返回 ErrInviteUsed。
	// 并发注册竞争同一邀请码时恰好一个调用成功。
	MarkInviteUsed(hash, usedBy string, now time.Time) error
}

// ApplicationRepository 定义应用子作用域数据存取操作。
type ApplicationRepository interface {
	SaveApplication(app *domain.Application) error
	GetApplication(id string) (*domain.Application, error)
	GetApplicationByToken(token string) (*domain.Application, error)
	ListApplicationsByUserID(userID string) ([]domain.Application, error)
	DeleteApplication(id string) error
}

// AdminRepository 定义管理面数据存取操作。
type AdminRepository interface {
	ListUsers(page, pageSize int, search string, role *domain.UserRole) ([]domain.User, int, error)
	GetSystemStatistics() (*domain.SystemStatistics, error)
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(key string, window time.Duration) (int64, error)
	GetRateLimit(key string) (int64, error)
}

// SessionRepository 定义会话缓存操作。
type SessionRepository interface {
	CacheSession(sessionID, userID string, ttl time.Duration) error
	GetCachedSession(sessionID string) (string, error)
	DeleteCachedSession(sessionID string) error
}

// Store 定义完整的存储接口。
type Store interface {
	UserRepository
	KeyRepository
	InviteRepository
	ApplicationRepository
	AdminRepository
	RateLimitRepository
	SessionRepository

	Close() error
	Health() error
}
