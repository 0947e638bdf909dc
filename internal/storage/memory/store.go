package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

// Store 使用内存保存账户与卡密数据，主要用于开发验证和测试。
type Store struct {
	mu         sync.RWMutex
	users      map[string]*domain.User        // userID -> user
	byUsername map[string]string              // lower(username) -> userID
	byEmail    map[string]string              // lower(email) -> userID
	keys       map[string]*domain.LicenseKey  // key 字符串 -> record
	invites    map[string]*domain.InviteCode  // codeHash -> invite
	apps       map[string]*domain.Application // appID -> application
	byAppToken map[string]string              // token -> appID

	sessions   map[string]sessionEntry
	rateLimits map[string]*rateLimitEntry
}

type sessionEntry struct {
	UserID    string
	ExpiresAt time.Time
}

type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		keys:       make(map[string]*domain.LicenseKey),
		invites:    make(map[string]*domain.InviteCode),
		apps:       make(map[string]*domain.Application),
		byAppToken: make(map[string]string),
		sessions:   make(map[string]sessionEntry),
		rateLimits: make(map[string]*rateLimitEntry),
	}
}

// ========== UserRepository ==========

// CreateUser 创建新用户，用户名与邮箱全局唯一。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[strings.ToLower(user.Username)]; ok {
		return storage.ErrUsernameExists
	}
	if _, ok := s.byEmail[strings.ToLower(user.Email)]; ok {
		return storage.ErrEmailExists
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byUsername[strings.ToLower(user.Username)] = user.ID
	s.byEmail[strings.ToLower(user.Email)] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// GetUserByUsername 根据用户名获取用户（大小写不敏感）。
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// GetUserByEmail 根据邮箱获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// UpdateUserProfile 更新用户名/邮箱，维护索引。
//
// 只写身份字段：余额、角色、封禁、令牌版本各有专属变更方法，
// 避免整行写回覆盖并发变更。
func (s *Store) UpdateUserProfile(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	if !strings.EqualFold(old.Username, user.Username) {
		if _, taken := s.byUsername[strings.ToLower(user.Username)]; taken {
			return storage.ErrUsernameExists
		}
		delete(s.byUsername, strings.ToLower(old.Username))
		s.byUsername[strings.ToLower(user.Username)] = user.ID
	}
	if !strings.EqualFold(old.Email, user.Email) {
		if _, taken := s.byEmail[strings.ToLower(user.Email)]; taken {
			return storage.ErrEmailExists
		}
		delete(s.byEmail, strings.ToLower(old.Email))
		s.byEmail[strings.ToLower(user.Email)] = user.ID
	}

	old.Username = user.Username
	old.Email = user.Email
	old.UpdatedAt = user.UpdatedAt
	return nil
}

// mutateUser 在锁内对存量记录执行单字段变更。
func (s *Store) mutateUser(userID string, fn func(u *domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	fn(user)
	user.UpdatedAt = time.Now()
	return nil
}

// UpdateUserPassword 更新密码哈希并递增令牌版本。
func (s *Store) UpdateUserPassword(userID, passwordHash string) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.TokenVersion++
	})
}

// BumpTokenVersion 递增令牌版本，吊销已签发令牌。
func (s *Store) BumpTokenVersion(userID string) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.TokenVersion++
	})
}

// SetUserBanned 设置封禁标志。
func (s *Store) SetUserBanned(userID string, banned bool) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.IsBanned = banned
	})
}

// SetUserRole 变更角色。
func (s *Store) SetUserRole(userID string, role domain.UserRole) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.Role = role
	})
}

// SetUserBalance 写入余额（调用方需持有账户锁）。
func (s *Store) SetUserBalance(userID string, balance float64) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.Balance = balance
	})
}

// SetUserProducts 写入产品许可列表。
func (s *Store) SetUserProducts(userID string, products []string) error {
	return s.mutateUser(userID, func(u *domain.User) {
		u.AllowedProducts = append([]string(nil), products...)
	})
}

// UpdateLastLogin 记录最后登录时间与 IP。
func (s *Store) UpdateLastLogin(userID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now()
	user.LastLoginAt = &now
	if ip != "" {
		user.LastLoginIP = ip
	}
	return nil
}

// DeleteUser 删除用户并级联删除其应用与卡密。
func (s *Store) DeleteUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	for value, key := range s.keys {
		if key.UserID == userID {
			delete(s.keys, value)
		}
	}
	for id, app := range s.apps {
		if app.UserID == userID {
			delete(s.byAppToken, app.Token)
			delete(s.apps, id)
		}
	}

	delete(s.byUsername, strings.ToLower(user.Username))
	delete(s.byEmail, strings.ToLower(user.Email))
	delete(s.users, userID)
	return nil
}

// ========== KeyRepository ==========

// SaveKey 保存卡密记录，卡密字符串全局唯一。
func (s *Store) SaveKey(key *domain.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key.Key]; ok {
		return storage.ErrKeyExists
	}
	cp := *key
	s.keys[key.Key] = &cp
	return nil
}

// GetKeyByValue 根据卡密字符串获取记录。
func (s *Store) GetKeyByValue(value string) (*domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[value]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	cp := *key
	return &cp, nil
}

// ListKeysByUserID 返回归属于指定账户的全部卡密。
func (s *Store) ListKeysByUserID(userID string) ([]domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LicenseKey, 0)
	for _, key := range s.keys {
		if key.UserID == userID {
			result = append(result, *key)
		}
	}
	sortKeysByCreation(result)
	return result, nil
}

// ListKeysByCreator 返回由指定账户签发的全部卡密（经销商视图）。
func (s *Store) ListKeysByCreator(creatorID string) ([]domain.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LicenseKey, 0)
	for _, key := range s.keys {
		if key.CreatedBy == creatorID {
			result = append(result, *key)
		}
	}
	sortKeysByCreation(result)
	return result, nil
}

// UpdateKey 整体更新卡密记录。
func (s *Store) UpdateKey(key *domain.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key.Key]; !ok {
		return storage.ErrKeyNotFound
	}
	cp := *key
	s.keys[key.Key] = &cp
	return nil
}

// DeleteKey 删除卡密；不存在时返回 ErrKeyNotFound，调用方据此区分真实成功。
func (s *Store) DeleteKey(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[value]; !ok {
		return storage.ErrKeyNotFound
	}
	delete(s.keys, value)
	return nil
}

// BindHwid 对未绑定的卡密执行首次硬件绑定（比较并交换）。
func (s *Store) BindHwid(value, hwid, ip string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[value]
	if !ok {
		return storage.ErrKeyNotFound
	}
	key.LastCheckAt = &now
	if ip != "" {
		key.LastIP = ip
	}
	if key.HWID != nil {
		// 竞争失败方：绑定已被他人抢先完成
		return storage.ErrHwidBound
	}

	h := hwid
	key.HWID = &h
	key.UsedBy = &h
	key.UsedAt = &now
	return nil
}

// TouchKeyCheck 更新校验时间戳，成功与失败的校验都要记录。
func (s *Store) TouchKeyCheck(value, ip string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[value]
	if !ok {
		return storage.ErrKeyNotFound
	}
	key.LastCheckAt = &now
	if ip != "" {
		key.LastIP = ip
	}
	return nil
}

// ========== InviteRepository ==========

// SaveInvite 保存邀请码（仅哈希）。
func (s *Store) SaveInvite(invite *domain.InviteCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *invite
	s.invites[invite.CodeHash] = &cp
	return nil
}

// GetInviteByHash 根据哈希获取邀请码。
func (s *Store) GetInviteByHash(hash string) (*domain.InviteCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invite, ok := s.invites[hash]
	if !ok {
		return nil, storage.ErrInviteNotFound
	}
	cp := *invite
	return &cp, nil
}

// ListInvites 返回全部邀请码的快照。
func (s *Store) ListInvites() ([]domain.InviteCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InviteCode, 0, len(s.invites))
	for _, invite := range s.invites {
		result = append(result, *invite)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteInvite 删除邀请码。
func (s *Store) DeleteInvite(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invites[hash]; !ok {
		return storage.ErrInviteNotFound
	}
	delete(s.invites, hash)
	return nil
}

// MarkInviteUsed 单调置位，并发竞争时恰好一个调用成功。
func (s *Store) MarkInviteUsed(hash, usedBy string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invite, ok := s.invites[hash]
	if !ok {
		return storage.ErrInviteNotFound
	}
	if invite.IsUsed {
		return storage.ErrInviteUsed
	}
	invite.IsUsed = true
	invite.UsedBy = &usedBy
	invite.UsedAt = &now
	return nil
}

// ========== ApplicationRepository ==========

// SaveApplication 保存应用。
//
// 令牌轮换时旧令牌的索引项一并移除，轮换即吊销。
func (s *Store) SaveApplication(app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.apps[app.ID]; ok && old.Token != app.Token {
		delete(s.byAppToken, old.Token)
	}
	cp := *app
	s.apps[app.ID] = &cp
	s.byAppToken[app.Token] = app.ID
	return nil
}

// GetApplication 根据 ID 获取应用。
func (s *Store) GetApplication(id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, storage.ErrApplicationNotFound
	}
	cp := *app
	return &cp, nil
}

// GetApplicationByToken 根据令牌获取应用。
func (s *Store) GetApplicationByToken(token string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAppToken[token]
	if !ok {
		return nil, storage.ErrApplicationNotFound
	}
	cp := *s.apps[id]
	return &cp, nil
}

// ListApplicationsByUserID 返回指定账户的全部应用。
func (s *Store) ListApplicationsByUserID(userID string) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Application, 0)
	for _, app := range s.apps {
		if app.UserID == userID {
			result = append(result, *app)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteApplication 删除应用。
//
// 其命名空间下的卡密保留，悬空的 applicationId 由读取方容忍。
func (s *Store) DeleteApplication(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return storage.ErrApplicationNotFound
	}
	delete(s.byAppToken, app.Token)
	delete(s.apps, id)
	return nil
}

// ========== AdminRepository ==========

// ListUsers 分页返回用户列表，支持用户名/邮箱搜索与角色过滤。
func (s *Store) ListUsers(page, pageSize int, search string, role *domain.UserRole) ([]domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]domain.User, 0, len(s.users))
	needle := strings.ToLower(search)
	for _, user := range s.users {
		if role != nil && user.Role != *role {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(user.Username), needle) &&
			!strings.Contains(strings.ToLower(user.Email), needle) {
			continue
		}
		filtered = append(filtered, *user)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.User{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

// GetSystemStatistics 返回全系统统计。
func (s *Store) GetSystemStatistics() (*domain.SystemStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.SystemStatistics{
		TotalUsers:   len(s.users),
		TotalKeys:    len(s.keys),
		TotalInvites: len(s.invites),
	}
	for _, user := range s.users {
		switch user.Role {
		case domain.RoleAdmin:
			stats.TotalAdmins++
		case domain.RoleReseller:
			stats.TotalReseller++
		}
		if user.IsBanned {
			stats.BannedUsers++
		}
	}
	for _, invite := range s.invites {
		if !invite.IsUsed {
			stats.UnusedInvites++
		}
	}
	return stats, nil
}

// ========== RateLimitRepository ==========

// IncrementRateLimit 递增限流计数，窗口过期后重新计数。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		s.rateLimits[key] = &rateLimitEntry{Count: 1, ExpiresAt: now.Add(window)}
		return 1, nil
	}
	entry.Count++
	return entry.Count, nil
}

// GetRateLimit 获取当前限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.rateLimits[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return 0, nil
	}
	return entry.Count, nil
}

// ========== SessionRepository ==========

// CacheSession 缓存会话。
func (s *Store) CacheSession(sessionID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = sessionEntry{UserID: userID, ExpiresAt: time.Now().Add(ttl)}
	return nil
}

// GetCachedSession 读取缓存的会话。
func (s *Store) GetCachedSession(sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionID]
	if !ok || time.Now().After(entry.ExpiresAt) {
		return "", nil
	}
	return entry.UserID, nil
}

// DeleteCachedSession 删除缓存的会话。
func (s *Store) DeleteCachedSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ========== 工具方法 ==========

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error {
	return nil
}

// Health 存储健康检查。
func (s *Store) Health() error {
	return nil
}

func sortKeysByCreation(keys []domain.LicenseKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}
