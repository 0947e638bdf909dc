package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	jwtpkg "astreon/backend/internal/auth/jwt"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

var (
	// ErrInvalidInvite 邀请码不存在或已被使用
	ErrInvalidInvite = errors.New("invalid or already used invite code")
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidPassword 无效的密码
	ErrInvalidPassword = errors.New("password must be at least 6 characters")
	// ErrInvalidUsername 无效的用户名
	ErrInvalidUsername = errors.New("username must be 3-32 characters")
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = errors.New("username already taken")
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = errors.New("email already registered")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials 凭证无效（不区分用户不存在与密码错误，避免用户名枚举）
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserBanned 账户已被封禁
	ErrUserBanned = errors.New("account is banned")
	// ErrInvalidToken 令牌无效或已过期
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrSessionStoreReset 令牌签名有效但对应账户已不在存储中。
	// 与普通无效令牌区分开，客户端据此可尝试一次性恢复握手。
	ErrSessionStoreReset = errors.New("database reset: session no longer exists")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service 认证与访问控制服务
type Service struct {
	store storage.Store
	jwt   *jwtpkg.Manager
}

// NewService 创建认证服务
func NewService(store storage.Store, jwtManager *jwtpkg.Manager) *Service {
	return &Service{
		store: store,
		jwt:   jwtManager,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	InviteCode string
	Username   string
	Email      string
	Password   string
	IP         string
}

// AuthResult 注册/登录结果
type AuthResult struct {
	User   *domain.User
	Tokens *jwtpkg.TokenPair
}

// Register 邀请制注册
//
// 邀请码置位在创建用户之后执行：并发竞争同一邀请码时，
// 竞争失败方回滚刚创建的用户，邀请码保持单调 false→true。
func (s *Service) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if !emailRegex.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	// 邀请码预检（快速失败；真正的单次使用由 MarkInviteUsed 保证）
	hash := domain.HashInviteCode(strings.TrimSpace(input.InviteCode))
	invite, err := s.store.GetInviteByHash(hash)
	if err != nil || invite.IsUsed {
		return nil, ErrInvalidInvite
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginIP:  input.IP,
	}

	if err := s.store.CreateUser(user); err != nil {
		switch {
		case errors.Is(err, storage.ErrUsernameExists):
			return nil, ErrUsernameExists
		case errors.Is(err, storage.ErrEmailExists):
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.store.MarkInviteUsed(hash, username, now); err != nil {
		// 竞争失败：邀请码已被抢先用掉，回滚刚创建的用户
		_ = s.store.DeleteUser(user.ID)
		return nil, ErrInvalidInvite
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	_ = s.store.CacheSession(sessionKey(tokens.RefreshToken), user.ID, s.jwt.RefreshExpiry())

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login 用户登录
func (s *Service) Login(username, password, ip string) (*AuthResult, error) {
	identifier := strings.TrimSpace(username)

	// 优先按用户名查找，失败后尝试邮箱
	user, err := s.store.GetUserByUsername(identifier)
	if err != nil {
		user, err = s.store.GetUserByEmail(strings.ToLower(identifier))
		if err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	_ = s.store.CacheSession(sessionKey(tokens.RefreshToken), user.ID, s.jwt.RefreshExpiry())

	_ = s.store.UpdateLastLogin(user.ID, ip)

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Verify 验证令牌并返回账户
//
// 只读操作，除 lastLogin/lastIp 簿记外无副作用。令牌签名有效但
// 账户已不存在时返回 ErrSessionStoreReset，供客户端做一次性恢复。
func (s *Service) Verify(tokenString string) (*domain.User, error) {
	claims, err := s.jwt.ValidateToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrSessionStoreReset
		}
		return nil, err
	}

	// 版本不匹配说明令牌已被踢出/轮换吊销
	if claims.TokenVersion != user.TokenVersion {
		return nil, ErrInvalidToken
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}

	return user, nil
}

// RefreshAccessToken 使用刷新令牌换取新的访问令牌
//
// 刷新令牌除签名校验外还要求在服务端会话表中登记（登录时写入）。
// 存储清空后签名有效的刷新令牌也会被拒，与 Verify 的
// ErrSessionStoreReset 语义一致。
func (s *Service) RefreshAccessToken(refreshToken string) (string, error) {
	claims, err := s.jwt.ValidateToken(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}

	ownerID, err := s.store.GetCachedSession(sessionKey(refreshToken))
	if err != nil || ownerID != claims.UserID {
		return "", ErrSessionStoreReset
	}

	user, err := s.store.GetUserByID(claims.UserID)
	if err != nil {
		return "", ErrSessionStoreReset
	}
	if claims.TokenVersion != user.TokenVersion || user.IsBanned {
		return "", ErrInvalidToken
	}

	return s.jwt.RefreshAccessToken(refreshToken)
}

// Logout 注销刷新令牌对应的会话
//
// 访问令牌仍可用到自然过期；需要立即吊销时用 Kick。
func (s *Service) Logout(refreshToken string) error {
	return s.store.DeleteCachedSession(sessionKey(refreshToken))
}

// Kick 轮换令牌版本，立即吊销该账户所有已签发令牌（不删除账户）
func (s *Service) Kick(userID string) error {
	if err := s.store.BumpTokenVersion(userID); err != nil {
		return ErrUserNotFound
	}
	return nil
}

// SetBanned 设置封禁标志
//
// 不主动吊销现有令牌：封禁后的 login/verify 都会失败，
// 在途请求允许在客户端下一次 verify 周期内完成（可接受的陈旧窗口）。
func (s *Service) SetBanned(userID string, banned bool) error {
	if err := s.store.SetUserBanned(userID, banned); err != nil {
		return ErrUserNotFound
	}
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUsername 修改用户名
func (s *Service) UpdateUsername(userID, username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return ErrInvalidUsername
	}
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	user.Username = username
	user.UpdatedAt = time.Now()
	if err := s.store.UpdateUserProfile(user); err != nil {
		if errors.Is(err, storage.ErrUsernameExists) {
			return ErrUsernameExists
		}
		return err
	}
	return nil
}

// UpdateEmail 修改邮箱
func (s *Service) UpdateEmail(userID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	user.Email = email
	user.UpdatedAt = time.Now()
	if err := s.store.UpdateUserProfile(user); err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// ChangePassword 修改密码并吊销现有令牌
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return ErrUserNotFound
	}
	if !CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	// 密码与令牌版本一并更新，旧令牌作废，强制重新登录
	return s.store.UpdateUserPassword(userID, newHash)
}

// DeleteAccount 删除账户（级联删除应用与卡密）
func (s *Service) DeleteAccount(userID string) error {
	if err := s.store.DeleteUser(userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// sessionKey 刷新令牌在会话表中的键（只存哈希，不落原文）
func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidatePassword 验证密码强度
func ValidatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
