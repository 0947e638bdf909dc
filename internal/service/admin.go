package service

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"astreon/backend/internal/auth"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

var (
	// ErrInvalidRole 角色不合法
	ErrInvalidRole = errors.New("invalid role")
	// ErrSelfDelete 管理员不能删除自己的账户
	ErrSelfDelete = errors.New("cannot delete your own account")
)

// AdminService 管理面板操作
type AdminService struct {
	store storage.Store
}

// NewAdminService 创建管理服务
func NewAdminService(store storage.Store) *AdminService {
	return &AdminService{store: store}
}

// UserPage 用户列表分页结果
type UserPage struct {
	Users    []domain.User `json:"users"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// ListUsers 分页列出用户，支持按用户名/邮箱搜索和按角色过滤
func (s *AdminService) ListUsers(page, pageSize int, search string, role *domain.UserRole) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	users, total, err := s.store.ListUsers(page, pageSize, search, role)
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Total: total, Page: page, PageSize: pageSize}, nil
}

// UserDetail 用户详情（含其卡密）
type UserDetail struct {
	User domain.User         `json:"user"`
	Keys []domain.LicenseKey `json:"keys"`
}

// GetUser 返回单个用户及其全部卡密
func (s *AdminService) GetUser(userID string) (*UserDetail, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, storage.ErrUserNotFound
	}
	keys, err := s.store.ListKeysByUserID(userID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: *user, Keys: keys}, nil
}

// CreateUserInput 管理员直接建号参数（绕过邀请码）
type CreateUserInput struct {
	Username        string
	Email           string
	Password        string
	Role            domain.UserRole
	Balance         float64
	AllowedProducts []string
}

// CreateUser 管理员直接创建账户，经销商可同时设置余额与产品许可
func (s *AdminService) CreateUser(input CreateUserInput) (*domain.User, error) {
	if !domain.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.Balance < 0 {
		return nil, ErrInvalidBalance
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if input.Role == domain.RoleReseller {
		user.Balance = input.Balance
		user.AllowedProducts = input.AllowedProducts
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetRole 变更用户角色
func (s *AdminService) SetRole(userID string, role domain.UserRole) error {
	if !domain.ValidRole(role) {
		return ErrInvalidRole
	}
	if err := s.store.SetUserRole(userID, role); err != nil {
		return storage.ErrUserNotFound
	}
	return nil
}

// DeleteUser 删除用户（级联删除其卡密与应用）
func (s *AdminService) DeleteUser(callerID, userID string) error {
	if callerID == userID {
		return ErrSelfDelete
	}
	if err := s.store.DeleteUser(userID); err != nil {
		return storage.ErrUserNotFound
	}
	return nil
}

// Statistics 返回全系统统计
func (s *AdminService) Statistics() (*domain.SystemStatistics, error) {
	return s.store.GetSystemStatistics()
}
