package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

var (
	// ErrApplicationNotFound 应用不存在
	ErrApplicationNotFound = errors.New("application not found")
	// ErrNotApplicationOwner 调用方不拥有该应用
	ErrNotApplicationOwner = errors.New("caller does not own this application")
	// ErrInvalidAppName 应用名为空
	ErrInvalidAppName = errors.New("application name is required")
)

// ApplicationService 应用子作用域管理
//
// 应用把一个账户的卡密划分到不同产品/项目下，
// 每个应用持有一枚不透明令牌供受保护客户端识别自己。
type ApplicationService struct {
	store storage.Store
}

// NewApplicationService 创建应用服务
func NewApplicationService(store storage.Store) *ApplicationService {
	return &ApplicationService{store: store}
}

// Create 创建应用并签发令牌
func (s *ApplicationService) Create(ownerID, name string) (*domain.Application, error) {
	if name == "" {
		return nil, ErrInvalidAppName
	}
	token, err := generateAppToken()
	if err != nil {
		return nil, err
	}
	app := &domain.Application{
		ID:        uuid.New().String(),
		UserID:    ownerID,
		Name:      name,
		Token:     token,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveApplication(app); err != nil {
		return nil, err
	}
	return app, nil
}

// List 返回账户的全部应用
func (s *ApplicationService) List(ownerID string) ([]domain.Application, error) {
	return s.store.ListApplicationsByUserID(ownerID)
}

// ResolveToken 根据应用令牌定位应用（客户端校验入口用）
func (s *ApplicationService) ResolveToken(token string) (*domain.Application, error) {
	app, err := s.store.GetApplicationByToken(token)
	if err != nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

// RotateToken 更换应用令牌，旧令牌立即失效
func (s *ApplicationService) RotateToken(caller *domain.User, appID string) (*domain.Application, error) {
	app, err := s.authorize(caller, appID)
	if err != nil {
		return nil, err
	}
	token, err := generateAppToken()
	if err != nil {
		return nil, err
	}
	app.Token = token
	if err := s.store.SaveApplication(app); err != nil {
		return nil, err
	}
	return app, nil
}

// Delete 删除应用（卡密保留，applicationId 悬空由读取方容忍）
func (s *ApplicationService) Delete(caller *domain.User, appID string) error {
	if _, err := s.authorize(caller, appID); err != nil {
		return err
	}
	return s.store.DeleteApplication(appID)
}

func (s *ApplicationService) authorize(caller *domain.User, appID string) (*domain.Application, error) {
	app, err := s.store.GetApplication(appID)
	if err != nil {
		return nil, ErrApplicationNotFound
	}
	if !caller.IsAdmin() && app.UserID != caller.ID {
		return nil, ErrNotApplicationOwner
	}
	return app, nil
}

// generateAppToken 生成 32 字节随机令牌，URL 安全编码
func generateAppToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "app_" + base64.RawURLEncoding.EncodeToString(raw), nil
}
