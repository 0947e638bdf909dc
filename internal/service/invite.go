package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/keygen"
	"astreon/backend/internal/storage"
)

// ErrInviteNotFound 邀请码不存在
var ErrInviteNotFound = errors.New("invite code not found")

// inviteFormat 邀请码模板（生成后只存哈希，明文一次性返回）
const inviteFormat = "INV-****-****-****"

// InviteService 邀请码管理（仅管理员）
type InviteService struct {
	store storage.Store
}

// NewInviteService 创建邀请码服务
func NewInviteService(store storage.Store) *InviteService {
	return &InviteService{store: store}
}

// GeneratedInvite 新生成的邀请码，Code 明文只在此处出现一次
type GeneratedInvite struct {
	Code   string            `json:"code"`
	Record domain.InviteCode `json:"record"`
}

// Generate 批量生成邀请码并返回明文
//
// 明文不落库：存储里只有 SHA-256 哈希，之后任何接口都只能看到掩码。
func (s *InviteService) Generate(adminID string, count int) ([]GeneratedInvite, error) {
	if count < 1 || count > maxBatchCount {
		return nil, ErrInvalidCount
	}

	gen, err := keygen.Compile(inviteFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]GeneratedInvite, 0, count)
	for i := 0; i < count; i++ {
		code, err := gen.Next()
		if err != nil {
			return nil, err
		}
		invite := domain.InviteCode{
			ID:        uuid.New().String(),
			CodeHash:  domain.HashInviteCode(code),
			CreatedAt: now,
			CreatedBy: adminID,
		}
		if err := s.store.SaveInvite(&invite); err != nil {
			return nil, err
		}
		out = append(out, GeneratedInvite{Code: code, Record: invite})
	}
	return out, nil
}

// List 返回全部邀请码记录（哈希形式，未使用在前）
func (s *InviteService) List() ([]domain.InviteCode, error) {
	return s.store.ListInvites()
}

// Delete 删除邀请码，入参可以是明文也可以是哈希
func (s *InviteService) Delete(codeOrHash string) error {
	hash := codeOrHash
	if !looksLikeHash(codeOrHash) {
		hash = domain.HashInviteCode(codeOrHash)
	}
	if err := s.store.DeleteInvite(hash); err != nil {
		return ErrInviteNotFound
	}
	return nil
}

// looksLikeHash 判断入参是否已经是 SHA-256 十六进制串
func looksLikeHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range strings.ToLower(s) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
