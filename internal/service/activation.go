package service

import (
	"errors"
	"time"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

var (
	// ErrKeyNotActivatable 卡密已过期或被冻结，不可激活
	ErrKeyNotActivatable = errors.New("key is not activatable")
	// ErrHwidMismatch 硬件标识与已绑定值不符
	ErrHwidMismatch = errors.New("hwid does not match the bound hardware")
	// ErrInvalidHwid 硬件标识为空
	ErrInvalidHwid = errors.New("hwid is required")
)

// ActivationService 硬件绑定控制器
//
// 由受保护客户端调用（不是仪表盘）：首次激活执行一次性硬件锁定，
// 之后每次启动校验绑定是否一致。
type ActivationService struct {
	store storage.Store
}

// NewActivationService 创建激活服务
func NewActivationService(store storage.Store) *ActivationService {
	return &ActivationService{store: store}
}

// Activate 校验卡密并执行/检查硬件绑定
//
// 未绑定的卡密通过比较并交换完成首绑：并发竞争时恰好一个调用
// 成功，失败方看到的是胜者刚写入的值，绝不出现第二次静默绑定。
// 无论成败都会刷新 lastCheckAt。
func (s *ActivationService) Activate(value, hwid, ip string, now time.Time) (*domain.LicenseKey, error) {
	if hwid == "" {
		return nil, ErrInvalidHwid
	}

	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return nil, ErrKeyNotFound
	}

	// 冻结与过期直接拒绝；Used 状态的卡密允许同一硬件重复校验
	if key.Frozen || key.ExpiredAt(now) {
		_ = s.store.TouchKeyCheck(value, ip, now)
		return nil, ErrKeyNotActivatable
	}

	if key.HWID == nil {
		// 首次绑定（或重置后的新绑定周期）
		err = s.store.BindHwid(value, hwid, ip, now)
		if err == nil {
			return s.store.GetKeyByValue(value)
		}
		if !errors.Is(err, storage.ErrHwidBound) {
			return nil, err
		}
		// 竞争失败：重新读取，与胜者写入的值比对
		key, err = s.store.GetKeyByValue(value)
		if err != nil {
			return nil, ErrKeyNotFound
		}
	}

	if key.HWID != nil && *key.HWID == hwid {
		_ = s.store.TouchKeyCheck(value, ip, now)
		return key, nil
	}

	_ = s.store.TouchKeyCheck(value, ip, now)
	return nil, ErrHwidMismatch
}

// ResetHwid 释放硬件锁
//
// 只清除 hwid，usedBy/usedAt 保留：重置解除硬件绑定，
// 但不抹掉激活历史。冻结中的卡密同样允许重置。
func (s *ActivationService) ResetHwid(caller *domain.User, value string) error {
	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return ErrKeyNotFound
	}
	if err := authorizeKeyAccess(caller, key); err != nil {
		return err
	}

	key.HWID = nil
	return s.store.UpdateKey(key)
}
