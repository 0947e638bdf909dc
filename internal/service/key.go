package service

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/keygen"
	"astreon/backend/internal/storage"
)

var (
	// ErrKeyNotFound 卡密不存在
	ErrKeyNotFound = errors.New("license key not found")
	// ErrGenerationExhausted 模板熵太低，重试预算内找不到空闲卡密
	ErrGenerationExhausted = errors.New("key generation exhausted: format has too little entropy")
	// ErrInvalidAmount 时长数量必须为正整数
	ErrInvalidAmount = errors.New("duration amount must be at least 1")
	// ErrInvalidCount 生成数量超出允许范围
	ErrInvalidCount = errors.New("key count exceeds the allowed batch size")
	// ErrNotKeyOwner 调用方对该卡密无权限
	ErrNotKeyOwner = errors.New("caller does not own this key")
	// ErrLifetimeKey 永久卡密不支持续期
	ErrLifetimeKey = errors.New("lifetime keys cannot be extended")
)

// maxGenerateAttempts 单张卡密的碰撞重试预算
const maxGenerateAttempts = 50

// maxBatchCount 单次请求最多生成的卡密数量（默认上限）
const maxBatchCount = 100

// KeyService 卡密生成与登记簿
type KeyService struct {
	store    storage.Store
	locks    *accountLocks
	maxBatch int
}

// NewKeyService 创建卡密服务
//
// maxBatch 非正数时使用默认批量上限。
func NewKeyService(store storage.Store, maxBatch int) *KeyService {
	if maxBatch <= 0 {
		maxBatch = maxBatchCount
	}
	return &KeyService{
		store:    store,
		locks:    newAccountLocks(),
		maxBatch: maxBatch,
	}
}

// GenerateInput 卡密生成参数
type GenerateInput struct {
	AccountID     string
	ApplicationID *string
	Product       string
	Format        string
	Unit          domain.DurationUnit
	Amount        int
	Count         int
}

// Generate 生成并持久化一批卡密
//
// 除持久化外没有副作用：经销商扣费是独立的前置步骤（见 LedgerService）。
func (s *KeyService) Generate(input GenerateInput) ([]domain.LicenseKey, error) {
	unlock := s.locks.lock(input.AccountID)
	defer unlock()
	return s.generateLocked(input)
}

// generateLocked 持有账户锁的生成路径，供 LedgerService 在扣费临界区内复用
func (s *KeyService) generateLocked(input GenerateInput) ([]domain.LicenseKey, error) {
	if input.Unit != domain.DurationLifetime && input.Amount < 1 {
		return nil, ErrInvalidAmount
	}
	if input.Count == 0 {
		input.Count = 1
	}
	if input.Count < 1 || input.Count > s.maxBatch {
		return nil, ErrInvalidCount
	}

	gen, err := keygen.Compile(input.Format)
	if err != nil {
		return nil, err
	}

	created := make([]domain.LicenseKey, 0, input.Count)
	for i := 0; i < input.Count; i++ {
		key, err := s.generateOne(gen, input)
		if err != nil {
			// 批次失败时回收已生成的卡密，不留半成品
			for _, k := range created {
				_ = s.store.DeleteKey(k.Key)
			}
			return nil, err
		}
		created = append(created, *key)
	}
	return created, nil
}

// generateOne 在重试预算内生成一张全局唯一的卡密
func (s *KeyService) generateOne(gen *keygen.Generator, input GenerateInput) (*domain.LicenseKey, error) {
	now := time.Now()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := gen.Next()
		if err != nil {
			return nil, err
		}

		key := &domain.LicenseKey{
			ID:             uuid.New().String(),
			Key:            value,
			UserID:         input.AccountID,
			ApplicationID:  input.ApplicationID,
			Product:        input.Product,
			DurationUnit:   input.Unit,
			DurationAmount: input.Amount,
			CreatedAt:      now,
			ExpiresAt:      domain.ExpiryFrom(now, input.Unit, input.Amount),
			CreatedBy:      input.AccountID,
		}

		err = s.store.SaveKey(key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, storage.ErrKeyExists) {
			return nil, err
		}
		// 碰撞，换一个候选继续
	}
	return nil, ErrGenerationExhausted
}

// Get 根据卡密字符串获取记录
func (s *KeyService) Get(value string) (*domain.LicenseKey, error) {
	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// List 返回账户的全部卡密
func (s *KeyService) List(accountID string) ([]domain.LicenseKey, error) {
	return s.store.ListKeysByUserID(accountID)
}

// ListByCreator 返回账户签发的全部卡密（经销商视图）
func (s *KeyService) ListByCreator(creatorID string) ([]domain.LicenseKey, error) {
	return s.store.ListKeysByCreator(creatorID)
}

// Stats 统计账户卡密的各状态数量
func (s *KeyService) Stats(accountID string, now time.Time) (*domain.KeyStatistics, error) {
	keys, err := s.store.ListKeysByUserID(accountID)
	if err != nil {
		return nil, err
	}

	stats := &domain.KeyStatistics{Total: len(keys)}
	for i := range keys {
		switch keys[i].Status(now) {
		case domain.StatusActive:
			stats.Active++
		case domain.StatusUsed:
			stats.Used++
		case domain.StatusExpired:
			stats.Expired++
		case domain.StatusFrozen:
			stats.Frozen++
		}
	}
	return stats, nil
}

// AddTime 为卡密续期
//
// 未过期的卡密从原过期时间顺延，已过期的从当前时间起算；
// unit=lifetime 将卡密升级为永久。永久卡密不可再续期。
func (s *KeyService) AddTime(caller *domain.User, value string, unit domain.DurationUnit, amount int) (*domain.LicenseKey, error) {
	if unit != domain.DurationLifetime && amount < 1 {
		return nil, ErrInvalidAmount
	}

	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	if err := authorizeKeyAccess(caller, key); err != nil {
		return nil, err
	}

	if unit == domain.DurationLifetime {
		key.ExpiresAt = nil
		return key, s.store.UpdateKey(key)
	}
	if key.ExpiresAt == nil {
		return nil, ErrLifetimeKey
	}

	base := time.Now()
	if key.ExpiresAt.After(base) {
		base = *key.ExpiresAt
	}
	extended := base.Add(time.Duration(amount) * unit.Interval())
	key.ExpiresAt = &extended
	return key, s.store.UpdateKey(key)
}

// SetFrozen 设置冻结标志（管理员/签发方的强制停用开关）
func (s *KeyService) SetFrozen(caller *domain.User, value string, frozen bool) (*domain.LicenseKey, error) {
	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	if err := authorizeKeyAccess(caller, key); err != nil {
		return nil, err
	}
	key.Frozen = frozen
	return key, s.store.UpdateKey(key)
}

// Delete 删除卡密
//
// 幂等但区分结果：卡密不存在返回 ErrKeyNotFound 而非静默成功，
// 批量调用方据此区分真实删除数。
func (s *KeyService) Delete(caller *domain.User, value string) error {
	key, err := s.store.GetKeyByValue(value)
	if err != nil {
		return ErrKeyNotFound
	}
	if err := authorizeKeyAccess(caller, key); err != nil {
		return err
	}
	if err := s.store.DeleteKey(value); err != nil {
		return ErrKeyNotFound
	}
	return nil
}

// authorizeKeyAccess 校验调用方是否拥有或管理该卡密
func authorizeKeyAccess(caller *domain.User, key *domain.LicenseKey) error {
	if caller.IsAdmin() {
		return nil
	}
	if key.UserID == caller.ID || key.CreatedBy == caller.ID {
		return nil
	}
	return ErrNotKeyOwner
}
