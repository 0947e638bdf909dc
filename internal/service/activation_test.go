package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage/memory"
)

func generateOneKey(t *testing.T, keys *KeyService, unit domain.DurationUnit, amount int) domain.LicenseKey {
	t.Helper()
	created, err := keys.Generate(GenerateInput{
		AccountID: "u1",
		Product:   "loader",
		Format:    "ACT-********",
		Unit:      unit,
		Amount:    amount,
		Count:     1,
	})
	require.NoError(t, err)
	return created[0]
}

func TestActivationService_FirstBind(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	service := NewActivationService(store)
	key := generateOneKey(t, keys, domain.DurationDay, 7)
	now := time.Now()

	bound, err := service.Activate(key.Key, "hw-alpha", "1.2.3.4", now)
	require.NoError(t, err)
	require.NotNil(t, bound.HWID)
	assert.Equal(t, "hw-alpha", *bound.HWID)
	require.NotNil(t, bound.UsedAt)
	assert.Equal(t, domain.StatusUsed, bound.Status(now))

	// 同一硬件可重复校验（客户端每次启动都会调用）
	again, err := service.Activate(key.Key, "hw-alpha", "1.2.3.5", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "hw-alpha", *again.HWID)

	// 其他硬件被拒绝
	_, err = service.Activate(key.Key, "hw-beta", "6.6.6.6", now.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrHwidMismatch)

	// 失败的校验同样刷新 lastCheckAt
	stored, err := store.GetKeyByValue(key.Key)
	require.NoError(t, err)
	require.NotNil(t, stored.LastCheckAt)
	assert.Equal(t, "6.6.6.6", stored.LastIP)
}

func TestActivationService_ConcurrentFirstBind(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	service := NewActivationService(store)
	key := generateOneKey(t, keys, domain.DurationDay, 7)
	now := time.Now()

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := make(map[string]int)

	for i := 0; i < racers; i++ {
		hwid := string(rune('a' + i))
		wg.Add(1)
		go func(hwid string) {
			defer wg.Done()
			if _, err := service.Activate(key.Key, hwid, "", now); err == nil {
				mu.Lock()
				winners[hwid]++
				mu.Unlock()
			}
		}(hwid)
	}
	wg.Wait()

	// 恰好一个硬件赢得首绑
	require.Len(t, winners, 1)

	stored, err := store.GetKeyByValue(key.Key)
	require.NoError(t, err)
	require.NotNil(t, stored.HWID)
	for hwid := range winners {
		assert.Equal(t, hwid, *stored.HWID)
	}
}

func TestActivationService_RejectsExpiredAndFrozen(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	service := NewActivationService(store)
	now := time.Now()

	expired := generateOneKey(t, keys, domain.DurationDay, 1)
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, store.UpdateKey(&expired))

	_, err := service.Activate(expired.Key, "hw-a", "", now)
	assert.ErrorIs(t, err, ErrKeyNotActivatable)

	frozen := generateOneKey(t, keys, domain.DurationDay, 7)
	_, err = keys.SetFrozen(testUser("u1", domain.RoleStandard), frozen.Key, true)
	require.NoError(t, err)

	_, err = service.Activate(frozen.Key, "hw-a", "", now)
	assert.ErrorIs(t, err, ErrKeyNotActivatable)

	// 已绑定的卡密过期后同样拒绝
	_, err = keys.SetFrozen(testUser("u1", domain.RoleStandard), frozen.Key, false)
	require.NoError(t, err)
	_, err = service.Activate(frozen.Key, "hw-a", "", now)
	require.NoError(t, err)
	past2 := now.Add(-time.Minute)
	bound, err := store.GetKeyByValue(frozen.Key)
	require.NoError(t, err)
	bound.ExpiresAt = &past2
	require.NoError(t, store.UpdateKey(bound))
	_, err = service.Activate(frozen.Key, "hw-a", "", now)
	assert.ErrorIs(t, err, ErrKeyNotActivatable)
}

func TestActivationService_InputValidation(t *testing.T) {
	store := memory.NewStore()
	service := NewActivationService(store)

	_, err := service.Activate("WHAT-EVER", "", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidHwid)

	_, err = service.Activate("MISSING", "hw", "", time.Now())
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestActivationService_ResetHwid(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	service := NewActivationService(store)
	owner := testUser("u1", domain.RoleStandard)
	key := generateOneKey(t, keys, domain.DurationDay, 7)
	now := time.Now()

	_, err := service.Activate(key.Key, "hw-old", "", now)
	require.NoError(t, err)

	require.NoError(t, service.ResetHwid(owner, key.Key))

	// hwid 清空，激活历史保留
	stored, err := store.GetKeyByValue(key.Key)
	require.NoError(t, err)
	assert.Nil(t, stored.HWID)
	assert.NotNil(t, stored.UsedAt)
	assert.NotNil(t, stored.UsedBy)

	// 重置后可以绑定新硬件
	rebound, err := service.Activate(key.Key, "hw-new", "", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "hw-new", *rebound.HWID)
}

func TestActivationService_ResetHwid_FrozenKey(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	service := NewActivationService(store)
	owner := testUser("u1", domain.RoleStandard)
	key := generateOneKey(t, keys, domain.DurationDay, 7)

	_, err := service.Activate(key.Key, "hw-old", "", time.Now())
	require.NoError(t, err)
	_, err = keys.SetFrozen(owner, key.Key, true)
	require.NoError(t, err)

	// 冻结不阻止硬件重置
	require.NoError(t, service.ResetHwid(owner, key.Key))

	stored, err := store.GetKeyByValue(key.Key)
	require.NoError(t, err)
	assert.Nil(t, stored.HWID)
	assert.True(t, stored.Frozen)
}
