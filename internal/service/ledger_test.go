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

func seedReseller(t *testing.T, store *memory.Store, id string, balance float64, products ...string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateUser(&domain.User{
		ID:              id,
		Username:        id,
		Email:           id + "@example.com",
		Role:            domain.RoleReseller,
		Balance:         balance,
		AllowedProducts: products,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
}

func newLedger(store *memory.Store) (*LedgerService, *KeyService) {
	keys := NewKeyService(store, 0)
	return NewLedgerService(store, keys, 0), keys
}

func TestLedgerService_ReserveAndIssue(t *testing.T) {
	store := memory.NewStore()
	ledger, _ := newLedger(store)
	seedReseller(t, store, "res1", 5.00, "loader")

	result, err := ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
	require.NoError(t, err)
	assert.Equal(t, "loader", result.Key.Product)
	assert.Equal(t, "res1", result.Key.CreatedBy)
	assert.InDelta(t, 4.00, result.Balance, 1e-9)

	balance, _, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 4.00, balance, 1e-9)
}

func TestLedgerService_InsufficientBalance(t *testing.T) {
	store := memory.NewStore()
	ledger, keys := newLedger(store)
	seedReseller(t, store, "res1", 0.50, "loader")

	_, err := ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 余额原封不动，也没有卡密流出
	balance, _, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 0.50, balance, 1e-9)

	issued, err := keys.ListByCreator("res1")
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestLedgerService_ProductAllowList(t *testing.T) {
	store := memory.NewStore()
	ledger, _ := newLedger(store)
	seedReseller(t, store, "res1", 10.00, "loader")

	_, err := ledger.ReserveAndIssue("res1", "other-product", "RSL-********", domain.DurationDay, 30)
	assert.ErrorIs(t, err, ErrProductNotAllowed)

	// 标准用户根本不是经销商
	now := time.Now()
	require.NoError(t, store.CreateUser(&domain.User{ID: "std", Username: "std", Email: "std@example.com", Role: domain.RoleStandard, CreatedAt: now, UpdatedAt: now}))
	_, err = ledger.ReserveAndIssue("std", "loader", "RSL-********", domain.DurationDay, 30)
	assert.ErrorIs(t, err, ErrNotAReseller)
}

func TestLedgerService_RollbackOnGenerationFailure(t *testing.T) {
	store := memory.NewStore()
	ledger, _ := newLedger(store)
	seedReseller(t, store, "res1", 3.00, "loader")

	// 非法模板触发生成失败，扣费必须回滚
	_, err := ledger.ReserveAndIssue("res1", "loader", "NO-WILDCARDS", domain.DurationDay, 30)
	require.Error(t, err)

	balance, _, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 3.00, balance, 1e-9)
}

func TestLedgerService_ConcurrentIssue(t *testing.T) {
	store := memory.NewStore()
	ledger, keys := newLedger(store)
	seedReseller(t, store, "res1", 3.00, "loader")

	// 余额只够 3 张，10 个并发请求恰好成功 3 个
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)

	balance, _, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 0.00, balance, 1e-9)

	issued, err := keys.ListByCreator("res1")
	require.NoError(t, err)
	assert.Len(t, issued, 3)
}

func TestLedgerService_CustomUnitPrice(t *testing.T) {
	store := memory.NewStore()
	keys := NewKeyService(store, 0)
	ledger := NewLedgerService(store, keys, 2.50)
	seedReseller(t, store, "res1", 5.00, "loader")

	assert.InDelta(t, 2.50, ledger.UnitPrice(), 1e-9)

	result, err := ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
	require.NoError(t, err)
	assert.InDelta(t, 2.50, result.Balance, 1e-9)

	// 第二张刚好花光，第三张被拒
	_, err = ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
	require.NoError(t, err)
	_, err = ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerService_AdminMutationsDontClobberDebits(t *testing.T) {
	store := memory.NewStore()
	ledger, keys := newLedger(store)
	seedReseller(t, store, "res1", 5.00, "loader")

	// 发卡与管理操作并发进行：踢出/封禁/角色写的是单个字段，
	// 不得把扣费前的余额整行写回
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.ReserveAndIssue("res1", "loader", "RSL-********", domain.DurationDay, 30)
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.BumpTokenVersion("res1"))
			assert.NoError(t, store.SetUserBanned("res1", false))
			assert.NoError(t, store.SetUserRole("res1", domain.RoleReseller))
		}()
	}
	wg.Wait()

	balance, _, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 0.00, balance, 1e-9)

	issued, err := keys.ListByCreator("res1")
	require.NoError(t, err)
	assert.Len(t, issued, 5)

	user, err := store.GetUserByID("res1")
	require.NoError(t, err)
	assert.Equal(t, 20, user.TokenVersion)
}

func TestLedgerService_AdminBalanceOps(t *testing.T) {
	store := memory.NewStore()
	ledger, _ := newLedger(store)
	seedReseller(t, store, "res1", 1.00, "loader")

	require.NoError(t, ledger.SetBalance("res1", 10.00))
	balance, products, err := ledger.Balance("res1")
	require.NoError(t, err)
	assert.InDelta(t, 10.00, balance, 1e-9)
	assert.Equal(t, []string{"loader"}, products)

	next, err := ledger.AddBalance("res1", 2.50)
	require.NoError(t, err)
	assert.InDelta(t, 12.50, next, 1e-9)

	_, err = ledger.AddBalance("res1", -100)
	assert.ErrorIs(t, err, ErrInvalidBalance)
	assert.ErrorIs(t, ledger.SetBalance("res1", -1), ErrInvalidBalance)

	require.NoError(t, ledger.SetAllowedProducts("res1", []string{"loader", "spoofer"}))
	_, products, err = ledger.Balance("res1")
	require.NoError(t, err)
	assert.Equal(t, []string{"loader", "spoofer"}, products)
}
