package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
)

func newUser(id, username string) *domain.User {
	return &domain.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		Role:      domain.RoleStandard,
		CreatedAt: time.Now(),
	}
}

func TestStore_CreateUser_UniqueIndexes(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.CreateUser(newUser("u1", "alice")))

	dup := newUser("u2", "ALICE")
	assert.ErrorIs(t, s.CreateUser(dup), storage.ErrUsernameExists, "username uniqueness is case-insensitive")

	dup2 := newUser("u3", "bob")
	dup2.Email = "alice@example.com"
	assert.ErrorIs(t, s.CreateUser(dup2), storage.ErrEmailExists)

	got, err := s.GetUserByUsername("Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}

func TestStore_GetUserReturnsCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateUser(newUser("u1", "alice")))

	got, err := s.GetUserByID("u1")
	require.NoError(t, err)
	got.Username = "mallory"

	again, err := s.GetUserByID("u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username, "mutating a returned record must not affect the store")
}

func TestStore_DeleteKey_Idempotence(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-AAAA", UserID: "u1", CreatedAt: time.Now()}))

	require.NoError(t, s.DeleteKey("KEY-AAAA"))
	assert.ErrorIs(t, s.DeleteKey("KEY-AAAA"), storage.ErrKeyNotFound, "second delete must be a distinct not-found outcome")
}

func TestStore_SaveKey_RejectsDuplicates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-AAAA", UserID: "u1"}))
	assert.ErrorIs(t, s.SaveKey(&domain.LicenseKey{ID: "k2", Key: "KEY-AAAA", UserID: "u2"}), storage.ErrKeyExists)
}

func TestStore_BindHwid_FirstUseLock(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-AAAA", UserID: "u1", CreatedAt: now}))

	require.NoError(t, s.BindHwid("KEY-AAAA", "hw-1", "1.2.3.4", now))

	key, err := s.GetKeyByValue("KEY-AAAA")
	require.NoError(t, err)
	require.NotNil(t, key.HWID)
	assert.Equal(t, "hw-1", *key.HWID)
	require.NotNil(t, key.UsedAt)
	assert.Equal(t, "1.2.3.4", key.LastIP)

	// 第二次绑定必须失败且不改写已有绑定
	err = s.BindHwid("KEY-AAAA", "hw-2", "5.6.7.8", now.Add(time.Second))
	assert.ErrorIs(t, err, storage.ErrHwidBound)

	key, err = s.GetKeyByValue("KEY-AAAA")
	require.NoError(t, err)
	assert.Equal(t, "hw-1", *key.HWID)
}

func TestStore_BindHwid_ConcurrentRace(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-RACE", UserID: "u1", CreatedAt: now}))

	const n = 20
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.BindHwid("KEY-RACE", fmt.Sprintf("hw-%d", i), "", now)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, storage.ErrHwidBound)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent activation may bind")
}

func TestStore_MarkInviteUsed_Monotonic(t *testing.T) {
	s := NewStore()
	hash := domain.HashInviteCode("INVITE-1")
	require.NoError(t, s.SaveInvite(&domain.InviteCode{ID: "i1", CodeHash: hash, CreatedAt: time.Now()}))

	now := time.Now()
	require.NoError(t, s.MarkInviteUsed(hash, "alice", now))
	assert.ErrorIs(t, s.MarkInviteUsed(hash, "bob", now), storage.ErrInviteUsed)

	invite, err := s.GetInviteByHash(hash)
	require.NoError(t, err)
	assert.True(t, invite.IsUsed)
	require.NotNil(t, invite.UsedBy)
	assert.Equal(t, "alice", *invite.UsedBy, "loser must not overwrite the first use")
}

func TestStore_DeleteUser_Cascades(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.CreateUser(newUser("u1", "alice")))
	require.NoError(t, s.SaveApplication(&domain.Application{ID: "a1", UserID: "u1", Name: "loader", Token: "tok-1"}))
	appID := "a1"
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-1", UserID: "u1", ApplicationID: &appID}))
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k2", Key: "KEY-2", UserID: "u1"}))

	require.NoError(t, s.DeleteUser("u1"))

	_, err := s.GetUserByID("u1")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = s.GetApplication("a1")
	assert.ErrorIs(t, err, storage.ErrApplicationNotFound)
	_, err = s.GetKeyByValue("KEY-1")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	_, err = s.GetKeyByValue("KEY-2")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestStore_SaveApplication_RotationDropsStaleToken(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveApplication(&domain.Application{ID: "a1", UserID: "u1", Name: "loader", Token: "tok-old"}))

	rotated := &domain.Application{ID: "a1", UserID: "u1", Name: "loader", Token: "tok-new"}
	require.NoError(t, s.SaveApplication(rotated))

	// 旧令牌不得再命中任何应用
	_, err := s.GetApplicationByToken("tok-old")
	assert.ErrorIs(t, err, storage.ErrApplicationNotFound)

	got, err := s.GetApplicationByToken("tok-new")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
}

func TestStore_DeleteApplication_KeepsKeys(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.SaveApplication(&domain.Application{ID: "a1", UserID: "u1", Name: "loader", Token: "tok-1"}))
	appID := "a1"
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-1", UserID: "u1", ApplicationID: &appID}))

	require.NoError(t, s.DeleteApplication("a1"))

	_, err := s.GetApplication("a1")
	assert.ErrorIs(t, err, storage.ErrApplicationNotFound)
	_, err = s.GetApplicationByToken("tok-1")
	assert.ErrorIs(t, err, storage.ErrApplicationNotFound)

	// 与删除用户的级联不同：卡密保留
	key, err := s.GetKeyByValue("KEY-1")
	require.NoError(t, err)
	require.NotNil(t, key.ApplicationID)
	assert.Equal(t, "a1", *key.ApplicationID)
}

func TestStore_TouchKeyCheck_EmptyIPKeepsLast(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.SaveKey(&domain.LicenseKey{ID: "k1", Key: "KEY-1", UserID: "u1", CreatedAt: now}))

	require.NoError(t, s.TouchKeyCheck("KEY-1", "1.2.3.4", now))
	require.NoError(t, s.TouchKeyCheck("KEY-1", "", now.Add(time.Second)))

	key, err := s.GetKeyByValue("KEY-1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", key.LastIP, "a check without an IP must not erase the last recorded one")
	require.NotNil(t, key.LastCheckAt)
	assert.True(t, key.LastCheckAt.After(now))
}

func TestStore_ListUsers_Pagination(t *testing.T) {
	s := NewStore()
	for i := 0; i < 25; i++ {
		u := newUser(fmt.Sprintf("u%02d", i), fmt.Sprintf("user%02d", i))
		u.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateUser(u))
	}

	page1, total, err := s.ListUsers(1, 10, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, page1, 10)

	page3, _, err := s.ListUsers(3, 10, "", nil)
	require.NoError(t, err)
	assert.Len(t, page3, 5)

	reseller := domain.RoleReseller
	none, total, err := s.ListUsers(1, 10, "", &reseller)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, none)
}

func TestStore_RateLimitWindow(t *testing.T) {
	s := NewStore()

	for i := int64(1); i <= 3; i++ {
		n, err := s.IncrementRateLimit("login:1.2.3.4", 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	time.Sleep(60 * time.Millisecond)
	n, err := s.IncrementRateLimit("login:1.2.3.4", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "window expiry resets the counter")
}
