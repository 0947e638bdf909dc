package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtpkg "astreon/backend/internal/auth/jwt"
	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage/memory"
)

func newTestService(store *memory.Store) *Service {
	jwtManager := jwtpkg.NewManager(strings.Repeat("a", 32), "test", 15*time.Minute, 7*24*time.Hour)
	return NewService(store, jwtManager)
}

func seedInvite(t *testing.T, store *memory.Store, code string) {
	t.Helper()
	err := store.SaveInvite(&domain.InviteCode{
		ID:        "inv-" + code,
		CodeHash:  domain.HashInviteCode(code),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestService_Register(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "WELCOME-1")

	result, err := service.Register(RegisterInput{
		InviteCode: "WELCOME-1",
		Username:   "alice",
		Email:      "alice@example.com",
		Password:   "hunter22",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, domain.RoleStandard, result.User.Role)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)

	// 密码只存哈希
	assert.NotEqual(t, "hunter22", result.User.PasswordHash)
	assert.True(t, CheckPassword("hunter22", result.User.PasswordHash))

	invite, err := store.GetInviteByHash(domain.HashInviteCode("WELCOME-1"))
	require.NoError(t, err)
	assert.True(t, invite.IsUsed)
	require.NotNil(t, invite.UsedBy)
	assert.Equal(t, "alice", *invite.UsedBy)
}

func TestService_Register_InviteSingleUse(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "ONCE")

	_, err := service.Register(RegisterInput{InviteCode: "ONCE", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	// 同一邀请码第二次注册必须失败
	_, err = service.Register(RegisterInput{InviteCode: "ONCE", Username: "bob", Email: "bob@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidInvite)

	_, err = store.GetUserByUsername("bob")
	assert.Error(t, err, "failed registration must not leave a user behind")
}

func TestService_Register_UnknownInvite(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)

	_, err := service.Register(RegisterInput{InviteCode: "NOPE", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidInvite)
}

func TestService_Register_Uniqueness(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV-1")
	seedInvite(t, store, "INV-2")
	seedInvite(t, store, "INV-3")

	_, err := service.Register(RegisterInput{InviteCode: "INV-1", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = service.Register(RegisterInput{InviteCode: "INV-2", Username: "alice", Email: "other@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = service.Register(RegisterInput{InviteCode: "INV-3", Username: "carol", Email: "alice@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrEmailExists)

	// 唯一性冲突不烧掉邀请码
	invite, err := store.GetInviteByHash(domain.HashInviteCode("INV-2"))
	require.NoError(t, err)
	assert.False(t, invite.IsUsed)
}

func TestService_Login(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	_, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	result, err := service.Login("alice", "hunter22", "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.User.Username)

	stored, err := store.GetUserByID(result.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, "9.9.9.9", stored.LastLoginIP)

	// 邮箱也可以登录
	_, err = service.Login("alice@example.com", "hunter22", "")
	require.NoError(t, err)

	// 错误密码与未知用户返回同一个错误，避免用户名枚举
	_, err = service.Login("alice", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = service.Login("nobody", "hunter22", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_Banned(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	require.NoError(t, service.SetBanned(result.User.ID, true))

	_, err = service.Login("alice", "hunter22", "")
	assert.ErrorIs(t, err, ErrUserBanned)
	_, err = service.Verify(result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrUserBanned)

	// 解封后恢复
	require.NoError(t, service.SetBanned(result.User.ID, false))
	_, err = service.Login("alice", "hunter22", "")
	require.NoError(t, err)
}

func TestService_Verify(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	user, err := service.Verify(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	_, err = service.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Verify_StoreReset(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	// 模拟存储被清空：令牌签名仍有效，但账户不复存在
	require.NoError(t, store.DeleteUser(result.User.ID))

	_, err = service.Verify(result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrSessionStoreReset, "store reset must be distinguishable from an ordinary invalid token")
}

func TestService_Kick(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	require.NoError(t, service.Kick(result.User.ID))

	// 旧令牌失效
	_, err = service.Verify(result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = service.RefreshAccessToken(result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 重新登录签发的新令牌有效
	fresh, err := service.Login("alice", "hunter22", "")
	require.NoError(t, err)
	_, err = service.Verify(fresh.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestService_RefreshAccessToken(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	token, err := service.RefreshAccessToken(result.Tokens.RefreshToken)
	require.NoError(t, err)
	user, err := service.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	_, err = service.RefreshAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Logout_RevokesRefreshToken(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = service.RefreshAccessToken(result.Tokens.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, service.Logout(result.Tokens.RefreshToken))

	// 注销后签名依然有效的刷新令牌不再被接受
	_, err = service.RefreshAccessToken(result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionStoreReset)

	// 访问令牌不受注销影响，用到自然过期
	_, err = service.Verify(result.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestService_Refresh_RequiresServerSession(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	// 会话表被清空（如缓存重置）后，刷新必须失败而不是凭签名放行
	require.NoError(t, store.DeleteCachedSession(sessionKey(result.Tokens.RefreshToken)))

	_, err = service.RefreshAccessToken(result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionStoreReset)

	// 重新登录重建会话
	fresh, err := service.Login("alice", "hunter22", "")
	require.NoError(t, err)
	_, err = service.RefreshAccessToken(fresh.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestService_ChangePassword_RevokesTokens(t *testing.T) {
	store := memory.NewStore()
	service := newTestService(store)
	seedInvite(t, store, "INV")
	result, err := service.Register(RegisterInput{InviteCode: "INV", Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	require.NoError(t, err)

	assert.ErrorIs(t, service.ChangePassword(result.User.ID, "wrong", "newpass66"), ErrInvalidCredentials)
	require.NoError(t, service.ChangePassword(result.User.ID, "hunter22", "newpass66"))

	_, err = service.Verify(result.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.Login("alice", "newpass66", "")
	require.NoError(t, err)
}
