package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage"
	"astreon/backend/internal/storage/memory"
)

func TestAdminService_CreateUser(t *testing.T) {
	store := memory.NewStore()
	service := NewAdminService(store)

	user, err := service.CreateUser(CreateUserInput{
		Username: "res1",
		Email:    "res1@example.com",
		Password: "hunter22",
		Role:     domain.RoleReseller,
		Balance:  25.00,
		AllowedProducts: []string{
			"loader",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReseller, user.Role)
	assert.InDelta(t, 25.00, user.Balance, 1e-9)
	assert.Equal(t, []string{"loader"}, user.AllowedProducts)

	// 非经销商忽略余额与产品许可
	std, err := service.CreateUser(CreateUserInput{Username: "std", Email: "std@example.com", Password: "hunter22", Role: domain.RoleStandard, Balance: 99})
	require.NoError(t, err)
	assert.Zero(t, std.Balance)

	_, err = service.CreateUser(CreateUserInput{Username: "x", Email: "x@example.com", Password: "hunter22", Role: "superuser"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAdminService_GetUserAndDelete(t *testing.T) {
	store := memory.NewStore()
	service := NewAdminService(store)
	keys := NewKeyService(store, 0)

	user, err := service.CreateUser(CreateUserInput{Username: "alice", Email: "alice@example.com", Password: "hunter22", Role: domain.RoleStandard})
	require.NoError(t, err)
	_, err = keys.Generate(GenerateInput{AccountID: user.ID, Product: "loader", Format: "K-********", Unit: domain.DurationDay, Amount: 7, Count: 2})
	require.NoError(t, err)

	detail, err := service.GetUser(user.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Keys, 2)

	assert.ErrorIs(t, service.DeleteUser(user.ID, user.ID), ErrSelfDelete)
	require.NoError(t, service.DeleteUser("someone-else", user.ID))

	_, err = service.GetUser(user.ID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestAdminService_ListUsers(t *testing.T) {
	store := memory.NewStore()
	service := NewAdminService(store)

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := service.CreateUser(CreateUserInput{Username: name, Email: name + "@example.com", Password: "hunter22", Role: domain.RoleStandard})
		require.NoError(t, err)
	}
	_, err := service.CreateUser(CreateUserInput{Username: "res", Email: "res@example.com", Password: "hunter22", Role: domain.RoleReseller})
	require.NoError(t, err)

	page, err := service.ListUsers(1, 2, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Users, 2)

	reseller := domain.RoleReseller
	page, err = service.ListUsers(1, 20, "", &reseller)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = service.ListUsers(1, 20, "ali", nil)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "alice", page.Users[0].Username)
}

func TestAdminService_Statistics(t *testing.T) {
	store := memory.NewStore()
	service := NewAdminService(store)

	_, err := service.CreateUser(CreateUserInput{Username: "root", Email: "root@example.com", Password: "hunter22", Role: domain.RoleAdmin})
	require.NoError(t, err)
	_, err = service.CreateUser(CreateUserInput{Username: "alice", Email: "alice@example.com", Password: "hunter22", Role: domain.RoleStandard})
	require.NoError(t, err)

	stats, err := service.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalAdmins)
}
