package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astreon/backend/internal/domain"
	"astreon/backend/internal/storage/memory"
)

func TestInviteService_Generate(t *testing.T) {
	store := memory.NewStore()
	service := NewInviteService(store)

	generated, err := service.Generate("admin-1", 5)
	require.NoError(t, err)
	require.Len(t, generated, 5)

	for _, g := range generated {
		assert.True(t, strings.HasPrefix(g.Code, "INV-"))
		// 存储里只有哈希，没有明文
		assert.Equal(t, domain.HashInviteCode(g.Code), g.Record.CodeHash)
		assert.NotEqual(t, g.Code, g.Record.CodeHash)
		assert.Equal(t, "admin-1", g.Record.CreatedBy)
	}

	records, err := service.List()
	require.NoError(t, err)
	assert.Len(t, records, 5)

	_, err = service.Generate("admin-1", 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestInviteService_Delete(t *testing.T) {
	store := memory.NewStore()
	service := NewInviteService(store)

	generated, err := service.Generate("admin-1", 2)
	require.NoError(t, err)

	// 明文和哈希两种入参都能删
	require.NoError(t, service.Delete(generated[0].Code))
	require.NoError(t, service.Delete(generated[1].Record.CodeHash))

	records, err := service.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, service.Delete("UNKNOWN"), ErrInviteNotFound)
}
