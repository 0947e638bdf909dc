package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"astreon/backend/internal/auth"
	jwtpkg "astreon/backend/internal/auth/jwt"
	"astreon/backend/internal/storage/memory"
)

func newTestHub() *Hub {
	jwtManager := jwtpkg.NewManager(strings.Repeat("a", 32), "test", time.Minute, time.Hour)
	return NewHub(auth.NewService(memory.NewStore(), jwtManager), []string{"*"}, zap.NewNop())
}

func TestHub_PublishDeliversToRegisteredClient(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &Client{userID: "u1", send: make(chan []byte, 4), hub: hub}
	require.True(t, hub.add(client))

	hub.Publish("u1", EventKeyGenerated, map[string]int{"count": 1})

	select {
	case raw := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, EventKeyGenerated, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	// 事件按账户定向，其他账户收不到
	other := &Client{userID: "u2", send: make(chan []byte, 4), hub: hub}
	require.True(t, hub.add(other))
	hub.Publish("u1", EventKeyDeleted, nil)
	select {
	case <-other.send:
		t.Fatal("event leaked to another account")
	case <-time.After(100 * time.Millisecond):
	}

	hub.remove(client)
	hub.remove(other)
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHub_ShutdownUnblocksRegistration(t *testing.T) {
	hub := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// 停机后登记被拒绝而不是永久阻塞
	client := &Client{userID: "u1", send: make(chan []byte, 1), hub: hub}
	assert.False(t, hub.add(client))

	finished := make(chan struct{})
	go func() {
		hub.remove(client)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after shutdown")
	}

	// 停机后的 Publish 是空操作
	hub.Publish("u1", EventKeyGenerated, map[string]int{"count": 1})
	select {
	case <-client.send:
		t.Fatal("no delivery expected after shutdown")
	default:
	}
}
