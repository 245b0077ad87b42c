package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/redis"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/storetest"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

func TestRedisStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		server := miniredis.RunT(t)
		s, err := redis.New(context.Background(), redis.Config{
			Addr:   server.Addr(),
			Prefix: "test",
		})
		require.NoError(t, err)
		return s
	})
}

func TestRedisStoreConnectFailure(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := redis.New(context.Background(), redis.Config{Addr: addr})
	assert.ErrorIs(t, err, redis.ErrConnect)
}

func TestRedisStoreSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	cfg := redis.Config{Addr: server.Addr(), Prefix: "orders"}

	first, err := redis.New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Create(ctx, storetest.NewInstance("inst-1")))
	require.NoError(t, first.Close())

	second, err := redis.New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, api.StatusRunning, got.Status)

	running, err := second.List(ctx, api.StatusRunning)
	require.NoError(t, err)
	assert.Equal(t, []api.InstanceID{"inst-1"}, running)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	defer func() { _ = client.Close() }()

	s := redis.NewWithClient(client, "orders")
	require.NoError(t, s.Create(ctx, storetest.NewInstance("inst-1")))
	require.NoError(t, s.Close())

	assert.True(t, server.Exists("orders:instance:inst-1"))
	members, err := server.Members("orders:status:Running")
	require.NoError(t, err)
	assert.Equal(t, []string{"inst-1"}, members)

	assert.NoError(t, client.Ping(ctx).Err())
}
