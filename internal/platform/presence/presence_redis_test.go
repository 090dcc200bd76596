package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-order-realtime-service/internal/platform/presence"
	"github.com/tinywideclouds/go-order-realtime-service/pkg/orders"
)

// redisTestFixture holds resources for testing the redis presence store.
type redisTestFixture struct {
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *presence.RedisStore
}

func setupRedis(t *testing.T, ttl time.Duration) *redisTestFixture {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := presence.NewRedisStore(rdb, ttl, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &redisTestFixture{mr: mr, rdb: rdb, store: store}
}

var customer = orders.Identity{UserID: "cust1", Role: orders.RoleCustomer}

func info(connID string, at int64) orders.ConnectionInfo {
	return orders.ConnectionInfo{
		ServerInstanceID: "instance-1",
		ConnectionID:     connID,
		Role:             orders.RoleCustomer,
		ConnectedAt:      at,
	}
}

func TestRedisStore_OnlineOffline(t *testing.T) {
	fx := setupRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, fx.store.MarkOnline(ctx, customer, info("k2", 200)))
	require.NoError(t, fx.store.MarkOnline(ctx, customer, info("k1", 100)))

	conns, err := fx.store.Connections(ctx, customer)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "k1", conns[0].ConnectionID, "oldest connection first")
	assert.Equal(t, "instance-1", conns[1].ServerInstanceID)

	assert.True(t, fx.mr.Exists("presence:customer:cust1"))
	assert.Equal(t, time.Minute, fx.mr.TTL("presence:customer:cust1"))

	require.NoError(t, fx.store.MarkOffline(ctx, customer, "k1"))
	conns, err = fx.store.Connections(ctx, customer)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	require.NoError(t, fx.store.MarkOffline(ctx, customer, "k2"))
	require.NoError(t, fx.store.MarkOffline(ctx, customer, "k2"), "offline twice is fine")
	conns, err = fx.store.Connections(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.False(t, fx.mr.Exists("presence:customer:cust1"))
}

func TestRedisStore_Expiry(t *testing.T) {
	fx := setupRedis(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, fx.store.MarkOnline(ctx, customer, info("k1", 100)))
	fx.mr.FastForward(31 * time.Second)

	conns, err := fx.store.Connections(ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestRedisStore_SkipsMalformedEntries(t *testing.T) {
	fx := setupRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, fx.store.MarkOnline(ctx, customer, info("k1", 100)))
	fx.mr.HSet("presence:customer:cust1", "junk", "not-json")

	conns, err := fx.store.Connections(ctx, customer)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "k1", conns[0].ConnectionID)
}

func TestRedisStore_ServerDown(t *testing.T) {
	fx := setupRedis(t, time.Minute)
	fx.mr.Close()

	err := fx.store.MarkOnline(context.Background(), customer, info("k1", 100))
	assert.Error(t, err)
}

func TestNewRedisStore_NilClient(t *testing.T) {
	_, err := presence.NewRedisStore(nil, time.Minute, zerolog.Nop())
	assert.Error(t, err)
}
