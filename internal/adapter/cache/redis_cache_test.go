package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JuhanV/Sleep-Game/internal/adapter/cache"
	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisStateStore_ConsumeOnce(t *testing.T) {
	srv, client := newRedis(t)
	store := cache.NewRedisStateStore(client)
	ctx := context.Background()

	state := oauth.State{State: "abc", ReturnTo: "/dashboard", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.SaveState(ctx, state, time.Minute))
	require.True(t, srv.Exists("oauth:state:abc"))
	require.InDelta(t, time.Minute.Seconds(), srv.TTL("oauth:state:abc").Seconds(), 1)

	got, err := store.ConsumeState(ctx, " abc ")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "abc", got.State)
	require.Equal(t, "/dashboard", got.ReturnTo)
	require.True(t, state.CreatedAt.Equal(got.CreatedAt))
	require.False(t, srv.Exists("oauth:state:abc"))

	got, err = store.ConsumeState(ctx, "abc")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStateStore_Expires(t *testing.T) {
	srv, client := newRedis(t)
	store := cache.NewRedisStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, oauth.State{State: "ttl"}, time.Minute))
	srv.FastForward(2 * time.Minute)

	got, err := store.ConsumeState(ctx, "ttl")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStateStore_RejectsEmptyState(t *testing.T) {
	_, client := newRedis(t)
	store := cache.NewRedisStateStore(client)

	require.Error(t, store.SaveState(context.Background(), oauth.State{State: "  "}, time.Minute))
}

func TestRedisStateStore_CorruptPayload(t *testing.T) {
	srv, client := newRedis(t)
	store := cache.NewRedisStateStore(client)
	require.NoError(t, srv.Set("oauth:state:bad", "{not json"))

	_, err := store.ConsumeState(context.Background(), "bad")
	require.Error(t, err)
}

func TestRedisMetricsCache_GetSetDelete(t *testing.T) {
	srv, client := newRedis(t)
	mc := cache.NewRedisMetricsCache(client)
	ctx := context.Background()

	type page struct {
		Days []string `json:"days"`
	}

	var miss page
	ok, err := mc.Get(ctx, "metrics:1:daily_sleep", &miss)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mc.Set(ctx, "metrics:1:daily_sleep", page{Days: []string{"2024-01-01"}}, time.Minute))
	require.NoError(t, mc.Set(ctx, "metrics:1:daily_activity", page{Days: []string{"2024-01-02"}}, time.Minute))
	require.NoError(t, mc.Set(ctx, "metrics:2:daily_sleep", page{}, time.Minute))

	var hit page
	ok, err = mc.Get(ctx, "metrics:1:daily_sleep", &hit)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"2024-01-01"}, hit.Days)

	require.NoError(t, mc.DeletePrefix(ctx, "metrics:1:"))
	require.False(t, srv.Exists("metrics:1:daily_sleep"))
	require.False(t, srv.Exists("metrics:1:daily_activity"))
	require.True(t, srv.Exists("metrics:2:daily_sleep"))
}

func TestRedisMetricsCache_ZeroTTLSkipsWrite(t *testing.T) {
	srv, client := newRedis(t)
	mc := cache.NewRedisMetricsCache(client)

	require.NoError(t, mc.Set(context.Background(), "metrics:1:x", map[string]int{"a": 1}, 0))
	require.False(t, srv.Exists("metrics:1:x"))
}
