package users

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/munirahkamaluddin/realm-dotnet/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_SaveGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "test:user:")

	ctx := context.Background()
	u := &models.User{Identity: "u1", RefreshToken: "rt-1", ServerURI: "http://sync.local"}
	require.NoError(t, store.Save(ctx, u))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "rt-1", got.RefreshToken)
	require.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "u1"))
	got2, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisStore_NoExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "")

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &models.User{Identity: "u2", RefreshToken: "rt-2"}))

	// refresh tokens never expire server-side, neither does the stored copy
	m.FastForward(365 * 24 * time.Hour)

	got, err := store.Get(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, m.Exists("syncuser:u2"))
}

func TestRedisStore_ListByPrefix(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "test:user:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.User{Identity: "b", RefreshToken: "rb"}))
	require.NoError(t, store.Save(ctx, &models.User{Identity: "a", RefreshToken: "ra"}))
	// unrelated key must be ignored
	require.NoError(t, m.Set("other:key", "x"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].Identity)
	require.Equal(t, "b", list[1].Identity)

	// a registry restored from Redis sees both users
	reg := NewRegistry(store)
	n, err := reg.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, ok := reg.Lookup("a")
	require.True(t, ok)
}
