package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	orig := client
	SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client = orig })
	return mr
}

func TestInitInvalidURL(t *testing.T) {
	err := Init("://invalid-url", "")
	assert.Error(t, err)
}

func TestInitWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	orig := client
	t.Cleanup(func() { client = orig })

	require.NoError(t, Init("redis://"+mr.Addr(), ""))
	assert.NotNil(t, GetClient())
}

func TestBasicOps(t *testing.T) {
	useMiniredis(t)
	ctx := context.Background()

	require.NoError(t, Set(ctx, "k", "v", time.Minute))
	v, err := Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, Del(ctx, "k"))
	_, err = Get(ctx, "k")
	assert.True(t, IsNil(err))

	ok, err := SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseLock_OnlyOwner(t *testing.T) {
	useMiniredis(t)
	ctx := context.Background()

	_, err := SetNX(ctx, "lock", "owner", time.Minute)
	require.NoError(t, err)

	released, err := ReleaseLock(ctx, "lock", "intruder")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = ReleaseLock(ctx, "lock", "owner")
	require.NoError(t, err)
	assert.True(t, released)

	_, err = Get(ctx, "lock")
	assert.True(t, IsNil(err))
}

func TestPushCappedAndPublish(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, PushCapped(ctx, "inbox", v, 2, time.Hour))
	}
	items, err := ListRange(ctx, "inbox", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, items)
	assert.True(t, mr.TTL("inbox") > 0)

	require.NoError(t, Publish(ctx, "events", "hello"))
}

func TestBasicOpsWithUnreachableRedis(t *testing.T) {
	orig := client
	t.Cleanup(func() { client = orig })
	cli := goredis.NewClient(&goredis.Options{
		Addr:         "127.0.0.1:0",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	SetClient(cli)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.Error(t, Set(ctx, "k", "v", time.Second))
	_, err := Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, IsNil(err))
	assert.Error(t, Del(ctx, "k"))
	_, err = SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
}
