package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	st, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedisStore_PutGet(t *testing.T) {
	st, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "abc", []byte{0xde, 0xad}, time.Minute))

	data, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, data)
	assert.True(t, mr.Exists("secret:abc"), "key should carry the default prefix")
}

func TestRedisStore_PutIsWriteOnce(t *testing.T) {
	st, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "abc", []byte("first"), time.Minute))
	err := st.Put(ctx, "abc", []byte("second"), time.Minute)
	assert.ErrorIs(t, err, ErrExists)

	data, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestRedisStore_Expiry(t *testing.T) {
	st, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "abc", []byte("x"), 10*time.Second))

	ttl, err := st.TimeToLive(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, ttl)

	mr.FastForward(11 * time.Second)

	_, err = st.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.TimeToLive(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_TimeToLiveSubSecond(t *testing.T) {
	st, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "abc", []byte("x"), time.Second))
	mr.FastForward(700 * time.Millisecond)

	ttl, err := st.TimeToLive(ctx, "abc")
	require.NoError(t, err, "a key with time left is still live")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 300*time.Millisecond)

	data, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestRedisStore_DeleteIdempotent(t *testing.T) {
	st, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "abc", []byte("x"), time.Minute))
	require.NoError(t, st.Delete(ctx, "abc"))
	require.NoError(t, st.Delete(ctx, "abc"))

	_, err := st.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "reliq:ct:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Put(context.Background(), "abc", []byte("x"), time.Minute))
	assert.True(t, mr.Exists("reliq:ct:abc"))
}

func TestRedisStore_RejectsNonPositiveTTL(t *testing.T) {
	st, _ := setupRedis(t)
	err := st.Put(context.Background(), "abc", []byte("x"), 0)
	assert.Error(t, err)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(&redis.Options{Addr: addr, MaxRetries: -1}, "")
	assert.Error(t, err)
}
