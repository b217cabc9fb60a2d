package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestFetchCachesLoaderResult(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJSON(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", time.Minute)
	ctx := context.Background()

	key, err := c.Key(ctx, "client", "7")
	require.NoError(t, err)
	assert.Equal(t, "test:client:7:1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "Kopi Nusantara"}, nil
	}
	var got payload
	require.NoError(t, c.Fetch(ctx, key, &got, loader))
	require.NoError(t, c.Fetch(ctx, key, &got, loader))
	assert.Equal(t, "Kopi Nusantara", got.Name)
	assert.Equal(t, 1, calls)

	mr.FastForward(2 * time.Minute)
	require.NoError(t, c.Fetch(ctx, key, &got, loader))
	assert.Equal(t, 2, calls)
}

func TestBumpChangesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJSON(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", time.Minute)
	ctx := context.Background()

	before, err := c.Key(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.Key(ctx, "x")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFetchWithoutClientLoadsDirectly(t *testing.T) {
	var c *JSON
	var got payload
	require.NoError(t, c.Fetch(context.Background(), "k", &got, func(context.Context) (any, error) {
		return payload{Name: "direct"}, nil
	}))
	assert.Equal(t, "direct", got.Name)

	boom := errors.New("boom")
	err := c.Fetch(context.Background(), "k", &got, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
