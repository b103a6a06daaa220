package similarity_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/governance/internal/similarity"
)

type countingScorer struct {
	calls  int
	result similarity.Result
	err    error
}

func (c *countingScorer) Score(context.Context, similarity.Request) (similarity.Result, error) {
	c.calls++
	return c.result, c.err
}

func TestCachedClientMemoizes(t *testing.T) {
	inner := &countingScorer{result: similarity.Result{Valid: true, Similarity: 0.88}}
	client := similarity.NewCachedClient(inner, similarity.NewMemoryCache(), time.Minute)

	req := similarity.Request{Description: "A pump.", ClusterID: "pumps"}
	for i := 0; i < 3; i++ {
		result, err := client.Score(context.Background(), req)
		require.NoError(t, err)
		assert.InDelta(t, 0.88, result.Similarity, 0.001)
	}
	assert.Equal(t, 1, inner.calls, "repeat scores come from the cache")

	// A different description is a different key.
	_, err := client.Score(context.Background(), similarity.Request{Description: "Another pump.", ClusterID: "pumps"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedClientDoesNotCacheErrors(t *testing.T) {
	inner := &countingScorer{err: similarity.ErrUnavailable}
	client := similarity.NewCachedClient(inner, similarity.NewMemoryCache(), time.Minute)

	req := similarity.Request{Description: "A pump.", ClusterID: "pumps"}
	_, err := client.Score(context.Background(), req)
	assert.ErrorIs(t, err, similarity.ErrUnavailable)
	_, err = client.Score(context.Background(), req)
	assert.ErrorIs(t, err, similarity.ErrUnavailable)
	assert.Equal(t, 2, inner.calls)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cache := similarity.NewCache(context.Background(), rdb)
	inner := &countingScorer{result: similarity.Result{Valid: true, Similarity: 0.7}}
	client := similarity.NewCachedClient(inner, cache, time.Minute)

	req := similarity.Request{Description: "A pump.", ClusterID: "pumps"}
	_, err := client.Score(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Score(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestNewCacheFallsBackToMemory(t *testing.T) {
	// No redis at this address; the constructor must not fail.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer rdb.Close()

	cache := similarity.NewCache(context.Background(), rdb)
	require.NotNil(t, cache)
	_, ok := cache.(*similarity.MemoryCache)
	assert.True(t, ok)
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := similarity.NewMemoryCache()
	require.NoError(t, cache.Set(context.Background(), "k", "v", 10*time.Millisecond))

	v, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, err = cache.Get(context.Background(), "k")
	assert.Error(t, err)
}
