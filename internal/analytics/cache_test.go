package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data   map[string]string
	ttl    time.Duration
	getErr error
	setErr error
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
	kv := &fakeKV{data: map[string]string{}}
	cache := NewRedisCache(kv, "orderflow:")
	ctx := context.Background()

	var miss FeedbackData
	found, err := cache.Get(ctx, "k", &miss)
	require.NoError(t, err)
	assert.False(t, found)

	in := FeedbackData{Count: 2, AverageRating: 4.5, Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 1}}
	require.NoError(t, cache.Set(ctx, "k", &in, time.Minute))
	assert.Equal(t, time.Minute, kv.ttl)
	assert.Contains(t, kv.data, "orderflow:k")

	var out FeedbackData
	found, err = cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)

	kv.data["orderflow:bad"] = "{not json"
	_, err = cache.Get(ctx, "bad", &out)
	assert.Error(t, err)

	kv.getErr = errors.New("redis down")
	_, err = cache.Get(ctx, "k", &out)
	assert.Error(t, err)

	kv.setErr = errors.New("redis down")
	assert.Error(t, cache.Set(ctx, "k", &in, time.Minute))
}

func TestCacheKey(t *testing.T) {
	req := validRequest()
	staff := int64(3)

	base := cacheKey("sales", req)
	assert.Contains(t, base, "analytics:sales:")
	assert.Contains(t, base, ":all")

	req.Category = "Food"
	req.StaffID = &staff
	assert.NotEqual(t, base, cacheKey("sales", req))
	assert.Contains(t, cacheKey("sales", req), ":food:3")
}

func TestNopCache(t *testing.T) {
	var c NopCache
	found, err := c.Get(context.Background(), "k", &SalesData{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(context.Background(), "k", 1, time.Second))
}
