package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/logging"
)

type fakeCache struct {
	values  map[string]string
	getErr  error
	setErr  error
	setTTLs []time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if c.getErr != nil {
		return redis.NewStringResult("", c.getErr)
	}
	v, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if c.setErr != nil {
		return redis.NewStatusResult("", c.setErr)
	}
	c.values[key] = value.(string)
	c.setTTLs = append(c.setTTLs, ttl)
	return redis.NewStatusResult("OK", nil)
}

type countingVerifier struct {
	Static
	calls int
	err   error
}

func (v *countingVerifier) Exists(ctx context.Context, id string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.Static.Exists(ctx, id)
}

func TestCachedVerifierCachesPositiveAndNegativeAnswers(t *testing.T) {
	ctx := context.Background()
	next := &countingVerifier{Static: NewStatic("29001011234567")}
	cache := newFakeCache()
	v := NewCachedVerifier(next, cache, time.Minute, logging.Discard())

	for i := 0; i < 3; i++ {
		ok, err := v.Exists(ctx, "29001011234567")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = v.Exists(ctx, "00000000000000")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	assert.Equal(t, 2, next.calls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, cache.setTTLs)
}

func TestCachedVerifierFallsThroughOnCacheFailure(t *testing.T) {
	ctx := context.Background()
	next := &countingVerifier{Static: NewStatic("1")}
	cache := newFakeCache()
	cache.getErr = errors.New("connection reset")
	cache.setErr = errors.New("connection reset")
	v := NewCachedVerifier(next, cache, time.Minute, logging.Discard())

	ok, err := v.Exists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, next.calls)
}

func TestCachedVerifierDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	next := &countingVerifier{err: errs.New(errs.CodeStoreUnavailable, "down")}
	cache := newFakeCache()
	v := NewCachedVerifier(next, cache, time.Minute, logging.Discard())

	_, err := v.Exists(ctx, "1")
	require.Error(t, err)
	assert.Empty(t, cache.values)
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	reg := NewStatic("29001011234567")

	require.NoError(t, Require(ctx, reg, " 29001011234567 "))
	err := Require(ctx, reg, "123")
	assert.True(t, errs.HasCode(err, errs.CodeValidation), "got %v", err)
}
