package policy

import (
	"context"
	"testing"
	"time"

	"SecureAccess/api/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	settings map[string]string
	calls    int
}

func (c *countingProvider) Settings(context.Context) (map[string]string, error) {
	c.calls++
	out := make(map[string]string, len(c.settings))
	for k, v := range c.settings {
		out[k] = v
	}
	return out, nil
}

func startRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	require.NoError(t, cache.Init("", mr.Addr()))
	t.Cleanup(func() {
		_ = cache.Client.Close()
		cache.Client = nil
	})
	return mr
}

func TestCachedProvider_ServesFromRedisUntilInvalidated(t *testing.T) {
	mr := startRedis(t)
	ctx := context.Background()
	next := &countingProvider{settings: map[string]string{KeyMaxDevices: "3"}}
	p := NewCachedProvider(next, time.Minute)

	got, err := p.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", got[KeyMaxDevices])
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists(settingsCacheKey))

	next.settings[KeyMaxDevices] = "7"
	got, err = p.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", got[KeyMaxDevices])
	assert.Equal(t, 1, next.calls)

	Invalidate(ctx)
	got, err = p.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", got[KeyMaxDevices])
	assert.Equal(t, 2, next.calls)
}

func TestCachedProvider_ExpiresAfterTTL(t *testing.T) {
	mr := startRedis(t)
	ctx := context.Background()
	next := &countingProvider{settings: map[string]string{KeyAutoAuthorize: "true"}}
	p := NewCachedProvider(next, time.Second)

	_, err := p.Settings(ctx)
	require.NoError(t, err)
	next.settings[KeyAutoAuthorize] = "false"
	mr.FastForward(2 * time.Second)

	got, err := p.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "false", got[KeyAutoAuthorize])
	assert.Equal(t, 2, next.calls)
}

func TestCachedProvider_CorruptEntryFallsThrough(t *testing.T) {
	mr := startRedis(t)
	require.NoError(t, mr.Set(settingsCacheKey, "{not json"))
	next := &countingProvider{settings: map[string]string{KeyInactivityDays: "30"}}

	got, err := NewCachedProvider(next, time.Minute).Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30", got[KeyInactivityDays])
	assert.Equal(t, 1, next.calls)
}

func TestCachedProvider_WithoutRedis(t *testing.T) {
	next := &countingProvider{settings: map[string]string{KeyMaxDevices: "5"}}
	p := NewCachedProvider(next, 0)
	for i := 0; i < 2; i++ {
		got, err := p.Settings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "5", got[KeyMaxDevices])
	}
	assert.Equal(t, 2, next.calls)
}
