package policy

import (
	"context"
	"encoding/json"
	"time"

	"SecureAccess/api/cache"
)

const settingsCacheKey = "policy:settings"

// CachedProvider reads settings through redis. Any cache failure falls
// through to the wrapped provider.
type CachedProvider struct {
	next Provider
	ttl  time.Duration
}

func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedProvider{next: next, ttl: ttl}
}

func (p *CachedProvider) Settings(ctx context.Context) (map[string]string, error) {
	if raw, err := cache.Get(ctx, settingsCacheKey); err == nil && raw != "" {
		var settings map[string]string
		if json.Unmarshal([]byte(raw), &settings) == nil {
			return settings, nil
		}
	}
	settings, err := p.next.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(settings); err == nil {
		_ = cache.Set(ctx, settingsCacheKey, encoded, p.ttl)
	}
	return settings, nil
}

// Invalidate drops the cached copy after an administrator changes a setting.
func Invalidate(ctx context.Context) {
	_ = cache.Delete(ctx, settingsCacheKey)
}
