package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var Client *redis.Client

var ErrNotInitialized = errors.New("redis client not initialized")

// Init connects using REDIS_URL when given, otherwise the plain address
// (defaulting to localhost:6379). A failed ping leaves Client nil so callers
// fall back to their uncached paths.
func Init(redisURL, addr string) error {
	var client *redis.Client
	switch {
	case redisURL != "":
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client = redis.NewClient(opt)
	default:
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			Username: os.Getenv("REDIS_USERNAME"),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	Client = client
	return nil
}

func InitFromEnv() error {
	return Init(os.Getenv("REDIS_URL"), os.Getenv("REDIS_ADDR"))
}

func Available() bool {
	return Client != nil
}

// Ping reports redis health for the health endpoint.
func Ping(ctx context.Context) error {
	if Client == nil {
		return ErrNotInitialized
	}
	return Client.Ping(ctx).Err()
}

func Get(ctx context.Context, key string) (string, error) {
	if Client == nil {
		return "", ErrNotInitialized
	}

	val, err := Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if Client == nil {
		return ErrNotInitialized
	}
	return Client.Set(ctx, key, value, ttl).Err()
}

func Delete(ctx context.Context, key string) error {
	if Client == nil {
		return nil
	}
	return Client.Del(ctx, key).Err()
}

// Acquire sets key to token only if it is absent. It reports whether the
// caller now owns the key.
func Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if Client == nil {
		return false, ErrNotInitialized
	}
	return Client.SetNX(ctx, key, token, ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes key only while it still holds token.
func Release(ctx context.Context, key, token string) error {
	if Client == nil {
		return ErrNotInitialized
	}
	return releaseScript.Run(ctx, Client, []string{key}, token).Err()
}
