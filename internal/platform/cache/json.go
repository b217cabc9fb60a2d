package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON caches loader results in Redis under versioned keys. A nil client turns every
// fetch into a direct load.
type JSON struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewJSON builds a JSON cache whose keys live under namespace.
func NewJSON(client *redis.Client, namespace string, ttl time.Duration) *JSON {
	return &JSON{client: client, namespace: namespace, ttl: ttl}
}

func (c *JSON) versionKey() string {
	return c.namespace + ":version"
}

// Version returns the namespace version, initialising it when missing.
func (c *JSON) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes namespace, parts and the current version.
func (c *JSON) Key(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{c.namespace}, parts...), ":")
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Fetch loads key into dest, calling loader and storing its result on a miss.
func (c *JSON) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every key of the namespace.
func (c *JSON) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey()).Err()
}
