package database

import (
	"context"
	"encoding/json"
	"time"
)

const (
	CacheKeySettings = "dotmac:settings"
	CacheKeyNASList  = "dotmac:nas:list"
	CacheKeyNAS      = "dotmac:nas:"

	CacheTTLSettings = 5 * time.Minute
	CacheTTLNAS      = 2 * time.Minute
)

// CacheGet retrieves a value from Redis and unmarshals it into dest.
func CacheGet(key string, dest interface{}) error {
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis with a TTL.
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes keys from Redis.
func CacheDelete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// InvalidateNASCache clears all NAS-related caches.
func InvalidateNASCache() {
	CacheDelete(CacheKeyNASList)
	ctx := context.Background()
	iter := Redis.Scan(ctx, 0, CacheKeyNAS+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		Redis.Del(ctx, keys...)
	}
}

// InvalidateSettingsCache clears the settings cache.
func InvalidateSettingsCache() {
	CacheDelete(CacheKeySettings)
}
