package cache

import (
	"Recall_1.0/backend/go/internal/models"
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "recall:descriptors:"

// DescriptorCache defines the interface for the descriptor listing cache.
// 人脸匹配客户端会高频轮询描述符列表，缓存命中可以省掉整个文档的读取。
type DescriptorCache interface {
	// Get 返回缓存的列表；未命中时返回 (nil, nil)。
	Get(ctx context.Context, email string) (*models.DescriptorListing, error)
	Set(ctx context.Context, email string, listing *models.DescriptorListing) error
	// Invalidate 在任何 relation 变更后删除该用户的缓存条目。
	Invalidate(ctx context.Context, email string) error
}

// RedisDescriptorCache is an implementation of DescriptorCache using Redis.
type RedisDescriptorCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDescriptorCache creates a new RedisDescriptorCache.
func NewRedisDescriptorCache(client *redis.Client, ttl time.Duration) *RedisDescriptorCache {
	return &RedisDescriptorCache{client: client, ttl: ttl}
}

// Get 从 Redis 读取缓存的描述符列表。
func (c *RedisDescriptorCache) Get(ctx context.Context, email string) (*models.DescriptorListing, error) {
	data, err := c.client.Get(ctx, keyPrefix+email).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var listing models.DescriptorListing
	if err := json.Unmarshal(data, &listing); err != nil {
		// 缓存内容损坏时按未命中处理，让读路径回源重建。
		return nil, nil
	}
	return &listing, nil
}

// Set 将描述符列表写入 Redis，带过期时间。
func (c *RedisDescriptorCache) Set(ctx context.Context, email string, listing *models.DescriptorListing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+email, data, c.ttl).Err()
}

// Invalidate 删除该用户的缓存条目。
func (c *RedisDescriptorCache) Invalidate(ctx context.Context, email string) error {
	return c.client.Del(ctx, keyPrefix+email).Err()
}
