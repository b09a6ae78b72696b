// Package redisstate 提供基于 Redis 的易失状态存储实现。
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// RedisInviteRepository 是 InviteRepository 接口的 Redis 实现。
// 令牌以带 TTL 的 key 存储，兑换时用 GETDEL 原子取出并删除，
// 保证单次使用语义。
type RedisInviteRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisInviteRepository 创建 RedisInviteRepository 实例
func NewRedisInviteRepository(client *redis.Client, keyPrefix string) *RedisInviteRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisInviteRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "wb:" // 默认前缀 "wb:" (whiteboard)
	}
	return &RedisInviteRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisInviteRepository) inviteKey(token string) string {
	return fmt.Sprintf("%sinvite:%s", r.keyPrefix, token)
}

// Save 存储邀请记录并设置过期时间。
func (r *RedisInviteRepository) Save(ctx context.Context, invite *domain.Invite, ttl time.Duration) error {
	key := r.inviteKey(invite.Token)
	data, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("redis: marshal invite for room %s: %w", invite.RoomID, err)
	}
	if err := r.client.Set(ctx, key, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis: save invite on key %s: %w", key, err)
	}
	return nil
}

// Consume 原子地取出并删除令牌对应的邀请记录。
func (r *RedisInviteRepository) Consume(ctx context.Context, token string) (*domain.Invite, error) {
	key := r.inviteKey(token)
	data, err := r.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrInviteNotFound
		}
		return nil, fmt.Errorf("redis: consume invite on key %s: %w", key, err)
	}
	var invite domain.Invite
	if err := json.Unmarshal([]byte(data), &invite); err != nil {
		return nil, fmt.Errorf("redis: unmarshal invite on key %s: %w", key, err)
	}
	return &invite, nil
}
