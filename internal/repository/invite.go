package repository

import (
	"context"
	"time"

	"collaborative-whiteboard/internal/domain"
)

// InviteRepository 定义了邀请令牌的存储和兑换操作。
type InviteRepository interface {
	// Save 存储一条邀请记录，ttl 之后自动失效。ttl 为 0 表示永不过期。
	Save(ctx context.Context, invite *domain.Invite, ttl time.Duration) error

	// Consume 原子地取出并删除令牌对应的邀请记录（单次使用语义）。
	// 令牌不存在或已过期时返回 ErrInviteNotFound。
	Consume(ctx context.Context, token string) (*domain.Invite, error)
}
