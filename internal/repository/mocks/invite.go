package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// InviteRepository 是 repository.InviteRepository 的 Mock 实现
type InviteRepository struct {
	mock.Mock
}

func (m *InviteRepository) Save(ctx context.Context, invite *domain.Invite, ttl time.Duration) error {
	args := m.Called(ctx, invite, ttl)
	return args.Error(0)
}

func (m *InviteRepository) Consume(ctx context.Context, token string) (*domain.Invite, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invite), args.Error(1)
}
