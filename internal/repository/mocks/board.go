// Package mocks 提供 repository 接口的 testify Mock 实现，仅用于测试。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"collaborative-whiteboard/internal/domain"
)

// BoardRepository 是 repository.BoardRepository 的 Mock 实现
type BoardRepository struct {
	mock.Mock
}

func (m *BoardRepository) Save(ctx context.Context, roomID string, strokes []domain.Stroke) error {
	args := m.Called(ctx, roomID, strokes)
	return args.Error(0)
}

func (m *BoardRepository) Load(ctx context.Context, roomID string) ([]domain.Stroke, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Stroke), args.Error(1)
}
