package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// BoardRepository 定义了房间笔划日志的持久化操作。
// 存储以 roomID 为键，整体覆盖写入完整的笔划序列。
type BoardRepository interface {
	// Save 将房间的完整笔划序列序列化到持久存储，覆盖旧内容。
	Save(ctx context.Context, roomID string, strokes []domain.Stroke) error

	// Load 读取房间的笔划序列。
	// 房间从未保存过时返回 ErrBoardNotFound，调用方应视为空日志而非故障。
	Load(ctx context.Context, roomID string) ([]domain.Stroke, error)
}
