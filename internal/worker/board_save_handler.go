package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
)

// BoardSaveHandler 处理单个房间的笔划日志刷盘任务。
// draw-end 和 clear-board 触发的隐式刷盘都走这里，
// 让持久化 IO 完全离开房间的实时路径。
type BoardSaveHandler struct {
	boards *service.BoardService
}

// NewBoardSaveHandler 创建 Handler 实例
func NewBoardSaveHandler(boards *service.BoardService) *BoardSaveHandler {
	if boards == nil {
		panic("BoardService cannot be nil for BoardSaveHandler")
	}
	return &BoardSaveHandler{boards: boards}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *BoardSaveHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.BoardSavePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal board save payload")
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx := logrus.WithFields(logrus.Fields{"task_type": t.Type(), "room_id": payload.RoomID})

	saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := h.boards.Save(saveCtx, payload.RoomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			// 房间在任务执行前已被逐出，逐出本身会刷盘，跳过即可
			logCtx.Debug("Room already evicted, skipping flush")
			return nil
		}
		logCtx.WithError(err).Error("Board flush failed")
		return fmt.Errorf("flush board %s: %w", payload.RoomID, err)
	}
	logCtx.Debug("Board flushed")
	return nil
}
