package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
)

// RoomLister 报告当前仍有在线连接的房间，Hub 满足该接口。
type RoomLister interface {
	ActiveRoomIDs() []string
}

// BoardEvictHandler 处理周期性的闲置房间检查：
// 闲置超过阈值且没有在线连接的房间，运行时状态先刷盘再从内存逐出，
// 下次 join 时再惰性重载。成员元数据（Board）不受影响。
type BoardEvictHandler struct {
	boards  *service.BoardService
	rooms   RoomLister
	idleTTL time.Duration
}

// NewBoardEvictHandler 创建 Handler 实例
func NewBoardEvictHandler(boards *service.BoardService, rooms RoomLister, idleTTL time.Duration) *BoardEvictHandler {
	if boards == nil {
		panic("BoardService cannot be nil for BoardEvictHandler")
	}
	if rooms == nil {
		panic("RoomLister cannot be nil for BoardEvictHandler")
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &BoardEvictHandler{boards: boards, rooms: rooms, idleTTL: idleTTL}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *BoardEvictHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	// 有在线连接的房间即使 lastActive 很久没动（比如只有光标移动）也不逐出
	inUse := make(map[string]bool)
	for _, roomID := range h.rooms.ActiveRoomIDs() {
		inUse[roomID] = true
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	evicted := h.boards.EvictIdle(checkCtx, h.idleTTL, inUse)
	if evicted > 0 {
		logCtx.Infof("Evicted %d idle room(s)", evicted)
	} else {
		logCtx.Debug("No idle rooms to evict")
	}
	// 单个房间刷盘失败只影响该房间，留待下轮，不让周期任务整体重试
	return nil
}
