// Package tasks 定义后台任务的类型与负载。
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypeBoardSave  = "board:save"  // 单个房间的笔划日志刷盘
	TypeBoardEvict = "board:evict" // 周期性的闲置房间刷盘+逐出检查
)

// BoardSavePayload 是 board:save 任务的负载
type BoardSavePayload struct {
	RoomID string `json:"roomId"`
}

// NewBoardSaveTask 创建一个房间刷盘任务
func NewBoardSaveTask(roomID string) (*asynq.Task, error) {
	payload, err := json.Marshal(BoardSavePayload{RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal board save payload: %w", err)
	}
	return asynq.NewTask(TypeBoardSave, payload), nil
}

// NewBoardEvictTask 创建周期性的闲置房间检查任务（无负载）
func NewBoardEvictTask() *asynq.Task {
	return asynq.NewTask(TypeBoardEvict, nil)
}
