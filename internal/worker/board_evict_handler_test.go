package worker_test // 测试包

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
	"collaborative-whiteboard/internal/worker"
)

// staticRooms 是 RoomLister 的固定返回实现
type staticRooms struct {
	ids []string
}

func (s staticRooms) ActiveRoomIDs() []string { return s.ids }

func TestBoardEvictHandler_EvictsIdleRooms(t *testing.T) {
	// Arrange: 房间闲置且没有在线连接
	mockRepo := new(mocks.BoardRepository)
	mockRepo.On("Load", mock.Anything, "room1").Return(nil, repository.ErrBoardNotFound).Once()
	mockRepo.On("Save", mock.Anything, "room1", mock.Anything).Return(nil).Once()
	boards := service.NewBoardService(mockRepo)
	_, err := boards.DrawStart(context.Background(), "room1", "alice", domain.Point{X: 1, Y: 1}, "#000", 2)
	require.NoError(t, err)
	handler := worker.NewBoardEvictHandler(boards, staticRooms{}, time.Millisecond)

	// Act
	time.Sleep(10 * time.Millisecond)
	err = handler.ProcessTask(context.Background(), tasks.NewBoardEvictTask())

	// Assert: 刷盘后逐出，任务本身总是成功
	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestBoardEvictHandler_SkipsRoomsWithLiveConnections(t *testing.T) {
	// Arrange: lastActive 已超时，但 Hub 报告房间仍有连接
	mockRepo := new(mocks.BoardRepository)
	mockRepo.On("Load", mock.Anything, "room1").Return(nil, repository.ErrBoardNotFound).Once()
	boards := service.NewBoardService(mockRepo)
	_, err := boards.Join(context.Background(), "room1")
	require.NoError(t, err)
	handler := worker.NewBoardEvictHandler(boards, staticRooms{ids: []string{"room1"}}, time.Millisecond)

	// Act
	time.Sleep(10 * time.Millisecond)
	err = handler.ProcessTask(context.Background(), tasks.NewBoardEvictTask())

	// Assert: 有在线成员的房间不被动
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}
