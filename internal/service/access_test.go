package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"
)

var (
	alice = domain.Identity{ID: "alice", Name: "Alice"}
	bob   = domain.Identity{ID: "bob", Name: "Bob"}
	carol = domain.Identity{ID: "carol", Name: "Carol"}
)

// --- 测试 Join 方法 ---

func TestAccessService_FirstJoinerBecomesOwner(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()

	// Act: 首位加入者无需令牌
	err := svc.Join(ctx, "room1", alice, "")

	// Assert
	assert.NoError(t, err, "首位加入者应直接通过")
	owner, ok := svc.Owner("room1")
	require.True(t, ok)
	assert.Equal(t, alice.ID, owner, "首位加入者应成为 Owner")
	assert.True(t, svc.IsMember("room1", alice.ID))
	mockInvites.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestAccessService_MemberRejoinsWithoutInvite(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))

	// Act & Assert: 已是成员的重连不需要令牌
	assert.NoError(t, svc.Join(ctx, "room1", alice, ""), "既有成员重新加入不应要求令牌")
	mockInvites.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
}

func TestAccessService_JoinWithoutInvite_Rejected(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))

	// Act
	err := svc.Join(ctx, "room1", bob, "")

	// Assert
	require.Error(t, err, "非成员无令牌加入应被拒绝")
	assert.True(t, errors.Is(err, service.ErrInvalidInvite))
	assert.False(t, svc.IsMember("room1", bob.ID))
}

func TestAccessService_JoinWithValidInvite(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))

	// 设置 Mock 预期: 令牌被兑换且只兑换一次
	mockInvites.On("Consume", ctx, "tok-123").
		Return(&domain.Invite{Token: "tok-123", RoomID: "room1", CreatedAt: time.Now()}, nil).
		Once()

	// Act
	err := svc.Join(ctx, "room1", bob, "tok-123")

	// Assert
	assert.NoError(t, err)
	assert.True(t, svc.IsMember("room1", bob.ID), "兑换成功后应成为成员")
	owner, _ := svc.Owner("room1")
	assert.Equal(t, alice.ID, owner, "Owner 不应因新成员加入而改变")
	mockInvites.AssertExpectations(t)
}

func TestAccessService_JoinWithUnknownInvite(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))
	mockInvites.On("Consume", ctx, "expired").Return(nil, repository.ErrInviteNotFound).Once()

	// Act
	err := svc.Join(ctx, "room1", bob, "expired")

	// Assert: 过期/未知/已用过的令牌一律视为无效
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidInvite))
	assert.False(t, svc.IsMember("room1", bob.ID))
	mockInvites.AssertExpectations(t)
}

func TestAccessService_JoinWithWrongRoomInvite(t *testing.T) {
	// Arrange: 令牌指向另一个房间
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))
	mockInvites.On("Consume", ctx, "tok-other").
		Return(&domain.Invite{Token: "tok-other", RoomID: "room2", CreatedAt: time.Now()}, nil).
		Once()

	// Act
	err := svc.Join(ctx, "room1", bob, "tok-other")

	// Assert
	require.Error(t, err, "其他房间的令牌不应被接受")
	assert.True(t, errors.Is(err, service.ErrInvalidInvite))
	assert.False(t, svc.IsMember("room1", bob.ID))
	mockInvites.AssertExpectations(t)
}

// --- 测试 CreateInvite 方法 ---

func TestAccessService_CreateInvite_Success(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	inviteTTL := 2 * time.Hour
	svc := service.NewAccessService(mockInvites, inviteTTL)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))

	// 设置 Mock 预期: 令牌带配置的 TTL 存储
	mockInvites.On("Save", ctx, mock.MatchedBy(func(invite *domain.Invite) bool {
		assert.Equal(t, "room1", invite.RoomID)
		assert.Len(t, invite.Token, 32, "令牌应为 128 位随机值的 hex 编码")
		return true
	}), inviteTTL).Return(nil).Once()

	// Act
	token, err := svc.CreateInvite(ctx, "room1", alice)

	// Assert
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	mockInvites.AssertExpectations(t)
}

func TestAccessService_CreateInvite_NotOwner(t *testing.T) {
	// Arrange: bob 通过邀请成为成员，但不是 Owner
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))
	mockInvites.On("Consume", ctx, "tok-123").
		Return(&domain.Invite{Token: "tok-123", RoomID: "room1"}, nil).Once()
	require.NoError(t, svc.Join(ctx, "room1", bob, "tok-123"))

	// Act
	token, err := svc.CreateInvite(ctx, "room1", bob)

	// Assert
	require.Error(t, err, "非 Owner 不应能签发邀请")
	assert.True(t, errors.Is(err, service.ErrNotOwner))
	assert.Empty(t, token)
	mockInvites.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccessService_CreateInvite_RoomNotFound(t *testing.T) {
	// Arrange
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)

	// Act
	_, err := svc.CreateInvite(context.Background(), "ghost", alice)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

// --- 完整邀请流程 ---

func TestAccessService_InviteFlow(t *testing.T) {
	// Arrange: 用一个进程内的假存储模拟令牌的单次使用语义
	mockInvites := new(mocks.InviteRepository)
	svc := service.NewAccessService(mockInvites, time.Hour)
	ctx := context.Background()

	var stored *domain.Invite
	mockInvites.On("Save", ctx, mock.AnythingOfType("*domain.Invite"), time.Hour).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*domain.Invite)
		}).Return(nil).Once()

	// Act 1: alice 创建房间并签发邀请
	require.NoError(t, svc.Join(ctx, "room1", alice, ""))
	token, err := svc.CreateInvite(ctx, "room1", alice)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, token, stored.Token, "返回给请求者的令牌应与存储的一致")

	// Act 2: bob 用令牌加入，首次兑换成功
	mockInvites.On("Consume", ctx, token).Return(stored, nil).Once()
	require.NoError(t, svc.Join(ctx, "room1", bob, token))
	assert.True(t, svc.IsMember("room1", bob.ID))

	// Act 3: carol 复用同一令牌，令牌已被消费
	mockInvites.On("Consume", ctx, token).Return(nil, repository.ErrInviteNotFound).Once()
	err = svc.Join(ctx, "room1", carol, token)

	// Assert
	require.Error(t, err, "令牌单次使用，复用应被拒绝")
	assert.True(t, errors.Is(err, service.ErrInvalidInvite))
	assert.False(t, svc.IsMember("room1", carol.ID))
	mockInvites.AssertExpectations(t)
}
