package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// AccessService 负责房间成员资格和邀请令牌的业务逻辑。
// Board（成员元数据）只存在于进程内存中，随进程生命周期存活；
// 邀请令牌经 InviteRepository 存储，带 TTL 且单次使用。
type AccessService struct {
	mu        sync.RWMutex
	boards    map[string]*domain.Board
	invites   repository.InviteRepository
	inviteTTL time.Duration
}

// NewAccessService 创建 AccessService 实例。
func NewAccessService(invites repository.InviteRepository, inviteTTL time.Duration) *AccessService {
	if invites == nil {
		panic("InviteRepository cannot be nil for AccessService")
	}
	if inviteTTL <= 0 {
		inviteTTL = 24 * time.Hour
	}
	return &AccessService{
		boards:    make(map[string]*domain.Board),
		invites:   invites,
		inviteTTL: inviteTTL,
	}
}

// Join 处理加入房间的成员资格判定。
//   - Board 不存在：惰性创建，首位加入者成为 Owner。
//   - 已是成员（含 Owner）：直接通过。
//   - 否则必须出示能解析到本房间的邀请令牌，兑换成功后加入成员集合；
//     失败返回 ErrInvalidInvite，调用方不得把该连接纳入房间广播组。
func (s *AccessService) Join(ctx context.Context, roomID string, who domain.Identity, inviteToken string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": who.ID})

	s.mu.Lock()
	board, exists := s.boards[roomID]
	if !exists {
		s.boards[roomID] = domain.NewBoard(roomID, who.ID)
		s.mu.Unlock()
		logCtx.Info("Board created, first joiner is owner")
		return nil
	}
	if board.IsMember(who.ID) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// 非成员：校验邀请令牌。令牌兑换是 IO 操作，放在锁外。
	if inviteToken == "" {
		logCtx.Warn("Join rejected: no invite token presented")
		return ErrInvalidInvite
	}
	invite, err := s.invites.Consume(ctx, inviteToken)
	if err != nil {
		if errors.Is(err, repository.ErrInviteNotFound) {
			logCtx.Warn("Join rejected: unknown or expired invite token")
			return ErrInvalidInvite
		}
		logCtx.WithError(err).Error("Invite lookup failed")
		return ErrInternalServer
	}
	if invite.RoomID != roomID {
		logCtx.Warn("Join rejected: invite token is for a different room")
		return ErrInvalidInvite
	}

	s.mu.Lock()
	// 兑换期间 Board 不会被删除（成员元数据随进程存活），直接登记成员。
	if board, exists = s.boards[roomID]; exists {
		board.Members[who.ID] = true
	} else {
		// 理论上不可达，防御性地重建
		s.boards[roomID] = domain.NewBoard(roomID, who.ID)
	}
	s.mu.Unlock()
	logCtx.Info("Member added via invite token")
	return nil
}

// CreateInvite 为房间签发邀请令牌，仅 Owner 可调用。
// 令牌为 128 位随机值，只同步返回给请求者，绝不广播。
func (s *AccessService) CreateInvite(ctx context.Context, roomID string, who domain.Identity) (string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": who.ID})

	s.mu.RLock()
	board, exists := s.boards[roomID]
	s.mu.RUnlock()
	if !exists {
		logCtx.Warn("CreateInvite: room has no board")
		return "", ErrRoomNotFound
	}
	if board.OwnerID != who.ID {
		logCtx.Warn("CreateInvite denied: requester is not the owner")
		return "", ErrNotOwner
	}

	token, err := generateInviteToken()
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate invite token")
		return "", ErrInternalServer
	}
	invite := &domain.Invite{
		Token:     token,
		RoomID:    roomID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.invites.Save(ctx, invite, s.inviteTTL); err != nil {
		logCtx.WithError(err).Error("Failed to store invite token")
		return "", ErrInternalServer
	}
	logCtx.Info("Invite token created")
	return token, nil
}

// IsMember 判断身份是否为房间成员。房间无 Board 时一律视为非成员。
func (s *AccessService) IsMember(roomID string, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, exists := s.boards[roomID]
	return exists && board.IsMember(userID)
}

// Owner 返回房间的 Owner ID，房间不存在时第二个返回值为 false。
func (s *AccessService) Owner(roomID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, exists := s.boards[roomID]
	if !exists {
		return "", false
	}
	return board.OwnerID, true
}

// generateInviteToken 生成 128 位加密随机令牌（hex 编码）。
func generateInviteToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
