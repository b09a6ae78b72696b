package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// roomState 是单个房间的运行时状态：有序笔划日志加共享的 redo 栈。
// 所有读写都必须持有 mu——draw/undo/redo/clear 都是先读后写的复合操作，
// 跨房间的操作互不相关，可以完全并行。
type roomState struct {
	mu         sync.Mutex
	loaded     bool
	strokes    []domain.Stroke
	redo       []domain.Stroke
	active     map[string]string // authorID -> 该作者当前笔划的 ID
	lastActive time.Time
}

// BoardService 是房间运行时状态的注册表（Room Coordinator）。
// 状态在首次 join 或首次 draw 时惰性物化：有持久化记录则用它初始化
// strokes，redo 总是从空开始。闲置房间由周期任务刷盘后逐出，
// 下次 join 再惰性重载。
type BoardService struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
	repo  repository.BoardRepository
}

// NewBoardService 创建 BoardService 实例。
func NewBoardService(repo repository.BoardRepository) *BoardService {
	if repo == nil {
		panic("BoardRepository cannot be nil for BoardService")
	}
	return &BoardService{
		rooms: make(map[string]*roomState),
		repo:  repo,
	}
}

// getRoom 返回房间状态。create 为 false 且房间未物化时返回 nil——
// 对未知房间的操作是静默 no-op，和非成员的 draw 操作保持一致。
func (s *BoardService) getRoom(roomID string, create bool) *roomState {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return room
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok = s.rooms[roomID]; ok {
		return room
	}
	room = &roomState{active: make(map[string]string), lastActive: time.Now()}
	s.rooms[roomID] = room
	return room
}

// ensureLoaded 在房间锁内做一次性的持久化读取。
// 无记录视为空日志，不是错误；读取失败时保持未加载状态，下次重试。
func (s *BoardService) ensureLoaded(ctx context.Context, roomID string, room *roomState) error {
	if room.loaded {
		return nil
	}
	strokes, err := s.repo.Load(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrBoardNotFound) {
			return fmt.Errorf("load board for room %s: %w", roomID, err)
		}
		strokes = nil
	}
	room.strokes = strokes
	room.redo = nil
	room.loaded = true
	return nil
}

// Join 物化房间运行时状态并返回当前笔划日志的快照，
// 调用方将其作为 rebuild 单播给加入者。
func (s *BoardService) Join(ctx context.Context, roomID string) ([]domain.Stroke, error) {
	room := s.getRoom(roomID, true)
	room.mu.Lock()
	defer room.mu.Unlock()
	if err := s.ensureLoaded(ctx, roomID, room); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load persisted board")
		return nil, ErrInternalServer
	}
	room.lastActive = time.Now()
	return domain.CloneStrokes(room.strokes), nil
}

// DrawStart 追加一条单点新笔划并把它记为作者的当前笔划。
// 返回的笔划（含服务端分配的 ID）由调用方广播给房间内其他成员。
// 注意：undo 之后的新笔划不清空 redo 栈，这是沿袭下来的既定行为。
func (s *BoardService) DrawStart(ctx context.Context, roomID string, authorID string, p domain.Point, color string, size float64) (domain.Stroke, error) {
	room := s.getRoom(roomID, true)
	room.mu.Lock()
	defer room.mu.Unlock()
	if err := s.ensureLoaded(ctx, roomID, room); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load persisted board")
		return domain.Stroke{}, ErrInternalServer
	}
	stroke := domain.Stroke{
		ID:       uuid.NewString(),
		Points:   []domain.Point{p},
		Color:    color,
		Size:     size,
		AuthorID: authorID,
	}
	room.strokes = append(room.strokes, stroke)
	room.active[authorID] = stroke.ID
	room.lastActive = time.Now()
	return stroke.Clone(), nil
}

// DrawMove 把点追加到该作者最近开始的笔划上。
// 作者没有进行中的笔划、或它已被 undo 掉时丢弃该点（返回 false）。
func (s *BoardService) DrawMove(roomID string, authorID string, p domain.Point) (string, bool) {
	room := s.getRoom(roomID, false)
	if room == nil {
		return "", false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	strokeID, ok := room.active[authorID]
	if !ok {
		return "", false
	}
	// 作者的当前笔划几乎总在队尾，从尾部反向查找
	for i := len(room.strokes) - 1; i >= 0; i-- {
		if room.strokes[i].ID == strokeID {
			room.strokes[i].Points = append(room.strokes[i].Points, p)
			room.lastActive = time.Now()
			return strokeID, true
		}
	}
	return "", false
}

// DrawEnd 结束作者的当前笔划。返回 true 时调用方应触发一次异步刷盘；
// 作者本来就没有进行中的笔划时返回 false，不触发多余的刷盘。
func (s *BoardService) DrawEnd(roomID string, authorID string) bool {
	room := s.getRoom(roomID, false)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.active[authorID]; !ok {
		return false
	}
	delete(room.active, authorID)
	room.lastActive = time.Now()
	return true
}

// Undo 把笔划日志的末尾移到 redo 栈顶。
// 日志为空或房间未物化时为 no-op（返回 false）。
// 成功时返回整个日志的快照，调用方以 rebuild 广播给全部成员。
func (s *BoardService) Undo(roomID string) ([]domain.Stroke, bool) {
	room := s.getRoom(roomID, false)
	if room == nil {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.strokes) == 0 {
		return nil, false
	}
	last := room.strokes[len(room.strokes)-1]
	room.strokes = room.strokes[:len(room.strokes)-1]
	room.redo = append(room.redo, last)
	room.lastActive = time.Now()
	return domain.CloneStrokes(room.strokes), true
}

// Redo 把 redo 栈顶移回笔划日志末尾，是 Undo 的逆操作。
func (s *BoardService) Redo(roomID string) ([]domain.Stroke, bool) {
	room := s.getRoom(roomID, false)
	if room == nil {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.redo) == 0 {
		return nil, false
	}
	last := room.redo[len(room.redo)-1]
	room.redo = room.redo[:len(room.redo)-1]
	room.strokes = append(room.strokes, last)
	room.lastActive = time.Now()
	return domain.CloneStrokes(room.strokes), true
}

// Clear 清空笔划日志和 redo 栈。返回 true 时调用方负责广播清屏信号
// 并触发刷盘，让持久化记录与清空后的状态保持一致。
func (s *BoardService) Clear(roomID string) bool {
	room := s.getRoom(roomID, false)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.strokes = nil
	room.redo = nil
	room.active = make(map[string]string)
	room.lastActive = time.Now()
	return true
}

// Save 把房间当前的笔划日志刷写到持久存储。
// 快照在房间锁内拷贝，IO 在锁外进行，保存不会阻塞该房间的实时绘画。
// 持久化失败不影响内存状态，错误包装为 ErrPersistenceFailure 上报。
func (s *BoardService) Save(ctx context.Context, roomID string) error {
	room := s.getRoom(roomID, false)
	if room == nil {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	if !room.loaded {
		room.mu.Unlock()
		return ErrRoomNotFound
	}
	snapshot := domain.CloneStrokes(room.strokes)
	room.mu.Unlock()

	if err := s.repo.Save(ctx, roomID, snapshot); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Board persistence failed")
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// EvictIdle 把闲置超过 idleFor 的房间刷盘后从注册表逐出。
// inUse 中的房间仍有在线连接（比如成员只在移动光标），一律跳过。
// 先落盘、再确认期间没有新活动才移除，失败的房间留在内存中下轮重试。
// 返回逐出的房间数。
func (s *BoardService) EvictIdle(ctx context.Context, idleFor time.Duration, inUse map[string]bool) int {
	s.mu.RLock()
	candidates := make(map[string]*roomState, len(s.rooms))
	for id, room := range s.rooms {
		candidates[id] = room
	}
	s.mu.RUnlock()

	evicted := 0
	now := time.Now()
	for roomID, room := range candidates {
		if inUse[roomID] {
			continue
		}
		room.mu.Lock()
		if !room.loaded || now.Sub(room.lastActive) < idleFor {
			room.mu.Unlock()
			continue
		}
		seenAt := room.lastActive
		snapshot := domain.CloneStrokes(room.strokes)
		room.mu.Unlock()

		if err := s.repo.Save(ctx, roomID, snapshot); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Eviction flush failed, keeping room in memory")
			continue
		}

		room.mu.Lock()
		stillIdle := room.lastActive.Equal(seenAt)
		room.mu.Unlock()
		if !stillIdle {
			continue
		}
		s.mu.Lock()
		if s.rooms[roomID] == room {
			delete(s.rooms, roomID)
			evicted++
		}
		s.mu.Unlock()
		logrus.WithField("room_id", roomID).Info("Idle room flushed and evicted")
	}
	return evicted
}
