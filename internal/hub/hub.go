package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "event"
	Client  *Client // 消息来源/目标客户端
	RawData []byte  // 仅用于 event (原始 WebSocket 消息)
}

// TaskEnqueuer 抽象后台任务的入队操作，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Hub 维护活跃客户端集合，把入站事件分发到 Access/Board 服务，
// 并按事件类型固定的扇出策略路由出站消息：
//
//	join 的 rebuild            -> 仅加入者单播
//	draw-start/draw-move/cursor -> 房间内其他成员（排除发送者）
//	undo/redo 的 rebuild        -> 全部成员（含请求者）
//	clear-board                -> 全部成员（含请求者）
//	invite-token / error       -> 仅请求者单播
type Hub struct {
	messageChan chan HubMessage

	// 进程级连接索引；同一身份的多个连接不去重
	clients map[*Client]bool
	// 房间广播组，按 roomID 组织
	rooms   map[string]map[*Client]bool
	roomsMu sync.RWMutex

	access   *service.AccessService
	boards   *service.BoardService
	tasksCli TaskEnqueuer
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(access *service.AccessService, boards *service.BoardService, tasksCli TaskEnqueuer) *Hub {
	if access == nil {
		panic("AccessService cannot be nil for Hub")
	}
	if boards == nil {
		panic("BoardService cannot be nil for Hub")
	}
	if tasksCli == nil {
		panic("task enqueuer cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		access:      access,
		boards:      boards,
		tasksCli:    tasksCli,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "event":
			// 转交给该连接的有序队列，主循环不被慢操作阻塞；
			// 同一连接的事件严格按到达顺序处理
			h.dispatchEvent(msg.Client, msg.RawData)
		default:
			log.Warnf("Received unknown hub message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满，消息被丢弃。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: attempted to register a nil client")
		return
	}
	h.roomsMu.Lock()
	h.clients[client] = true
	h.roomsMu.Unlock()
	go h.runClientEvents(client)
	logrus.WithField("user_id", client.identity.ID).Info("Client registered to Hub")
}

// dispatchEvent 把事件追加到客户端自己的有序队列。
// 注销和投递都只发生在 Run 循环里，不会向已关闭的队列发送。
// 队列满说明该连接的事件积压，丢弃并记录。
func (h *Hub) dispatchEvent(client *Client, raw []byte) {
	h.roomsMu.RLock()
	registered := h.clients[client]
	h.roomsMu.RUnlock()
	if !registered {
		return
	}
	select {
	case client.events <- raw:
	default:
		logrus.WithField("user_id", client.identity.ID).Warn("Client event queue full, dropping message")
	}
}

// runClientEvents 按到达顺序处理单个连接的事件。
// draw-move 永远在它自己的 draw-start 之后执行；
// 跨连接仍然并行，房间内的互斥由服务层的房间锁保证。
// 注销关闭 events 队列后，剩余事件处理完即退出。
func (h *Hub) runClientEvents(client *Client) {
	for raw := range client.events {
		h.handleEvent(client, raw)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	logCtx := logrus.WithField("user_id", client.identity.ID)

	h.roomsMu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.roomsMu.Unlock()
		return
	}
	delete(h.clients, client)
	if roomID := client.Room(); roomID != "" {
		if roomClients, ok := h.rooms[roomID]; ok {
			delete(roomClients, client)
			if len(roomClients) == 0 {
				delete(h.rooms, roomID)
				logCtx.WithField("room_id", roomID).Info("Room broadcast group empty, removed")
			}
		}
	}
	h.roomsMu.Unlock()
	// send 的关闭经由 closed 标记与在途的 trySend 串行化，
	// 正在处理该客户端事件的 goroutine 不会向已关闭的通道发送
	client.closeSend()
	close(client.events)
	logCtx.Info("Client unregistered from Hub")
}

// enroll 把客户端纳入房间广播组；已加入其他房间时先移出旧组。
func (h *Hub) enroll(client *Client, roomID string) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if prev := client.Room(); prev != "" && prev != roomID {
		if prevClients, ok := h.rooms[prev]; ok {
			delete(prevClients, client)
			if len(prevClients) == 0 {
				delete(h.rooms, prev)
			}
		}
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.setRoom(roomID)
}

// handleEvent 解析入站事件并分发到对应的服务调用。
func (h *Hub) handleEvent(client *Client, raw []byte) {
	ctx := context.Background()
	logCtx := logrus.WithField("user_id", client.identity.ID)

	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logCtx.WithError(err).Warn("Failed to unmarshal client message")
		return
	}
	logCtx = logCtx.WithField("event", envelope.Event)

	switch envelope.Event {
	case EventJoinRoom:
		h.handleJoinRoom(ctx, client, envelope.Data, logCtx)
	case EventCreateInvite:
		h.handleCreateInvite(ctx, client, envelope.Data, logCtx)
	case EventDrawStart:
		h.handleDrawStart(ctx, client, envelope.Data, logCtx)
	case EventDrawMove:
		h.handleDrawMove(client, envelope.Data, logCtx)
	case EventDrawEnd:
		h.handleDrawEnd(client, envelope.Data, logCtx)
	case EventCursor:
		h.handleCursor(client, envelope.Data, logCtx)
	case EventUndo:
		h.handleUndoRedo(client, envelope.Data, logCtx, h.boards.Undo)
	case EventRedo:
		h.handleUndoRedo(client, envelope.Data, logCtx, h.boards.Redo)
	case EventClearBoard:
		h.handleClearBoard(client, envelope.Data, logCtx)
	case EventSaveBoard:
		h.handleSaveBoard(ctx, client, envelope.Data, logCtx)
	default:
		logCtx.Warn("Received unknown event")
	}
}

func (h *Hub) handleJoinRoom(ctx context.Context, client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		logCtx.Warn("Malformed join-room payload")
		return
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	if err := h.access.Join(ctx, payload.RoomID, client.identity, payload.InviteToken); err != nil {
		if errors.Is(err, service.ErrInvalidInvite) {
			// 拒绝加入：不纳入广播组，单播错误
			h.unicast(client, EventError, ErrorPayload{Message: service.ErrInvalidInvite.Error()})
			return
		}
		logCtx.WithError(err).Error("Join failed")
		h.unicast(client, EventError, ErrorPayload{Message: "failed to join room"})
		return
	}

	strokes, err := h.boards.Join(ctx, payload.RoomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to materialize room state")
		h.unicast(client, EventError, ErrorPayload{Message: "failed to load board"})
		return
	}

	h.enroll(client, payload.RoomID)
	// 既有笔划只单播给加入者
	h.unicast(client, EventRebuild, strokes)
	logCtx.Info("Client joined room")
}

func (h *Hub) handleCreateInvite(ctx context.Context, client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		logCtx.Warn("Malformed create-invite payload")
		return
	}
	token, err := h.access.CreateInvite(ctx, payload.RoomID, client.identity)
	if err != nil {
		// 非 Owner 的请求静默拒绝：不返回令牌，只记录
		logCtx.WithError(err).Warn("Invite creation refused")
		return
	}
	// 令牌只单播给请求者，绝不广播
	h.unicast(client, EventInviteToken, InviteTokenPayload{RoomID: payload.RoomID, Token: token})
}

// memberOf 校验客户端已作为成员加入该房间。
// 非成员的画板操作是静默忽略，不回错误。
func (h *Hub) memberOf(client *Client, roomID string) bool {
	return roomID != "" && client.Room() == roomID
}

func (h *Hub) handleDrawStart(ctx context.Context, client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload DrawStartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed draw-start payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	stroke, err := h.boards.DrawStart(ctx, payload.RoomID, client.identity.ID,
		domain.Point{X: payload.X, Y: payload.Y}, payload.Color, payload.Size)
	if err != nil {
		logCtx.WithError(err).Error("draw-start failed")
		return
	}
	h.broadcastToOthers(payload.RoomID, client, EventDrawStart, DrawStartBroadcast{
		StrokeID: stroke.ID,
		X:        payload.X,
		Y:        payload.Y,
		Color:    stroke.Color,
		Size:     stroke.Size,
		AuthorID: stroke.AuthorID,
	})
}

func (h *Hub) handleDrawMove(client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload PointPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed draw-move payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	strokeID, ok := h.boards.DrawMove(payload.RoomID, client.identity.ID, domain.Point{X: payload.X, Y: payload.Y})
	if !ok {
		return
	}
	h.broadcastToOthers(payload.RoomID, client, EventDrawMove, DrawMoveBroadcast{
		StrokeID: strokeID,
		X:        payload.X,
		Y:        payload.Y,
		AuthorID: client.identity.ID,
	})
}

func (h *Hub) handleDrawEnd(client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed draw-end payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	if h.boards.DrawEnd(payload.RoomID, client.identity.ID) {
		// 笔划完成后的刷盘走后台任务，不阻塞该房间的实时绘画
		h.enqueueBoardSave(payload.RoomID, logCtx)
	}
}

func (h *Hub) handleCursor(client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload PointPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed cursor payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	// 纯中继：不存储、不持久化、不进笔划日志
	h.broadcastToOthers(payload.RoomID, client, EventCursor, CursorBroadcast{
		ID: client.identity.ID,
		X:  payload.X,
		Y:  payload.Y,
	})
}

func (h *Hub) handleUndoRedo(client *Client, data json.RawMessage, logCtx *logrus.Entry,
	op func(string) ([]domain.Stroke, bool)) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed undo/redo payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	strokes, changed := op(payload.RoomID)
	if !changed {
		return
	}
	// 重建后的完整日志广播给全部成员（含请求者）
	h.broadcastToAll(payload.RoomID, EventRebuild, strokes)
}

func (h *Hub) handleClearBoard(client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed clear-board payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	if !h.boards.Clear(payload.RoomID) {
		return
	}
	h.broadcastToAll(payload.RoomID, EventClearBoard, nil)
	// 同步持久化记录，清空不会被后续重连复活
	h.enqueueBoardSave(payload.RoomID, logCtx)
}

func (h *Hub) handleSaveBoard(ctx context.Context, client *Client, data json.RawMessage, logCtx *logrus.Entry) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logCtx.Warn("Malformed save-board payload")
		return
	}
	if !h.memberOf(client, payload.RoomID) {
		return
	}
	// 显式保存同步执行（已在事件 goroutine 中），结果回执给请求者
	if err := h.boards.Save(ctx, payload.RoomID); err != nil {
		logCtx.WithError(err).Error("Explicit board save failed")
		h.unicast(client, EventError, ErrorPayload{Message: service.ErrPersistenceFailure.Error()})
		return
	}
	h.unicast(client, EventBoardSaved, BoardSavedPayload{RoomID: payload.RoomID})
}

func (h *Hub) enqueueBoardSave(roomID string, logCtx *logrus.Entry) {
	task, err := tasks.NewBoardSaveTask(roomID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build board save task")
		return
	}
	if _, err := h.tasksCli.Enqueue(task, asynq.Queue("default")); err != nil {
		logCtx.WithError(err).Error("Failed to enqueue board save task")
	}
}

// --- 扇出 ---

// unicast 只发给单个客户端
func (h *Hub) unicast(client *Client, event string, data interface{}) {
	message, err := encodeMessage(event, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode unicast message")
		return
	}
	if !client.trySend(message) {
		logrus.WithField("user_id", client.identity.ID).Warn("Client gone or send channel full, dropping unicast")
	}
}

// broadcastToOthers 发给房间内除发送者外的所有成员
func (h *Hub) broadcastToOthers(roomID string, sender *Client, event string, data interface{}) {
	h.broadcast(roomID, sender, event, data)
}

// broadcastToAll 发给房间内全部成员（含请求者）
func (h *Hub) broadcastToAll(roomID string, event string, data interface{}) {
	h.broadcast(roomID, nil, event, data)
}

func (h *Hub) broadcast(roomID string, exclude *Client, event string, data interface{}) {
	message, err := encodeMessage(event, data)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode broadcast message")
		return
	}

	h.roomsMu.RLock()
	roomClients := h.rooms[roomID]
	recipients := make([]*Client, 0, len(roomClients))
	for client := range roomClients {
		if client != exclude {
			recipients = append(recipients, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range recipients {
		// 非阻塞发送，单个慢客户端或刚注销的客户端不能阻塞整个广播
		if !client.trySend(message) {
			logrus.WithFields(logrus.Fields{
				"room_id":          roomID,
				"receiver_user_id": client.identity.ID,
			}).Warn("Client gone or send channel full during broadcast, skipping")
		}
	}
}

// ActiveRoomIDs 返回当前有在线成员的房间 ID 列表，
// 周期逐出任务用它跳过仍有连接的房间
func (h *Hub) ActiveRoomIDs() []string {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close 关闭 Hub 的消息通道，使 Run 退出
func (h *Hub) Close() {
	close(h.messageChan)
}
