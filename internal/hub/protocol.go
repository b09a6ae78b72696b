package hub

import (
	"encoding/json"
	"fmt"
)

// 入站/出站事件名，沿用白板线协议的既有命名
const (
	EventJoinRoom     = "join-room"
	EventCreateInvite = "create-invite"
	EventDrawStart    = "draw-start"
	EventDrawMove     = "draw-move"
	EventDrawEnd      = "draw-end"
	EventCursor       = "cursor"
	EventUndo         = "undo"
	EventRedo         = "redo"
	EventClearBoard   = "clear-board"
	EventSaveBoard    = "save-board"

	EventRebuild     = "rebuild"
	EventInviteToken = "invite-token"
	EventBoardSaved  = "board-saved"
	EventError       = "error"
)

// Envelope 是 WebSocket 消息的统一外层结构
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeMessage 构造一条可直接写入连接的出站消息
func encodeMessage(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("hub: marshal %s payload: %w", event, err)
		}
		raw = bytes
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// --- 入站 payload ---

// JoinRoomPayload 对应 join-room
type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	InviteToken string `json:"inviteToken,omitempty"`
}

// RoomPayload 对应只带房间号的事件 (draw-end/undo/redo/clear-board/save-board/create-invite)
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// DrawStartPayload 对应 draw-start
type DrawStartPayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
}

// PointPayload 对应 draw-move 和 cursor
type PointPayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// --- 出站 payload ---

// DrawStartBroadcast 向房间内其他成员转发新笔划的起点
type DrawStartBroadcast struct {
	StrokeID string  `json:"strokeId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
	AuthorID string  `json:"authorId"`
}

// DrawMoveBroadcast 转发追加到指定笔划上的点
type DrawMoveBroadcast struct {
	StrokeID string  `json:"strokeId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	AuthorID string  `json:"authorId"`
}

// CursorBroadcast 转发其他成员的光标位置，纯中继，从不落存储
type CursorBroadcast struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// InviteTokenPayload 单播给请求者的邀请令牌
type InviteTokenPayload struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

// BoardSavedPayload 显式保存成功的回执
type BoardSavedPayload struct {
	RoomID string `json:"roomId"`
}

// ErrorPayload 单播给出错连接的错误消息
type ErrorPayload struct {
	Message string `json:"message"`
}
