package domain

import "time"

// Identity 表示一个已建立的客户端身份：不透明 ID 加显示名。
// 身份在连接建立前通过身份令牌换取，之后每条消息不再重复校验。
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Board 表示一个房间的成员元数据。
// 第一个加入者成为 Owner 且始终是成员；成员集合只增不减。
// Board 只存在于进程内存中，随进程生命周期存活，不做持久化。
type Board struct {
	RoomID  string
	OwnerID string
	Members map[string]bool // key 为 Identity.ID
}

// NewBoard 以首位加入者为 Owner 创建 Board。
func NewBoard(roomID string, ownerID string) *Board {
	return &Board{
		RoomID:  roomID,
		OwnerID: ownerID,
		Members: map[string]bool{ownerID: true},
	}
}

// IsMember 判断给定身份是否为该 Board 的成员（Owner 恒为成员）。
func (b *Board) IsMember(userID string) bool {
	return b.Members[userID]
}

// Invite 表示一个房间邀请令牌记录。
// 令牌本身是 128 位以上的随机值，持有即可兑换一次成员资格。
type Invite struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}
