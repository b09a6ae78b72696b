// Package websocket 负责 WebSocket 升级和客户端注册。
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/middleware"
)

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: 生产环境按配置收紧允许的 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub: h,
	}
}

// HandleConnection 处理 WebSocket 连接请求。
// 身份由 Auth 中间件校验并绑定；缺失身份的请求在升级前就已被拒绝。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	identityAny, exists := c.Get(middleware.IdentityKey)
	if !exists {
		logrus.Warn("WS Handler: identity not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity required"})
		return
	}
	identity, ok := identityAny.(domain.Identity)
	if !ok {
		logrus.Error("WS Handler: identity in context has wrong type")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	logCtx := logrus.WithField("user_id", identity.ID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写出 HTTP 错误响应，这里只记录
		logCtx.WithError(err).Error("WS Handler: failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, identity)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: hub message channel full, closing connection")
		client.CloseConn()
		return
	}

	client.Run()
	logCtx.Info("WS Handler: connection upgraded, client pumps started")
}
