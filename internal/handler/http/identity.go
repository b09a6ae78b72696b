// Package http 提供 REST 处理器。除活性探针外唯一的 HTTP 面是身份签发。
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"
)

// IdentityHandler 封装身份签发的 HTTP 处理逻辑
type IdentityHandler struct {
	identities *service.IdentityService
}

// NewIdentityHandler 创建 IdentityHandler 实例
func NewIdentityHandler(identities *service.IdentityService) *IdentityHandler {
	if identities == nil {
		panic("IdentityService cannot be nil for IdentityHandler")
	}
	return &IdentityHandler{identities: identities}
}

// IssueRequest 定义身份签发请求
type IssueRequest struct {
	ID   string `json:"id,omitempty"` // 客户端已有身份时复用，否则服务端生成
	Name string `json:"name" binding:"required"`
}

// IssueResponse 定义身份签发响应
type IssueResponse struct {
	Token    string          `json:"token"`
	Identity domain.Identity `json:"identity"`
}

// Issue 处理身份签发请求。
// 客户端在任何房间交互前调用一次，之后用返回的令牌建立 WebSocket 连接。
func (h *IdentityHandler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Issue: invalid input")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: name is required"})
		return
	}

	token, identity, err := h.identities.Issue(req.ID, req.Name)
	if err != nil {
		logrus.WithError(err).Error("Handler.Issue: failed to issue identity token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue identity token"})
		return
	}

	logrus.WithField("user_id", identity.ID).Info("Handler.Issue: identity token issued")
	c.JSON(http.StatusOK, IssueResponse{Token: token, Identity: identity})
}
