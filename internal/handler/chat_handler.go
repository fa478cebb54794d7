// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strings"

	"nadlan-chat-go/internal/chatbot"
	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责聊天轮次、确认与房源保存请求的路由层。
type ChatHandler struct {
	workflow *chatbot.Workflow
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(workflow *chatbot.Workflow) *ChatHandler {
	return &ChatHandler{workflow: workflow}
}

// ChatTurnRequest 是聊天轮次 API 的请求体。
type ChatTurnRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

// Chat 处理一个聊天轮次。认证是软性的：凭证缺失或无效时
// 工作流返回 200 的"请先登录"会话式响应，而不是 401。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid messages format"})
		return
	}

	resp := h.workflow.HandleChatTurn(c.Request.Context(), bearerToken(c), req.Messages)
	c.JSON(resp.Status, resp.Body)
}

// ConfirmRequest 是搜索确认 API 的请求体。
// 三个字段的存在性校验在工作流的确认状态内完成。
type ConfirmRequest struct {
	UserID       string                   `json:"userId"`
	SessionID    string                   `json:"sessionId"`
	Requirements *model.RequirementsDraft `json:"requirements"`
}

// Confirm 处理用户对搜索条件的显式确认，触发搜索→提取→持久化子管道。
func (h *ChatHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields."})
		return
	}

	resp := h.workflow.HandleConfirm(c.Request.Context(), req.UserID, req.SessionID, req.Requirements)
	c.JSON(resp.Status, resp.Body)
}

// SaveListingsRequest 是管理性保存房源 API 的请求体。
type SaveListingsRequest struct {
	UserID     string           `json:"userId"`
	SessionID  string           `json:"sessionId"`
	Properties []model.Property `json:"properties"`
}

// SaveListings 直接重入工作流的房源持久化状态。
func (h *ChatHandler) SaveListings(c *gin.Context) {
	var req SaveListingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields."})
		return
	}

	resp := h.workflow.HandleSaveListings(c.Request.Context(), req.UserID, req.SessionID, req.Properties)
	c.JSON(resp.Status, resp.Body)
}

// History 返回当前用户会话的转写（硬认证路由）。
func (h *ChatHandler) History(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	messages, err := h.workflow.GetHistory(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("获取会话历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chat history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// HandleWS 在 WebSocket 连接上承载同一聊天轮次工作流：
// 每收到一帧 {messages:[...]} 即执行一轮，并把终端响应原样回写。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	credential := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	for {
		var req ChatTurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		resp := h.workflow.HandleChatTurn(c.Request.Context(), credential, req.Messages)
		if err := conn.WriteJSON(resp.Body); err != nil {
			log.Warnf("向 WebSocket 写入响应失败: %v", err)
			break
		}
	}
}

// bearerToken 从 Authorization 头提取 bearer 凭证；缺失或格式错误时返回空串。
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, bearerPrefix)
}
