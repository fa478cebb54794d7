package chatbot

import "nadlan-chat-go/internal/model"

// Context 持有单个请求在状态机内流转的全部可变数据。
// 每个入站请求创建一个实例，状态串行执行，请求之间不共享。
type Context struct {
	// 聊天轮次入口的输入
	Credential string              // 原始 bearer 凭证，可为空
	Incoming   []model.ChatMessage // 请求携带的完整转写

	// 认证与会话管理的产物
	UserID       string
	Session      *model.ChatSession
	IsNewSession bool

	// 生成阶段的产物
	AssistantText string
	Requirements  *model.RequirementsDraft

	// 确认入口的输入（绕过前四个状态时由请求直接提供）
	SessionID string

	// 搜索→提取→持久化子管道的产物
	CandidateURLs []string
	Listings      []model.Property
}

// Response 是某个状态产出的终端响应。
type Response struct {
	Status int
	Body   map[string]interface{}
}

// messagePayload 构造响应中的助手消息对象。
func messagePayload(content string) map[string]interface{} {
	return map[string]interface{}{
		"role":    model.RoleAssistant,
		"content": content,
	}
}
