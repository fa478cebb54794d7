// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。消息一经追加即不可变，顺序即对话转写顺序。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 代表会话中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession 代表一个用户的进行中对话，以 JSON 文档形式存储在 Redis 中。
// Version 在每次写入时自增，用于写入端的乐观并发控制。
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Version   int64         `json:"version"`
	Messages  []ChatMessage `json:"messages"`
}

// IsStale 判断会话自上次更新以来是否已超过给定的不活跃阈值。
// 过期是派生属性，不落库。
func (s *ChatSession) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.UpdatedAt) > threshold
}
