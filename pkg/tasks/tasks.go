// Package tasks 定义了发送到 Kafka 的任务结构。
package tasks

import "nadlan-chat-go/internal/model"

// ListingIndexTask 表示一批待索引到 Elasticsearch 的已持久化房源。
type ListingIndexTask struct {
	TaskID     string           `json:"task_id"`
	UserID     string           `json:"user_id"`
	SessionID  string           `json:"session_id"`
	Properties []model.Property `json:"properties"`
}
