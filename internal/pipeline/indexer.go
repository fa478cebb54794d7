// Package pipeline 包含了后台异步处理管道。
package pipeline

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"nadlan-chat-go/internal/config"
	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/es"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/tasks"
)

// Indexer 消费房源索引任务，把持久化后的房源写入 Elasticsearch。
type Indexer struct {
	esCfg config.ElasticsearchConfig
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(esCfg config.ElasticsearchConfig) *Indexer {
	return &Indexer{esCfg: esCfg}
}

// Process 将任务中的每条房源索引为一个 ES 文档。
// 单条失败即返回错误，由消费者按重试预算决定是否重投。
func (p *Indexer) Process(ctx context.Context, task tasks.ListingIndexTask) error {
	for _, property := range task.Properties {
		doc := model.EsListing{
			UserID:      property.UserID,
			SessionID:   property.SessionID,
			Address:     property.Address,
			City:        property.City,
			Price:       property.Price,
			Rooms:       property.Rooms,
			ListingType: property.ListingType,
			SourceURL:   property.SourceURL,
			SourceSite:  property.SourceSite,
			IndexedAt:   time.Now(),
		}

		// 文档 ID 与 MySQL 的 (user_id, source_url) 去重键一致，重复索引为覆盖写
		docID := fmt.Sprintf("%x", md5.Sum([]byte(property.UserID+"|"+property.SourceURL)))
		if err := es.IndexListing(ctx, p.esCfg.IndexName, docID, doc); err != nil {
			return fmt.Errorf("failed to index listing %s: %w", property.SourceURL, err)
		}
	}

	log.Infof("索引任务完成: taskID=%s, 已索引 %d 条房源", task.TaskID, len(task.Properties))
	return nil
}
