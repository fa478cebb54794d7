package model

import "time"

// EsListing 是房源在 Elasticsearch 索引中的文档结构。
// 文档 ID 取 (user_id, source_url) 的哈希，与 MySQL 的去重键保持一致。
type EsListing struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Price       int       `json:"price"`
	Rooms       float64   `json:"rooms"`
	ListingType string    `json:"listing_type"`
	SourceURL   string    `json:"source_url"`
	SourceSite  string    `json:"source_site"`
	IndexedAt   time.Time `json:"indexed_at"`
}
