package model

import "time"

// RequirementsDraft 是跨轮次累积出的结构化搜索条件。
// 由 LLM 客户端在判定信息齐全时返回；返回非 nil 即视为本轮"完成"。
// 仅在用户显式确认后才被持久化。
type RequirementsDraft struct {
	Location     string   `json:"location"`
	PropertyType string   `json:"propertyType"`
	ListingType  string   `json:"listingType"` // "sale" 或 "rent"
	MinPrice     int      `json:"minPrice"`
	MaxPrice     int      `json:"maxPrice"`
	Rooms        float64  `json:"rooms"`
	Features     []string `json:"features"`
}

// IsEmpty 判断草稿是否不携带任何有效条件。
func (d *RequirementsDraft) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.Location == "" && d.PropertyType == "" && d.MinPrice == 0 &&
		d.MaxPrice == 0 && d.Rooms == 0 && len(d.Features) == 0
}

// SearchRequirements 是确认后的搜索条件在 MySQL 中的持久化形态。
// 每个 (user, session) 只保留一条记录，后续确认覆盖更新而非追加。
type SearchRequirements struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"size:36;not null;uniqueIndex:uq_user_session" json:"userId"`
	SessionID    string    `gorm:"size:36;not null;uniqueIndex:uq_user_session" json:"sessionId"`
	Location     string    `gorm:"size:255" json:"location"`
	PropertyType string    `gorm:"size:64" json:"propertyType"`
	ListingType  string    `gorm:"size:8" json:"listingType"`
	MinPrice     int       `json:"minPrice"`
	MaxPrice     int       `json:"maxPrice"`
	Rooms        float64   `json:"rooms"`
	Features     []string  `gorm:"serializer:json;type:text" json:"features"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SearchRequirements) TableName() string {
	return "search_requirements"
}
