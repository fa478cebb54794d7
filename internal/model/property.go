package model

import (
	"errors"
	"strings"
	"time"
)

// Property 代表一条抓取到的候选房源，持久化在 MySQL 中。
// source_url 是去重键：同一用户重复保存同一 URL 时覆盖更新而非新增。
type Property struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"size:36;not null;uniqueIndex:uq_user_source" json:"userId"`
	SessionID   string    `gorm:"size:36;index" json:"sessionId"`
	Address     string    `gorm:"size:255" json:"address"`
	City        string    `gorm:"size:128" json:"city"`
	Price       int       `json:"price"`
	Rooms       float64   `json:"rooms"`
	SizeSqm     *int      `json:"size_sqm,omitempty"`
	Floor       *int      `json:"floor,omitempty"`
	HasElevator bool      `json:"has_elevator"`
	HasParking  bool      `json:"has_parking"`
	HasSaferoom bool      `json:"has_saferoom"`
	AllowsPets  bool      `json:"allows_pets"`
	IsFurnished bool      `json:"is_furnished"`
	ListingType string    `gorm:"size:8" json:"listing_type"` // "sale" 或 "rent"
	Images      []string  `gorm:"serializer:json;type:text" json:"images"`
	SourceURL   string    `gorm:"size:512;not null;uniqueIndex:uq_user_source,length:255" json:"source_url"`
	SourceSite  string    `gorm:"size:128;not null" json:"source_site"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Property) TableName() string {
	return "properties"
}

// Validate 校验抓取结果是否满足入库要求。
// 不满足的记录被调用方丢弃，不会使整个抓取批次失败。
func (p *Property) Validate() error {
	if !strings.HasPrefix(p.SourceURL, "http://") && !strings.HasPrefix(p.SourceURL, "https://") {
		return errors.New("source_url 必须是 http(s) 地址")
	}
	if p.SourceSite == "" {
		return errors.New("source_site 不能为空")
	}
	if p.Price < 0 {
		return errors.New("price 不能为负数")
	}
	if p.Rooms < 0 {
		return errors.New("rooms 不能为负数")
	}
	if p.ListingType != "sale" && p.ListingType != "rent" {
		return errors.New("listing_type 必须是 sale 或 rent")
	}
	return nil
}
