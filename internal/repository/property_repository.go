package repository

import (
	"context"
	"fmt"

	"nadlan-chat-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PropertyRepository 定义了抓取房源的持久化操作。
type PropertyRepository interface {
	// UpsertBatch 按 (user_id, source_url) 保存一批房源：
	// 已存在的记录用新值覆盖更新，不会产生重复行。
	UpsertBatch(ctx context.Context, properties []model.Property) error
	// FindByUser 返回用户名下的全部房源，按更新时间倒序。
	FindByUser(ctx context.Context, userID string) ([]model.Property, error)
	// FindBySession 返回某会话关联的房源。
	FindBySession(ctx context.Context, userID, sessionID string) ([]model.Property, error)
}

type gormPropertyRepository struct {
	db *gorm.DB
}

// NewPropertyRepository 创建一个新的 PropertyRepository 实例。
func NewPropertyRepository(db *gorm.DB) PropertyRepository {
	return &gormPropertyRepository{db: db}
}

func (r *gormPropertyRepository) UpsertBatch(ctx context.Context, properties []model.Property) error {
	if len(properties) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "source_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"session_id", "address", "city", "price", "rooms", "size_sqm", "floor",
			"has_elevator", "has_parking", "has_saferoom", "allows_pets", "is_furnished",
			"listing_type", "images", "source_site", "updated_at",
		}),
	}).Create(&properties).Error
	if err != nil {
		return fmt.Errorf("failed to upsert properties: %w", err)
	}
	return nil
}

func (r *gormPropertyRepository) FindByUser(ctx context.Context, userID string) ([]model.Property, error) {
	var properties []model.Property
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	return properties, nil
}

func (r *gormPropertyRepository) FindBySession(ctx context.Context, userID, sessionID string) ([]model.Property, error) {
	var properties []model.Property
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("updated_at DESC").
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query session properties: %w", err)
	}
	return properties, nil
}
