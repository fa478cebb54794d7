package repository

import (
	"context"
	"errors"
	"fmt"

	"nadlan-chat-go/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequirementsRepository 定义了确认后搜索条件的持久化操作。
type RequirementsRepository interface {
	// Upsert 按 (user, session) 保存搜索条件：已存在则覆盖更新，返回记录 ID。
	Upsert(ctx context.Context, userID, sessionID string, draft *model.RequirementsDraft) (string, error)
	// GetBySession 返回指定会话已确认的搜索条件；不存在时返回 (nil, nil)。
	GetBySession(ctx context.Context, userID, sessionID string) (*model.SearchRequirements, error)
}

type gormRequirementsRepository struct {
	db *gorm.DB
}

// NewRequirementsRepository 创建一个新的 RequirementsRepository 实例。
func NewRequirementsRepository(db *gorm.DB) RequirementsRepository {
	return &gormRequirementsRepository{db: db}
}

func (r *gormRequirementsRepository) Upsert(ctx context.Context, userID, sessionID string, draft *model.RequirementsDraft) (string, error) {
	var existing model.SearchRequirements
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		First(&existing).Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to query search requirements: %w", err)
	}

	record := model.SearchRequirements{
		UserID:       userID,
		SessionID:    sessionID,
		Location:     draft.Location,
		PropertyType: draft.PropertyType,
		ListingType:  draft.ListingType,
		MinPrice:     draft.MinPrice,
		MaxPrice:     draft.MaxPrice,
		Rooms:        draft.Rooms,
		Features:     draft.Features,
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		record.ID = uuid.NewString()
		if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
			return "", fmt.Errorf("failed to create search requirements: %w", err)
		}
		return record.ID, nil
	}

	// 同一会话的再次确认覆盖原记录，而不是累积副本
	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return "", fmt.Errorf("failed to update search requirements: %w", err)
	}
	return record.ID, nil
}

func (r *gormRequirementsRepository) GetBySession(ctx context.Context, userID, sessionID string) (*model.SearchRequirements, error) {
	var record model.SearchRequirements
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query search requirements: %w", err)
	}
	return &record, nil
}
