// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/internal/repository"
	"nadlan-chat-go/pkg/log"
)

// SessionService 实现会话生命周期策略。
type SessionService interface {
	// GetOrCreate 返回用户当前会话。
	// 不存在时新建空会话；存在但超过不活跃阈值时原地清空消息（会话 ID 不变）。
	// 两种情况下 isNewSession 均为 true，调用方据此决定首条消息是覆盖还是追加。
	GetOrCreate(ctx context.Context, userID string) (session *model.ChatSession, isNewSession bool, err error)
}

type sessionService struct {
	repo       repository.SessionRepository
	staleAfter time.Duration
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(repo repository.SessionRepository, staleAfter time.Duration) SessionService {
	return &sessionService{repo: repo, staleAfter: staleAfter}
}

func (s *sessionService) GetOrCreate(ctx context.Context, userID string) (*model.ChatSession, bool, error) {
	session, err := s.repo.GetLatest(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load latest session: %w", err)
	}

	if session == nil {
		created, err := s.repo.Create(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create session: %w", err)
		}
		log.Infof("为用户 %s 创建了新会话 %s", userID, created.ID)
		return created, true, nil
	}

	if session.IsStale(time.Now(), s.staleAfter) {
		// 超时的会话复用原 ID，消息原地清空
		if err := s.repo.ResetMessages(ctx, session.ID); err != nil {
			return nil, false, fmt.Errorf("failed to reset stale session: %w", err)
		}
		reset, err := s.repo.GetByID(ctx, session.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to reload reset session: %w", err)
		}
		log.Infof("会话 %s 超过 %s 未活动，已重置", session.ID, s.staleAfter)
		return reset, true, nil
	}

	return session, false, nil
}
