// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nadlan-chat-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrSessionNotFound 表示指定的会话在 Redis 中不存在。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 定义了对话会话的存储操作。
// 写操作在 Redis 事务中以乐观锁执行：并发修改同一会话时冲突方重试一次，
// 仍冲突则返回错误，保证消息追加不会出现丢失写。
type SessionRepository interface {
	// GetLatest 返回用户当前指向的会话；不存在时返回 (nil, nil)。
	GetLatest(ctx context.Context, userID string) (*model.ChatSession, error)
	// GetByID 按会话 ID 获取会话。
	GetByID(ctx context.Context, sessionID string) (*model.ChatSession, error)
	// Create 为用户创建一个空会话并把用户的当前会话指针指向它。
	Create(ctx context.Context, userID string) (*model.ChatSession, error)
	// ResetMessages 原地清空会话的消息列表（会话 ID 不变）。
	ResetMessages(ctx context.Context, sessionID string) error
	// AppendMessage 向会话追加一条消息。overwrite 为 true 时用单元素列表
	// 覆盖整个消息列表，用于重置后的首条消息写入。
	AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage, overwrite bool) error
}

type redisSessionRepository struct {
	rdb         *redis.Client
	ttl         time.Duration
	maxMessages int
}

// NewSessionRepository 创建一个基于 Redis 的 SessionRepository。
func NewSessionRepository(rdb *redis.Client, ttl time.Duration, maxMessages int) SessionRepository {
	return &redisSessionRepository{rdb: rdb, ttl: ttl, maxMessages: maxMessages}
}

func userSessionKey(userID string) string {
	return fmt.Sprintf("user:%s:current_session", userID)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (r *redisSessionRepository) GetLatest(ctx context.Context, userID string) (*model.ChatSession, error) {
	sessionID, err := r.rdb.Get(ctx, userSessionKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current session pointer: %w", err)
	}

	session, err := r.GetByID(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		// 指针指向的文档已过期，视作无会话
		return nil, nil
	}
	return session, err
}

func (r *redisSessionRepository) GetByID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	data, err := r.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session model.ChatSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *redisSessionRepository) Create(ctx context.Context, userID string) (*model.ChatSession, error) {
	now := time.Now()
	session := &model.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
		Messages:  []model.ChatMessage{},
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), data, r.ttl)
	pipe.Set(ctx, userSessionKey(userID), session.ID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (r *redisSessionRepository) ResetMessages(ctx context.Context, sessionID string) error {
	return r.mutate(ctx, sessionID, func(s *model.ChatSession) {
		s.Messages = []model.ChatMessage{}
	})
}

func (r *redisSessionRepository) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage, overwrite bool) error {
	return r.mutate(ctx, sessionID, func(s *model.ChatSession) {
		if overwrite {
			// 重置后的首条消息：覆盖写，确保旧会话不留残余
			s.Messages = []model.ChatMessage{msg}
			return
		}
		s.Messages = append(s.Messages, msg)
		if r.maxMessages > 0 && len(s.Messages) > r.maxMessages {
			s.Messages = s.Messages[len(s.Messages)-r.maxMessages:]
		}
	})
}

// mutate 在 WATCH/MULTI 事务中对会话文档执行读-改-写。
// 事务期间键被其他请求修改时 Redis 返回 TxFailedErr，此处重试一次。
func (r *redisSessionRepository) mutate(ctx context.Context, sessionID string, apply func(*model.ChatSession)) error {
	key := sessionKey(sessionID)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var session model.ChatSession
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		apply(&session)
		session.UpdatedAt = time.Now()
		session.Version++

		updated, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, r.ttl)
			// 活跃会话的指针与文档一同续期，避免指针先于文档过期
			pipe.Expire(ctx, userSessionKey(session.UserID), r.ttl)
			return nil
		})
		return err
	}

	err := r.rdb.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// 并发写冲突：重试一次，再失败则上抛
		err = r.rdb.Watch(ctx, txn, key)
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("session %s write conflict: %w", sessionID, err)
	}
	return err
}
