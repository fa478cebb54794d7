package chatbot

import (
	"context"
	"net/http"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/internal/repository"
	"nadlan-chat-go/internal/service"
	"nadlan-chat-go/pkg/llm"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/scraper"
	"nadlan-chat-go/pkg/search"
	"nadlan-chat-go/pkg/tasks"
)

// IndexPublisher 把持久化后的房源批次投递给异步索引管道。可以为 nil。
type IndexPublisher func(task tasks.ListingIndexTask) error

// Workflow 组合全部协作方，驱动单个请求走完状态机。
// Workflow 本身无请求级状态，可被并发请求共享；可变数据都在 Context 里。
type Workflow struct {
	verifier         IdentityVerifier
	sessions         service.SessionService
	sessionRepo      repository.SessionRepository
	llmClient        llm.Client
	requirementsRepo repository.RequirementsRepository
	searchClient     search.Client
	extractor        scraper.Client
	propertyRepo     repository.PropertyRepository
	publishIndex     IndexPublisher
}

// NewWorkflow 创建一个新的 Workflow 实例。
func NewWorkflow(
	verifier IdentityVerifier,
	sessions service.SessionService,
	sessionRepo repository.SessionRepository,
	llmClient llm.Client,
	requirementsRepo repository.RequirementsRepository,
	searchClient search.Client,
	extractor scraper.Client,
	propertyRepo repository.PropertyRepository,
	publishIndex IndexPublisher,
) *Workflow {
	return &Workflow{
		verifier:         verifier,
		sessions:         sessions,
		sessionRepo:      sessionRepo,
		llmClient:        llmClient,
		requirementsRepo: requirementsRepo,
		searchClient:     searchClient,
		extractor:        extractor,
		propertyRepo:     propertyRepo,
		publishIndex:     publishIndex,
	}
}

// HandleChatTurn 处理一个聊天轮次请求，从认证状态进入状态机。
func (w *Workflow) HandleChatTurn(ctx context.Context, credential string, messages []model.ChatMessage) *Response {
	c := &Context{Credential: credential, Incoming: messages}
	return w.run(ctx, StateAuthenticate, c)
}

// HandleConfirm 处理用户对条件草稿的显式确认。
// 用户已通过认证且会话已存在，因此直接从确认状态进入，
// 绕过聊天轮次的前四个状态。
func (w *Workflow) HandleConfirm(ctx context.Context, userID, sessionID string, draft *model.RequirementsDraft) *Response {
	c := &Context{UserID: userID, SessionID: sessionID, Requirements: draft}
	return w.run(ctx, StateConfirmRequirements, c)
}

// HandleSaveListings 是 SaveListings 状态的管理性重入口。
func (w *Workflow) HandleSaveListings(ctx context.Context, userID, sessionID string, listings []model.Property) *Response {
	c := &Context{UserID: userID, SessionID: sessionID, Listings: listings}
	return w.run(ctx, StateSaveListings, c)
}

// GetHistory 返回用户当前会话的转写。
func (w *Workflow) GetHistory(ctx context.Context, userID string) ([]model.ChatMessage, error) {
	session, err := w.sessionRepo.GetLatest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return []model.ChatMessage{}, nil
	}
	return session.Messages, nil
}

// 状态机的转移次数上限。状态链是线性的，超过该值说明实现有环。
const maxTransitions = 16

// run 从入口状态驱动状态机直到产出终端响应。
// 每个状态要么返回响应（终止），要么返回下一个状态，要么返回错误；
// 错误统一映射为该状态的 500 响应，不会越过请求边界。
func (w *Workflow) run(ctx context.Context, entry State, c *Context) *Response {
	current := entry
	for i := 0; i < maxTransitions; i++ {
		next, resp, err := w.step(ctx, current, c)
		if err != nil {
			log.Errorf("[Workflow] 状态 %s 执行失败: %v", current, err)
			return &Response{
				Status: http.StatusInternalServerError,
				Body:   map[string]interface{}{"error": stateErrorMessage(current)},
			}
		}
		if resp != nil {
			return resp
		}
		log.Debugf("[Workflow] 状态转移: %s -> %s", current, next)
		current = next
	}

	log.Errorf("[Workflow] 状态机超过 %d 次转移仍未终止，入口: %s", maxTransitions, entry)
	return &Response{
		Status: http.StatusInternalServerError,
		Body:   map[string]interface{}{"error": "Failed to process chat request"},
	}
}

// step 执行单个状态。纯分发：状态自身的逻辑在各 step 方法中。
func (w *Workflow) step(ctx context.Context, s State, c *Context) (State, *Response, error) {
	switch s {
	case StateAuthenticate:
		return w.stepAuthenticate(c)
	case StateValidateMessage:
		return w.stepValidateMessage(c)
	case StateManageSession:
		return w.stepManageSession(ctx, c)
	case StateSaveUserMessage:
		return w.stepSaveUserMessage(ctx, c)
	case StateGenerateResponse:
		return w.stepGenerateResponse(ctx, c)
	case StateSaveAssistantMessage:
		return w.stepSaveAssistantMessage(ctx, c)
	case StateConfirmRequirements:
		return w.stepConfirmRequirements(ctx, c)
	case StateSearchListings:
		return w.stepSearchListings(ctx, c)
	case StateExtractListings:
		return w.stepExtractListings(ctx, c)
	case StateSaveListings:
		return w.stepSaveListings(ctx, c)
	default:
		return s, &Response{
			Status: http.StatusInternalServerError,
			Body:   map[string]interface{}{"error": "Failed to process chat request"},
		}, nil
	}
}
