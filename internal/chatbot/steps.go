package chatbot

import (
	"context"
	"net/http"
	"time"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/llm"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/tasks"

	"github.com/google/uuid"
)

// stepAuthenticate 解码 bearer 凭证。
// 凭证缺失或无效不是错误：返回 200 的"请先登录"会话式响应，保持对话连续性。
func (w *Workflow) stepAuthenticate(c *Context) (State, *Response, error) {
	if c.Credential == "" {
		return 0, &Response{
			Status: http.StatusOK,
			Body: map[string]interface{}{
				"message":      messagePayload("Please log in to save your property search preferences."),
				"requiresAuth": true,
			},
		}, nil
	}

	userID, err := w.verifier.Verify(c.Credential)
	if err != nil {
		return 0, &Response{
			Status: http.StatusOK,
			Body: map[string]interface{}{
				"message":      messagePayload("Your session has expired. Please log in again."),
				"requiresAuth": true,
			},
		}, nil
	}

	c.UserID = userID
	return StateValidateMessage, nil, nil
}

// stepValidateMessage 校验转写：非空列表且每条消息内容非空。
func (w *Workflow) stepValidateMessage(c *Context) (State, *Response, error) {
	if len(c.Incoming) == 0 {
		return 0, invalidMessages(), nil
	}
	for _, m := range c.Incoming {
		if m.Content == "" {
			return 0, invalidMessages(), nil
		}
	}
	return StateManageSession, nil, nil
}

func invalidMessages() *Response {
	return &Response{
		Status: http.StatusBadRequest,
		Body:   map[string]interface{}{"error": "Invalid messages format"},
	}
}

// stepManageSession 获取或创建用户的当前会话（含 30 分钟过期重置策略）。
func (w *Workflow) stepManageSession(ctx context.Context, c *Context) (State, *Response, error) {
	session, isNew, err := w.sessions.GetOrCreate(ctx, c.UserID)
	if err != nil {
		return 0, nil, err
	}
	c.Session = session
	c.SessionID = session.ID
	c.IsNewSession = isNew
	return StateSaveUserMessage, nil, nil
}

// stepSaveUserMessage 把本轮的最后一条用户消息写入会话。
// 新会话（含被重置的会话）覆盖写，保证旧消息不残留。
func (w *Workflow) stepSaveUserMessage(ctx context.Context, c *Context) (State, *Response, error) {
	last := c.Incoming[len(c.Incoming)-1]
	msg := model.ChatMessage{
		Role:      model.RoleUser,
		Content:   last.Content,
		Timestamp: time.Now(),
	}
	if err := w.sessionRepo.AppendMessage(ctx, c.SessionID, msg, c.IsNewSession); err != nil {
		return 0, nil, err
	}
	return StateGenerateResponse, nil, nil
}

// stepGenerateResponse 以完整转写调用 LLM。
// 返回的草稿非空即视为本轮"完成"：立即产出带确认请求的响应并终止，
// 助手消息刻意不落库——确认前的摘要不属于转写。
func (w *Workflow) stepGenerateResponse(ctx context.Context, c *Context) (State, *Response, error) {
	messages := make([]llm.Message, 0, len(c.Incoming))
	for _, m := range c.Incoming {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	result, err := w.llmClient.Generate(ctx, messages)
	if err != nil {
		return 0, nil, err
	}

	if result.Requirements != nil && !result.Requirements.IsEmpty() {
		log.Infof("[Workflow] 用户 %s 的搜索条件已收集完整，等待确认", c.UserID)
		return 0, &Response{
			Status: http.StatusOK,
			Body: map[string]interface{}{
				"message":              messagePayload(result.Text),
				"requirements":         result.Requirements,
				"requiresConfirmation": true,
			},
		}, nil
	}

	c.AssistantText = result.Text
	return StateSaveAssistantMessage, nil, nil
}

// stepSaveAssistantMessage 把助手消息写入会话并产出普通响应。
func (w *Workflow) stepSaveAssistantMessage(ctx context.Context, c *Context) (State, *Response, error) {
	msg := model.ChatMessage{
		Role:      model.RoleAssistant,
		Content:   c.AssistantText,
		Timestamp: time.Now(),
	}
	if err := w.sessionRepo.AppendMessage(ctx, c.SessionID, msg, false); err != nil {
		return 0, nil, err
	}
	return 0, &Response{
		Status: http.StatusOK,
		Body: map[string]interface{}{
			"message":              messagePayload(c.AssistantText),
			"requiresConfirmation": false,
		},
	}, nil
}

// stepConfirmRequirements 校验确认请求的三个输入并持久化条件草稿。
// 任一输入缺失直接 400，不触发任何协作方调用。
func (w *Workflow) stepConfirmRequirements(ctx context.Context, c *Context) (State, *Response, error) {
	if c.UserID == "" || c.SessionID == "" {
		return 0, &Response{
			Status: http.StatusBadRequest,
			Body:   map[string]interface{}{"error": "Missing required user information"},
		}, nil
	}
	if c.Requirements.IsEmpty() {
		return 0, &Response{
			Status: http.StatusBadRequest,
			Body:   map[string]interface{}{"error": "Invalid search preferences"},
		}, nil
	}

	id, err := w.requirementsRepo.Upsert(ctx, c.UserID, c.SessionID, c.Requirements)
	if err != nil {
		return 0, nil, err
	}
	log.Infof("[Workflow] 会话 %s 的搜索条件已保存: %s", c.SessionID, id)
	return StateSearchListings, nil, nil
}

// stepSearchListings 用已确认的条件检索候选房源 URL。
// 零结果是普通结论而非错误，直接以 200 返回。
func (w *Workflow) stepSearchListings(ctx context.Context, c *Context) (State, *Response, error) {
	urls, err := w.searchClient.FindCandidateURLs(ctx, c.Requirements)
	if err != nil {
		return 0, nil, err
	}

	if len(urls) == 0 {
		log.Infof("[Workflow] 会话 %s 的搜索没有命中任何房源", c.SessionID)
		return 0, &Response{
			Status: http.StatusOK,
			Body:   map[string]interface{}{"error": "No properties found."},
		}, nil
	}

	c.CandidateURLs = urls
	return StateExtractListings, nil, nil
}

// stepExtractListings 抓取候选 URL 并提取结构化房源。
// 单个 URL 的失败由提取客户端内部跳过；全部无效同样是 200 的空结论。
func (w *Workflow) stepExtractListings(ctx context.Context, c *Context) (State, *Response, error) {
	listings, err := w.extractor.Extract(ctx, c.CandidateURLs)
	if err != nil {
		return 0, nil, err
	}

	if len(listings) == 0 {
		log.Infof("[Workflow] 会话 %s 的候选页面没有提取出有效房源", c.SessionID)
		return 0, &Response{
			Status: http.StatusOK,
			Body:   map[string]interface{}{"error": "No properties extracted."},
		}, nil
	}

	for i := range listings {
		listings[i].UserID = c.UserID
		listings[i].SessionID = c.SessionID
	}
	c.Listings = listings
	return StateSaveListings, nil, nil
}

// stepSaveListings 按 source_url 去重持久化房源，并投递异步索引任务。
func (w *Workflow) stepSaveListings(ctx context.Context, c *Context) (State, *Response, error) {
	if c.UserID == "" {
		return 0, &Response{
			Status: http.StatusBadRequest,
			Body:   map[string]interface{}{"error": "Missing userId."},
		}, nil
	}
	if len(c.Listings) == 0 {
		return 0, &Response{
			Status: http.StatusBadRequest,
			Body:   map[string]interface{}{"error": "No properties extracted to save."},
		}, nil
	}

	for i := range c.Listings {
		c.Listings[i].UserID = c.UserID
		if c.Listings[i].SessionID == "" {
			c.Listings[i].SessionID = c.SessionID
		}
	}

	if err := w.propertyRepo.UpsertBatch(ctx, c.Listings); err != nil {
		return 0, nil, err
	}

	if w.publishIndex != nil {
		task := tasks.ListingIndexTask{
			TaskID:     uuid.NewString(),
			UserID:     c.UserID,
			SessionID:  c.SessionID,
			Properties: c.Listings,
		}
		// 索引是尽力而为的下游环节，失败只记录
		if err := w.publishIndex(task); err != nil {
			log.Warnf("[Workflow] 投递索引任务失败: %v", err)
		}
	}

	return 0, &Response{
		Status: http.StatusOK,
		Body: map[string]interface{}{
			"success":    true,
			"properties": c.Listings,
			"message":    "Properties saved successfully",
		},
	}, nil
}
