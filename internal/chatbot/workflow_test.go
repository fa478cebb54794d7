package chatbot

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/llm"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init("error", "console", "")
}

// ---- 协作方的测试替身 ----

type fakeVerifier struct {
	userID string
	err    error
}

func (f *fakeVerifier) Verify(string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

type fakeSessionService struct {
	session *model.ChatSession
	isNew   bool
	err     error
	calls   int
}

func (f *fakeSessionService) GetOrCreate(context.Context, string) (*model.ChatSession, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	return f.session, f.isNew, nil
}

type appendCall struct {
	sessionID string
	msg       model.ChatMessage
	overwrite bool
}

type fakeSessionRepo struct {
	latest    *model.ChatSession
	appends   []appendCall
	appendErr error
}

func (f *fakeSessionRepo) GetLatest(context.Context, string) (*model.ChatSession, error) {
	return f.latest, nil
}

func (f *fakeSessionRepo) GetByID(context.Context, string) (*model.ChatSession, error) {
	return f.latest, nil
}

func (f *fakeSessionRepo) Create(context.Context, string) (*model.ChatSession, error) {
	return f.latest, nil
}

func (f *fakeSessionRepo) ResetMessages(context.Context, string) error { return nil }

func (f *fakeSessionRepo) AppendMessage(_ context.Context, sessionID string, msg model.ChatMessage, overwrite bool) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, appendCall{sessionID: sessionID, msg: msg, overwrite: overwrite})
	return nil
}

type fakeLLM struct {
	result *llm.GenerateResult
	err    error
	calls  int
}

func (f *fakeLLM) Generate(context.Context, []llm.Message) (*llm.GenerateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRequirementsRepo struct {
	upserts     int
	err         error
	lastUser    string
	lastSession string
	lastDraft   *model.RequirementsDraft
}

func (f *fakeRequirementsRepo) Upsert(_ context.Context, userID, sessionID string, draft *model.RequirementsDraft) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.upserts++
	f.lastUser = userID
	f.lastSession = sessionID
	f.lastDraft = draft
	return "req-1", nil
}

func (f *fakeRequirementsRepo) GetBySession(context.Context, string, string) (*model.SearchRequirements, error) {
	return nil, nil
}

type fakeSearch struct {
	urls  []string
	err   error
	calls int
}

func (f *fakeSearch) FindCandidateURLs(context.Context, *model.RequirementsDraft) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.urls, nil
}

type fakeExtractor struct {
	listings []model.Property
	err      error
	calls    int
}

func (f *fakeExtractor) Extract(context.Context, []string) ([]model.Property, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.listings, nil
}

type fakePropertyRepo struct {
	saved []model.Property
	err   error
}

func (f *fakePropertyRepo) UpsertBatch(_ context.Context, properties []model.Property) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, properties...)
	return nil
}

func (f *fakePropertyRepo) FindByUser(context.Context, string) ([]model.Property, error) {
	return f.saved, nil
}

func (f *fakePropertyRepo) FindBySession(context.Context, string, string) ([]model.Property, error) {
	return f.saved, nil
}

// ---- 测试装配 ----

type deps struct {
	verifier  *fakeVerifier
	sessions  *fakeSessionService
	repo      *fakeSessionRepo
	llm       *fakeLLM
	reqRepo   *fakeRequirementsRepo
	search    *fakeSearch
	extractor *fakeExtractor
	propRepo  *fakePropertyRepo
	published []tasks.ListingIndexTask
}

func newTestWorkflow() (*Workflow, *deps) {
	session := &model.ChatSession{
		ID:        "sess-1",
		UserID:    "user-1",
		UpdatedAt: time.Now(),
		Messages:  []model.ChatMessage{},
	}
	d := &deps{
		verifier:  &fakeVerifier{userID: "user-1"},
		sessions:  &fakeSessionService{session: session},
		repo:      &fakeSessionRepo{latest: session},
		llm:       &fakeLLM{result: &llm.GenerateResult{Text: "מה התקציב שלך?"}},
		reqRepo:   &fakeRequirementsRepo{},
		search:    &fakeSearch{urls: []string{"https://yad2.co.il/item/1"}},
		extractor: &fakeExtractor{},
		propRepo:  &fakePropertyRepo{},
	}
	w := NewWorkflow(
		d.verifier, d.sessions, d.repo, d.llm, d.reqRepo, d.search, d.extractor, d.propRepo,
		func(t tasks.ListingIndexTask) error {
			d.published = append(d.published, t)
			return nil
		},
	)
	return w, d
}

func userTurn(content string) []model.ChatMessage {
	return []model.ChatMessage{{Role: model.RoleUser, Content: content}}
}

func sampleDraft() *model.RequirementsDraft {
	return &model.RequirementsDraft{
		Location:     "תל אביב",
		PropertyType: "דירה",
		ListingType:  "rent",
		MaxPrice:     6000,
		Rooms:        3,
		Features:     []string{"parking"},
	}
}

func sampleListing(url string) model.Property {
	return model.Property{
		Address:     "דיזנגוף 100",
		City:        "תל אביב",
		Price:       5500,
		Rooms:       3,
		ListingType: "rent",
		SourceURL:   url,
		SourceSite:  "yad2.co.il",
	}
}

// ---- 聊天轮次 ----

func TestChatTurnMissingCredential(t *testing.T) {
	w, d := newTestWorkflow()

	resp := w.HandleChatTurn(context.Background(), "", userTurn("hi"))

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["requiresAuth"])
	// 未认证的请求不能触达会话存储
	assert.Zero(t, d.sessions.calls)
	assert.Empty(t, d.repo.appends)
}

func TestChatTurnInvalidCredential(t *testing.T) {
	w, d := newTestWorkflow()
	d.verifier.err = errors.New("token expired")

	resp := w.HandleChatTurn(context.Background(), "bad-token", userTurn("hi"))

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["requiresAuth"])
	assert.Zero(t, d.sessions.calls)
}

func TestChatTurnInvalidMessages(t *testing.T) {
	w, d := newTestWorkflow()

	tests := []struct {
		name     string
		messages []model.ChatMessage
	}{
		{"空列表", nil},
		{"内容为空", []model.ChatMessage{{Role: model.RoleUser, Content: ""}}},
		{"中间一条为空", []model.ChatMessage{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleAssistant, Content: ""},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := w.HandleChatTurn(context.Background(), "tok", tt.messages)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, "Invalid messages format", resp.Body["error"])
		})
	}
	assert.Zero(t, d.sessions.calls)
}

func TestChatTurnNormalResponse(t *testing.T) {
	w, d := newTestWorkflow()
	d.llm.result = &llm.GenerateResult{Text: "What is your budget?"}

	resp := w.HandleChatTurn(context.Background(), "tok",
		userTurn("3-room apartment in Springfield under 2000"))

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, false, resp.Body["requiresConfirmation"])
	msg := resp.Body["message"].(map[string]interface{})
	assert.Equal(t, model.RoleAssistant, msg["role"])
	assert.Equal(t, "What is your budget?", msg["content"])

	// 用户与助手消息各追加一条
	require.Len(t, d.repo.appends, 2)
	assert.Equal(t, model.RoleUser, d.repo.appends[0].msg.Role)
	assert.Equal(t, model.RoleAssistant, d.repo.appends[1].msg.Role)
	assert.False(t, d.repo.appends[1].overwrite)
}

func TestChatTurnCompletedDraftSkipsAssistantPersist(t *testing.T) {
	w, d := newTestWorkflow()
	d.llm.result = &llm.GenerateResult{Text: "Summary...", Requirements: sampleDraft()}

	resp := w.HandleChatTurn(context.Background(), "tok", userTurn("yes, that's everything"))

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["requiresConfirmation"])
	assert.Equal(t, sampleDraft(), resp.Body["requirements"])

	// 完成轮次只落库用户消息，助手摘要随响应返回但不进转写
	require.Len(t, d.repo.appends, 1)
	assert.Equal(t, model.RoleUser, d.repo.appends[0].msg.Role)
}

func TestChatTurnNewSessionOverwritesFirstMessage(t *testing.T) {
	w, d := newTestWorkflow()
	d.sessions.isNew = true

	resp := w.HandleChatTurn(context.Background(), "tok", userTurn("hello again"))

	require.Equal(t, http.StatusOK, resp.Status)
	require.NotEmpty(t, d.repo.appends)
	// 新会话（或被重置的会话）的首条消息覆盖写
	assert.True(t, d.repo.appends[0].overwrite)
}

func TestChatTurnOnlyLastMessagePersisted(t *testing.T) {
	w, d := newTestWorkflow()

	resp := w.HandleChatTurn(context.Background(), "tok", []model.ChatMessage{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
	})

	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, d.repo.appends, 2)
	assert.Equal(t, "second", d.repo.appends[0].msg.Content)
}

func TestChatTurnDependencyErrors(t *testing.T) {
	t.Run("会话管理失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.sessions.err = errors.New("redis down")
		resp := w.HandleChatTurn(context.Background(), "tok", userTurn("hi"))
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to manage chat session", resp.Body["error"])
	})

	t.Run("消息落库失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.repo.appendErr = errors.New("write conflict")
		resp := w.HandleChatTurn(context.Background(), "tok", userTurn("hi"))
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to save user message", resp.Body["error"])
	})

	t.Run("生成失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.llm.err = errors.New("api unavailable")
		resp := w.HandleChatTurn(context.Background(), "tok", userTurn("hi"))
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to generate AI response", resp.Body["error"])
	})
}

// ---- 确认入口与子管道 ----

func TestConfirmMissingInputs(t *testing.T) {
	w, d := newTestWorkflow()

	tests := []struct {
		name      string
		userID    string
		sessionID string
		draft     *model.RequirementsDraft
		wantErr   string
	}{
		{"缺 userId", "", "sess-1", sampleDraft(), "Missing required user information"},
		{"缺 sessionId", "user-1", "", sampleDraft(), "Missing required user information"},
		{"缺 requirements", "user-1", "sess-1", nil, "Invalid search preferences"},
		{"空 requirements", "user-1", "sess-1", &model.RequirementsDraft{}, "Invalid search preferences"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := w.HandleConfirm(context.Background(), tt.userID, tt.sessionID, tt.draft)
			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, tt.wantErr, resp.Body["error"])
		})
	}

	// 校验失败的确认请求不触发任何协作方调用
	assert.Zero(t, d.reqRepo.upserts)
	assert.Zero(t, d.search.calls)
	assert.Zero(t, d.extractor.calls)
}

func TestConfirmNoSearchHits(t *testing.T) {
	w, d := newTestWorkflow()
	d.search.urls = nil

	resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "No properties found.", resp.Body["error"])
	// 零结果终止于搜索状态，提取客户端不被调用
	assert.Equal(t, 1, d.reqRepo.upserts)
	assert.Zero(t, d.extractor.calls)
}

func TestConfirmNoValidExtractions(t *testing.T) {
	w, d := newTestWorkflow()
	d.extractor.listings = nil

	resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "No properties extracted.", resp.Body["error"])
	assert.Empty(t, d.propRepo.saved)
}

func TestConfirmFullPipeline(t *testing.T) {
	w, d := newTestWorkflow()
	d.search.urls = []string{"https://yad2.co.il/item/1", "https://madlan.co.il/item/2"}
	d.extractor.listings = []model.Property{
		sampleListing("https://yad2.co.il/item/1"),
		sampleListing("https://madlan.co.il/item/2"),
	}

	resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())

	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["success"])
	assert.Equal(t, "Properties saved successfully", resp.Body["message"])

	// 条件已按 (user, session) 保存
	assert.Equal(t, "user-1", d.reqRepo.lastUser)
	assert.Equal(t, "sess-1", d.reqRepo.lastSession)

	// 房源归属当前用户与会话
	require.Len(t, d.propRepo.saved, 2)
	for _, p := range d.propRepo.saved {
		assert.Equal(t, "user-1", p.UserID)
		assert.Equal(t, "sess-1", p.SessionID)
	}

	// 索引任务已投递
	require.Len(t, d.published, 1)
	assert.Len(t, d.published[0].Properties, 2)
}

func TestConfirmDependencyErrors(t *testing.T) {
	t.Run("条件持久化失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.reqRepo.err = errors.New("mysql down")
		resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to confirm search", resp.Body["error"])
	})

	t.Run("搜索提供方失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.search.err = errors.New("quota exceeded")
		resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to perform property search", resp.Body["error"])
	})

	t.Run("提取客户端失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.extractor.err = errors.New("network error")
		resp := w.HandleConfirm(context.Background(), "user-1", "sess-1", sampleDraft())
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to extract property listings", resp.Body["error"])
	})
}

// ---- 管理性保存入口 ----

func TestSaveListingsEntry(t *testing.T) {
	t.Run("缺 userId", func(t *testing.T) {
		w, _ := newTestWorkflow()
		resp := w.HandleSaveListings(context.Background(), "", "sess-1",
			[]model.Property{sampleListing("https://yad2.co.il/item/1")})
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "Missing userId.", resp.Body["error"])
	})

	t.Run("空房源列表", func(t *testing.T) {
		w, _ := newTestWorkflow()
		resp := w.HandleSaveListings(context.Background(), "user-1", "sess-1", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "No properties extracted to save.", resp.Body["error"])
	})

	t.Run("正常保存", func(t *testing.T) {
		w, d := newTestWorkflow()
		resp := w.HandleSaveListings(context.Background(), "user-1", "sess-1",
			[]model.Property{sampleListing("https://yad2.co.il/item/1")})
		require.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, true, resp.Body["success"])
		require.Len(t, d.propRepo.saved, 1)
		assert.Equal(t, "user-1", d.propRepo.saved[0].UserID)
	})

	t.Run("持久化失败", func(t *testing.T) {
		w, d := newTestWorkflow()
		d.propRepo.err = errors.New("mysql down")
		resp := w.HandleSaveListings(context.Background(), "user-1", "sess-1",
			[]model.Property{sampleListing("https://yad2.co.il/item/1")})
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "Failed to save properties", resp.Body["error"])
	})
}
