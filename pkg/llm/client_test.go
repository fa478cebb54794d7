package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nadlan-chat-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeAPI(t *testing.T, response string, capture *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(response))
	}))
}

func TestGeneratePlainResponse(t *testing.T) {
	var captured map[string]interface{}
	server := newFakeAPI(t, `{"choices":[{"message":{"content":"מה התקציב שלך?"}}]}`, &captured)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key", Model: "gpt-4o-mini"})

	result, err := client.Generate(context.Background(), []Message{
		{Role: "user", Content: "אני מחפש דירה בתל אביב"},
	})

	require.NoError(t, err)
	assert.Equal(t, "מה התקציב שלך?", result.Text)
	// 没有工具调用时不产出条件草稿
	assert.Nil(t, result.Requirements)

	// system 提示词在最前，用户消息随后
	messages := captured["messages"].([]interface{})
	require.GreaterOrEqual(t, len(messages), 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
	// 工具定义随请求一起发送
	tools := captured["tools"].([]interface{})
	require.Len(t, tools, 1)
}

func TestGenerateToolCallYieldsRequirements(t *testing.T) {
	response := `{"choices":[{"message":{
		"content":"סיכום: דירת 3 חדרים להשכרה בתל אביב עד 6000. לאשר?",
		"tool_calls":[{"function":{
			"name":"submit_search_requirements",
			"arguments":"{\"location\":\"תל אביב\",\"propertyType\":\"דירה\",\"listingType\":\"rent\",\"maxPrice\":6000,\"rooms\":3,\"features\":[\"parking\"]}"
		}}]
	}}]}`
	server := newFakeAPI(t, response, nil)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	result, err := client.Generate(context.Background(), []Message{
		{Role: "user", Content: "כן, זה הכל"},
	})

	require.NoError(t, err)
	require.NotNil(t, result.Requirements)
	assert.Equal(t, "תל אביב", result.Requirements.Location)
	assert.Equal(t, "rent", result.Requirements.ListingType)
	assert.Equal(t, 6000, result.Requirements.MaxPrice)
	assert.Equal(t, float64(3), result.Requirements.Rooms)
	assert.Equal(t, []string{"parking"}, result.Requirements.Features)
	assert.NotEmpty(t, result.Text)
}

func TestGenerateIgnoresUnknownToolCall(t *testing.T) {
	response := `{"choices":[{"message":{
		"content":"בסדר",
		"tool_calls":[{"function":{"name":"something_else","arguments":"{}"}}]
	}}]}`
	server := newFakeAPI(t, response, nil)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	result, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	assert.Nil(t, result.Requirements)
}

func TestGenerateEmptyArgumentsNotCompleted(t *testing.T) {
	response := `{"choices":[{"message":{
		"content":"עוד פרטים?",
		"tool_calls":[{"function":{"name":"submit_search_requirements","arguments":"{}"}}]
	}}]}`
	server := newFakeAPI(t, response, nil)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	result, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	// 空参数的工具调用不构成"完成"
	assert.Nil(t, result.Requirements)
}

func TestGenerateSanitizesMessages(t *testing.T) {
	var captured map[string]interface{}
	server := newFakeAPI(t, `{"choices":[{"message":{"content":"ok"}}]}`, &captured)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Generate(context.Background(), []Message{
		{Role: "user", Content: "hi"},
		{Role: "", Content: "orphan"},
		{Role: "assistant", Content: ""},
	})

	require.NoError(t, err)
	// system + 1 条有效消息
	messages := captured["messages"].([]interface{})
	assert.Len(t, messages, 2)
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestGenerateNoChoices(t *testing.T) {
	server := newFakeAPI(t, `{"choices":[]}`, nil)
	defer server.Close()

	client := NewClient(config.LLMConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestGenerationParamsInjected(t *testing.T) {
	var captured map[string]interface{}
	server := newFakeAPI(t, `{"choices":[{"message":{"content":"ok"}}]}`, &captured)
	defer server.Close()

	client := NewClient(config.LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Generation: config.LLMGenerationConfig{
			Temperature: 0.4,
			MaxTokens:   512,
		},
	})

	_, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, 0.4, captured["temperature"])
	assert.Equal(t, float64(512), captured["max_tokens"])
	// 未配置的参数不出现在请求体中
	_, hasTopP := captured["top_p"]
	assert.False(t, hasTopP)
}
