// Package llm 提供了与大语言模型交互的客户端。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nadlan-chat-go/internal/config"
	"nadlan-chat-go/internal/model"
)

// Message 表示一条角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateResult 是一次生成调用的结果。
// Requirements 非 nil 表示模型判定搜索条件已收集完整（对话"完成"）；
// 完成与否只以该结构化字段为准，调用方不得解析助手文本推断意图。
type GenerateResult struct {
	Text         string
	Requirements *model.RequirementsDraft
}

// Client 定义了 LLM 客户端的接口。
type Client interface {
	Generate(ctx context.Context, messages []Message) (*GenerateResult, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient 创建一个 OpenAI 兼容的 LLM 客户端。
func NewClient(cfg config.LLMConfig) Client {
	return &openAIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// systemPrompt 约束模型的行为：收集搜索条件，集齐后通过工具调用提交，
// 不得在文本里虚构具体房源。
const systemPrompt = `You are a real estate assistant helping users define their property search criteria.
Respond in the language of the conversation (Hebrew if the user writes Hebrew).
Ask for missing details one at a time: location, budget, property type, listing type (sale or rent), number of rooms, desired features.
Never invent or suggest a specific apartment; you only gather criteria.
Once ALL required details are collected, present a short summary of the criteria, ask the user to confirm, and call the submit_search_requirements function with the collected values.
If the user asks to change a detail, update it and summarize again.`

// submitRequirementsTool 是模型用来提交结构化搜索条件的函数定义。
var submitRequirementsTool = map[string]interface{}{
	"type": "function",
	"function": map[string]interface{}{
		"name":        "submit_search_requirements",
		"description": "Submit the fully collected property search criteria for user confirmation.",
		"parameters": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location":     map[string]interface{}{"type": "string"},
				"propertyType": map[string]interface{}{"type": "string"},
				"listingType":  map[string]interface{}{"type": "string", "enum": []string{"sale", "rent"}},
				"minPrice":     map[string]interface{}{"type": "integer"},
				"maxPrice":     map[string]interface{}{"type": "integer"},
				"rooms":        map[string]interface{}{"type": "number"},
				"features": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
			"required": []string{"location", "maxPrice"},
		},
	},
}

type chatRequest struct {
	Model       string                   `json:"model"`
	Messages    []Message                `json:"messages"`
	Tools       []map[string]interface{} `json:"tools,omitempty"`
	Temperature *float64                 `json:"temperature,omitempty"`
	TopP        *float64                 `json:"top_p,omitempty"`
	MaxTokens   *int                     `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate 以完整转写调用聊天接口，返回助手文本与可选的结构化搜索条件。
func (c *openAIClient) Generate(ctx context.Context, messages []Message) (*GenerateResult, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: append([]Message{{Role: "system", Content: systemPrompt}}, sanitize(messages)...),
		Tools:    []map[string]interface{}{submitRequirementsTool},
	}

	// 从全局配置注入生成参数（若非零值）
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat api returned no choices")
	}

	choice := parsed.Choices[0].Message
	result := &GenerateResult{Text: choice.Content}

	for _, tc := range choice.ToolCalls {
		if tc.Function.Name != "submit_search_requirements" {
			continue
		}
		var draft model.RequirementsDraft
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &draft); err != nil {
			return nil, fmt.Errorf("failed to parse search requirements from tool call: %w", err)
		}
		if !draft.IsEmpty() {
			result.Requirements = &draft
		}
		break
	}

	return result, nil
}

// sanitize 过滤掉缺少角色或内容的消息，与上游 API 的约束保持一致。
func sanitize(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "" || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
