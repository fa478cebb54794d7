// Package search 提供了房源候选 URL 的搜索客户端（Google Custom Search JSON API）。
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nadlan-chat-go/internal/config"
	"nadlan-chat-go/internal/model"
)

// Client 定义了搜索提供方的接口。
// 返回空列表不是错误，由调用方作为"无结果"软性结论处理。
type Client interface {
	FindCandidateURLs(ctx context.Context, req *model.RequirementsDraft) ([]string, error)
}

type googleClient struct {
	cfg    config.SearchConfig
	client *http.Client
}

// NewClient 创建一个新的搜索客户端实例。
func NewClient(cfg config.SearchConfig) Client {
	return &googleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// 已知特性标签到希伯来语检索词的映射，未知标签原样拼入查询。
var featureTerms = map[string]string{
	"parking":   "חניה",
	"saferoom":  "ממ\"ד",
	"elevator":  "מעלית",
	"pets":      "ידידותי לחיות מחמד",
	"furnished": "מרוהטת",
	"balcony":   "מרפסת",
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// FindCandidateURLs 根据搜索条件构造关键词查询并返回候选房源页面 URL。
func (c *googleClient) FindCandidateURLs(ctx context.Context, req *model.RequirementsDraft) ([]string, error) {
	query := BuildQuery(req)

	params := url.Values{}
	params.Set("q", query)
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("num", strconv.Itoa(c.maxResults()))
	params.Set("lr", "lang_iw") // 希伯来语结果
	params.Set("gl", "il")
	if c.cfg.PrimarySite != "" {
		params.Set("siteSearch", c.cfg.PrimarySite)
	}
	if len(c.cfg.SecondarySites) > 0 {
		params.Set("orTerms", strings.Join(c.cfg.SecondarySites, " "))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call search api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	urls := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		urls = append(urls, item.Link)
	}
	return urls, nil
}

func (c *googleClient) maxResults() int {
	if c.cfg.MaxResults > 0 {
		return c.cfg.MaxResults
	}
	return 5
}

// BuildQuery 将结构化搜索条件拼装为关键词查询串。
func BuildQuery(req *model.RequirementsDraft) string {
	var parts []string

	if req.Location != "" {
		parts = append(parts, req.Location)
	}
	if req.PropertyType != "" {
		parts = append(parts, req.PropertyType)
	}
	switch req.ListingType {
	case "sale":
		parts = append(parts, "למכירה")
	case "rent":
		parts = append(parts, "להשכרה")
	}
	if req.Rooms > 0 {
		parts = append(parts, fmt.Sprintf("%s חדרים", trimFloat(req.Rooms)))
	}
	for _, f := range req.Features {
		if term, ok := featureTerms[strings.ToLower(f)]; ok {
			parts = append(parts, term)
		} else {
			parts = append(parts, f)
		}
	}

	return strings.Join(parts, " ")
}

// trimFloat 输出不带多余零的房间数（3 而不是 3.0，3.5 保持 3.5）。
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
