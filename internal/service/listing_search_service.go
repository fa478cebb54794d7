package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// ListingQuery 是已保存房源的检索条件。
type ListingQuery struct {
	Text        string // 对地址与城市做全文匹配，可为空
	MaxPrice    int
	ListingType string // "sale"、"rent" 或空
	TopK        int
}

// ListingSearchService 对已索引到 Elasticsearch 的房源提供检索。
type ListingSearchService interface {
	Search(ctx context.Context, userID string, q ListingQuery) ([]model.EsListing, error)
}

type listingSearchService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewListingSearchService 创建一个新的 ListingSearchService 实例。
func NewListingSearchService(esClient *elasticsearch.Client, indexName string) ListingSearchService {
	return &listingSearchService{esClient: esClient, indexName: indexName}
}

func (s *listingSearchService) Search(ctx context.Context, userID string, q ListingQuery) ([]model.EsListing, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": userID}},
	}
	if q.ListingType != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"listing_type": q.ListingType},
		})
	}
	if q.MaxPrice > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"price": map[string]interface{}{"lte": q.MaxPrice}},
		})
	}

	boolQuery := map[string]interface{}{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"address", "city"},
			},
		}
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []map[string]interface{}{{"indexed_at": map[string]interface{}{"order": "desc"}}},
		"size":  topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ListingSearchService] Elasticsearch 返回错误: %s", string(body))
		return nil, fmt.Errorf("elasticsearch returned error status: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source model.EsListing `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	listings := make([]model.EsListing, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		listings = append(listings, hit.Source)
	}
	return listings, nil
}
