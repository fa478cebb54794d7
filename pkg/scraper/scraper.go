// Package scraper 提供了房源页面的抓取与结构化提取客户端。
package scraper

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nadlan-chat-go/internal/config"
	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/pkg/log"

	"github.com/PuerkitoBio/goquery"
)

// SnapshotFunc 保存一份抓取页面的原始 HTML（审计用途）。失败不影响提取结果。
type SnapshotFunc func(ctx context.Context, objectName string, html []byte) error

// Client 定义了房源提取客户端的接口。
// 单个 URL 的抓取或校验失败会被跳过而不是使整批失败；
// 返回的记录均已通过 Validate。
type Client interface {
	Extract(ctx context.Context, urls []string) ([]model.Property, error)
}

// SnapshotObjectName 返回某个房源页面快照在对象存储中的键。
// 以 URL 的哈希命名，同一页面的快照覆盖写。
func SnapshotObjectName(pageURL string) string {
	return fmt.Sprintf("snapshots/%x.html", md5.Sum([]byte(pageURL)))
}

type httpScraper struct {
	cfg      config.ScraperConfig
	client   *http.Client
	snapshot SnapshotFunc
}

// NewClient 创建一个新的抓取客户端。snapshot 可以为 nil。
func NewClient(cfg config.ScraperConfig, snapshot SnapshotFunc) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpScraper{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		snapshot: snapshot,
	}
}

// Extract 依次抓取每个候选 URL 并提取结构化房源记录。
func (s *httpScraper) Extract(ctx context.Context, urls []string) ([]model.Property, error) {
	properties := make([]model.Property, 0, len(urls))

	for _, pageURL := range urls {
		if !strings.HasPrefix(pageURL, "http") {
			log.Warnf("跳过非法候选 URL: %s", pageURL)
			continue
		}

		property, err := s.scrapeOne(ctx, pageURL)
		if err != nil {
			// 单页失败只记录并跳过
			log.Warnf("抓取房源页面失败: %s, err: %v", pageURL, err)
			continue
		}

		if err := property.Validate(); err != nil {
			log.Warnf("房源记录校验未通过，丢弃: %s, err: %v", pageURL, err)
			continue
		}

		properties = append(properties, *property)
	}

	return properties, nil
}

func (s *httpScraper) scrapeOne(ctx context.Context, pageURL string) (*model.Property, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create page request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page body: %w", err)
	}

	if s.cfg.SnapshotPages && s.snapshot != nil {
		if err := s.snapshot(ctx, SnapshotObjectName(pageURL), html); err != nil {
			log.Warnf("保存页面快照失败: %s, err: %v", pageURL, err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}

	return s.parseListing(doc, pageURL), nil
}

// parseListing 按常见房源站点的选择器集提取字段。
func (s *httpScraper) parseListing(doc *goquery.Document, pageURL string) *model.Property {
	property := &model.Property{
		Address:     firstText(doc, ".address", ".main_title", ".listing-title"),
		City:        firstText(doc, ".city", ".subtitle", ".listing-location"),
		Price:       firstInt(doc, ".price", ".listing-price"),
		Rooms:       firstFloat(doc, ".rooms", ".listing-rooms"),
		HasParking:  exists(doc, ".parking-icon", ".has-parking"),
		HasElevator: exists(doc, ".elevator-icon", ".has-elevator"),
		HasSaferoom: exists(doc, ".saferoom-icon", ".has-saferoom"),
		Images:      s.collectImages(doc),
		SourceURL:   pageURL,
		SourceSite:  hostOf(pageURL),
		ListingType: "rent",
	}

	if property.Address == "" {
		property.Address = "Unknown"
	}
	if property.City == "" {
		property.City = "Unknown"
	}

	if size := firstInt(doc, ".size", ".listing-size"); size > 0 {
		property.SizeSqm = &size
	}
	if floor := firstInt(doc, ".floor", ".listing-floor"); floor > 0 {
		property.Floor = &floor
	}

	typeText := strings.ToLower(firstText(doc, ".listing-type"))
	if strings.Contains(typeText, "sale") || strings.Contains(typeText, "למכירה") {
		property.ListingType = "sale"
	}

	return property
}

func (s *httpScraper) collectImages(doc *goquery.Document) []string {
	max := s.cfg.MaxImages
	if max <= 0 {
		max = 5
	}
	var images []string
	doc.Find(".listing-image img, .img img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if src, ok := sel.Attr("src"); ok && src != "" {
			images = append(images, src)
		}
		return len(images) < max
	})
	return images
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var nonDigits = regexp.MustCompile(`[^\d]`)
var nonDecimal = regexp.MustCompile(`[^\d.]`)

func firstInt(doc *goquery.Document, selectors ...string) int {
	text := firstText(doc, selectors...)
	if text == "" {
		return 0
	}
	n, err := strconv.Atoi(nonDigits.ReplaceAllString(text, ""))
	if err != nil {
		return 0
	}
	return n
}

func firstFloat(doc *goquery.Document, selectors ...string) float64 {
	text := firstText(doc, selectors...)
	if text == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.Trim(nonDecimal.ReplaceAllString(text, ""), "."), 64)
	if err != nil {
		return 0
	}
	return f
}

func exists(doc *goquery.Document, selectors ...string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
