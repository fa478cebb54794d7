package handler

import (
	"net/http"
	"strconv"
	"time"

	"nadlan-chat-go/internal/model"
	"nadlan-chat-go/internal/repository"
	"nadlan-chat-go/internal/service"
	"nadlan-chat-go/pkg/log"
	"nadlan-chat-go/pkg/scraper"

	"github.com/gin-gonic/gin"
)

// SnapshotPresigner 为对象存储中的页面快照签发预签名访问 URL。
type SnapshotPresigner func(objectName string, expiry time.Duration) (string, error)

// snapshotURLExpiry 是快照访问 URL 的有效期。
const snapshotURLExpiry = 15 * time.Minute

// SearchHandler 负责已保存房源的查询与检索请求。
type SearchHandler struct {
	searchService    service.ListingSearchService
	propertyRepo     repository.PropertyRepository
	requirementsRepo repository.RequirementsRepository
	presign          SnapshotPresigner
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(
	searchService service.ListingSearchService,
	propertyRepo repository.PropertyRepository,
	requirementsRepo repository.RequirementsRepository,
	presign SnapshotPresigner,
) *SearchHandler {
	return &SearchHandler{
		searchService:    searchService,
		propertyRepo:     propertyRepo,
		requirementsRepo: requirementsRepo,
		presign:          presign,
	}
}

// SearchListings 在当前用户已索引的房源中做全文+过滤检索。
// GET /properties/search?q=...&maxPrice=...&listingType=...&topK=...
func (h *SearchHandler) SearchListings(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	maxPrice, _ := strconv.Atoi(c.Query("maxPrice"))
	topK, _ := strconv.Atoi(c.DefaultQuery("topK", "10"))

	listings, err := h.searchService.Search(c.Request.Context(), userID, service.ListingQuery{
		Text:        c.Query("q"),
		MaxPrice:    maxPrice,
		ListingType: c.Query("listingType"),
		TopK:        topK,
	})
	if err != nil {
		log.Errorf("检索已保存房源失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search saved listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// ListProperties 返回当前用户持久化在 MySQL 中的房源。
// 带 sessionId 查询参数时只返回该会话关联的房源，并回显该会话已确认的搜索条件。
// GET /properties?sessionId=...
func (h *SearchHandler) ListProperties(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var err error
	var properties []model.Property
	sessionID := c.Query("sessionId")
	if sessionID != "" {
		properties, err = h.propertyRepo.FindBySession(c.Request.Context(), userID, sessionID)
	} else {
		properties, err = h.propertyRepo.FindByUser(c.Request.Context(), userID)
	}
	if err != nil {
		log.Errorf("查询已保存房源失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch saved properties"})
		return
	}

	resp := gin.H{"properties": properties}
	if sessionID != "" {
		// 回显条件是尽力而为的附加信息，查询失败不影响房源列表
		requirements, err := h.requirementsRepo.GetBySession(c.Request.Context(), userID, sessionID)
		if err != nil {
			log.Warnf("查询会话 %s 的搜索条件失败: %v", sessionID, err)
		} else if requirements != nil {
			resp["requirements"] = requirements
		}
	}

	c.JSON(http.StatusOK, resp)
}

// SnapshotURL 为已抓取房源页面的 HTML 快照签发一个限时访问 URL。
// GET /properties/snapshot?sourceUrl=...
func (h *SearchHandler) SnapshotURL(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sourceURL := c.Query("sourceUrl")
	if sourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing sourceUrl."})
		return
	}

	snapshotURL, err := h.presign(scraper.SnapshotObjectName(sourceURL), snapshotURLExpiry)
	if err != nil {
		log.Errorf("为页面快照签发访问 URL 失败: %s, err: %v", sourceURL, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to presign snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": snapshotURL})
}
