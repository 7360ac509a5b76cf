package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"callgist/internal/store"

	"github.com/gin-gonic/gin"
)

// HandleSearchCalls handles GET /api/v1/calls
func (h *Handler) HandleSearchCalls(c *gin.Context) {
	ctx := c.Request.Context()

	params := store.SearchCallsParams{
		Category:         optionalQuery(c, "category"),
		Sentiment:        optionalQuery(c, "sentiment"),
		Priority:         optionalQuery(c, "priority"),
		ResolutionStatus: optionalQuery(c, "resolution_status"),
		SearchText:       optionalQuery(c, "q"),
	}

	if tags := c.Query("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				params.Tags = append(params.Tags, tag)
			}
		}
	}

	var err error
	if params.DateFrom, err = optionalTimeQuery(c, "date_from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from, expected RFC3339 or YYYY-MM-DD"})
		return
	}
	if params.DateTo, err = optionalTimeQuery(c, "date_to"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to, expected RFC3339 or YYYY-MM-DD"})
		return
	}

	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if params.PerPage > 100 {
		params.PerPage = 100
	}

	records, total, err := h.callStore.SearchCallRecords(ctx, params)
	if err != nil {
		h.logger.Error(ctx, "failed to search call records", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search calls"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calls":    records,
		"total":    total,
		"page":     params.Page,
		"per_page": params.PerPage,
	})
}

// HandleDashboardAnalytics handles GET /api/v1/analytics/dashboard
func (h *Handler) HandleDashboardAnalytics(c *gin.Context) {
	ctx := c.Request.Context()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if t, err := optionalTimeQuery(c, "date_from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from, expected RFC3339 or YYYY-MM-DD"})
		return
	} else if t != nil {
		from = *t
	}
	if t, err := optionalTimeQuery(c, "date_to"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to, expected RFC3339 or YYYY-MM-DD"})
		return
	} else if t != nil {
		to = *t
	}

	analytics, err := h.callStore.GetDashboardAnalytics(ctx, from, to)
	if err != nil {
		h.logger.Error(ctx, "failed to load dashboard analytics", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analytics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date_from": from,
		"date_to":   to,
		"analytics": analytics,
	})
}

func optionalQuery(c *gin.Context, key string) *string {
	if value := c.Query(key); value != "" {
		return &value
	}
	return nil
}

func optionalTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	value := c.Query(key)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
