package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/cache"
	"github.com/carepulse/engage/internal/domain/analytics"
	"github.com/carepulse/engage/internal/reports"
	"github.com/carepulse/engage/internal/services"
)

const dateLayout = "2006-01-02"

// AnalyticsHandler exposes the aggregation lifecycle and direct-compute
// endpoints.
type AnalyticsHandler struct {
	analyses   *services.AnalysisService
	filters    *services.FilterService
	calculator *services.EngagementCalculator
	metrics    *cache.MetricsCache
	store      analytics.BlobStore
	logger     *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(
	analyses *services.AnalysisService,
	filters *services.FilterService,
	calculator *services.EngagementCalculator,
	metrics *cache.MetricsCache,
	store analytics.BlobStore,
	logger *zap.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyses:   analyses,
		filters:    filters,
		calculator: calculator,
		metrics:    metrics,
		store:      store,
		logger:     logger,
	}
}

// beginRequest is the POST body for starting an aggregation run. All fields
// are optional; dates use YYYY-MM-DD.
type beginRequest struct {
	TenantID  *uuid.UUID `json:"tenant_id"`
	RoleID    *int       `json:"role_id"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Source    string     `json:"source"`
}

func (r *beginRequest) toFilter() (*analytics.Filter, error) {
	f := &analytics.Filter{
		TenantID: r.TenantID,
		RoleID:   r.RoleID,
		Source:   r.Source,
	}
	if r.StartDate != "" {
		t, err := time.Parse(dateLayout, r.StartDate)
		if err != nil {
			return nil, err
		}
		f.StartDate = t
	}
	if r.EndDate != "" {
		t, err := time.Parse(dateLayout, r.EndDate)
		if err != nil {
			return nil, err
		}
		f.EndDate = t
	}
	return f, nil
}

// BeginAnalysis starts a background aggregation run and returns the analysis
// code with its retrieval URLs.
func (h *AnalyticsHandler) BeginAnalysis(c *gin.Context) {
	var req beginRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST_BODY",
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_DATE",
			Message: "Dates must use YYYY-MM-DD",
			Details: err.Error(),
		})
		return
	}

	links, err := h.analyses.Begin(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_DATE_RANGE",
				Message: "Start date is after end date",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "BEGIN_ANALYSIS_FAILED",
			Message: "Failed to start analysis",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, links)
}

// GetMetrics returns the metrics document for a completed analysis.
func (h *AnalyticsHandler) GetMetrics(c *gin.Context) {
	code := c.Param("code")

	if doc, ok := h.metrics.Get(c.Request.Context(), code); ok {
		c.JSON(http.StatusOK, doc)
		return
	}

	doc, err := h.analyses.GetDocument(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, analytics.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "ANALYSIS_NOT_FOUND",
				Message: "No analysis exists for this code",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "GET_METRICS_FAILED",
			Message: "Failed to load metrics",
			Details: err.Error(),
		})
		return
	}

	h.metrics.Set(c.Request.Context(), code, doc)
	c.JSON(http.StatusOK, doc)
}

var formatContentTypes = map[string]string{
	"json":  "application/json",
	"excel": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":   "application/pdf",
}

// DownloadReport streams a rendered report file.
func (h *AnalyticsHandler) DownloadReport(c *gin.Context) {
	code := c.Param("code")
	format := c.Param("format")

	contentType, ok := formatContentTypes[format]
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UNKNOWN_FORMAT",
			Message: "Format must be one of json, excel, pdf",
		})
		return
	}

	if _, err := h.analyses.GetByCode(c.Request.Context(), code); err != nil {
		if errors.Is(err, analytics.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "ANALYSIS_NOT_FOUND",
				Message: "No analysis exists for this code",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "DOWNLOAD_FAILED",
			Message: "Failed to load analysis record",
			Details: err.Error(),
		})
		return
	}

	key := reports.ReportKey(code, format)
	stream, err := h.store.DownloadStream(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// The record exists but the file does not: the run is still
			// rendering, or rendering failed.
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    "REPORT_NOT_READY",
				Message: "Report file is not available yet",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "DOWNLOAD_FAILED",
			Message: "Failed to open report file",
			Details: err.Error(),
		})
		return
	}
	defer stream.Close()

	c.Header("Content-Disposition", "attachment; filename="+code+"."+format)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, stream); err != nil {
		h.logger.Warn("report stream interrupted",
			zap.String("code", code),
			zap.String("format", format),
			zap.Error(err))
	}
}

// GetBasicStats computes the population section directly.
func (h *AnalyticsHandler) GetBasicStats(c *gin.Context) {
	f, ok := h.normalizedFilter(c)
	if !ok {
		return
	}
	h.serveSection(c, sectionCacheKey("basic", f), func(ctx context.Context) any {
		return h.calculator.CalculateBasicStats(ctx, f)
	})
}

// GetEngagement computes the app-wide engagement section directly.
func (h *AnalyticsHandler) GetEngagement(c *gin.Context) {
	f, ok := h.normalizedFilter(c)
	if !ok {
		return
	}
	h.serveSection(c, sectionCacheKey("engagement", f), func(ctx context.Context) any {
		return h.calculator.CalculateGenericEngagement(ctx, f)
	})
}

// GetFeatureEngagement computes one feature category's engagement directly.
func (h *AnalyticsHandler) GetFeatureEngagement(c *gin.Context) {
	category := analytics.FeatureCategory(c.Param("category"))
	known := false
	for _, candidate := range analytics.FeatureCategories {
		if candidate == category {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UNKNOWN_CATEGORY",
			Message: "Unknown feature category",
			Details: string(category),
		})
		return
	}

	f, ok := h.normalizedFilter(c)
	if !ok {
		return
	}
	h.serveSection(c, sectionCacheKey("features:"+string(category), f), func(ctx context.Context) any {
		return h.calculator.CalculateFeatureEngagement(ctx, f, category)
	})
}

// serveSection answers a direct-compute request from the section cache when
// possible, otherwise computes and backfills the cache.
func (h *AnalyticsHandler) serveSection(c *gin.Context, key string, compute func(ctx context.Context) any) {
	ctx := c.Request.Context()
	if payload, ok := h.metrics.GetSection(ctx, key); ok {
		c.Data(http.StatusOK, "application/json", payload)
		return
	}

	section := compute(ctx)
	if payload, err := json.Marshal(section); err == nil {
		h.metrics.SetSection(ctx, key, payload)
	}
	c.JSON(http.StatusOK, section)
}

// sectionCacheKey derives a stable cache key from the normalized filter so
// identical direct-compute requests share an entry.
func sectionCacheKey(section string, f analytics.Filter) string {
	payload, _ := json.Marshal(f)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("stats:%s:%x", section, sum[:8])
}

// normalizedFilter parses filter query parameters and normalizes them. On
// failure it writes the error response and reports false.
func (h *AnalyticsHandler) normalizedFilter(c *gin.Context) (analytics.Filter, bool) {
	filter, err := parseFilterQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_FILTER",
			Message: "Invalid filter parameters",
			Details: err.Error(),
		})
		return analytics.Filter{}, false
	}

	normalized, err := h.filters.Normalize(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_DATE_RANGE",
				Message: "Start date is after end date",
			})
			return analytics.Filter{}, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "FILTER_NORMALIZATION_FAILED",
			Message: "Failed to normalize filter",
			Details: err.Error(),
		})
		return analytics.Filter{}, false
	}
	return normalized, true
}

func parseFilterQuery(c *gin.Context) (*analytics.Filter, error) {
	f := &analytics.Filter{Source: c.Query("source")}

	if raw := c.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		f.TenantID = &id
	}
	if raw := c.Query("role_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, err
		}
		f.RoleID = &id
	}
	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, err
		}
		f.StartDate = t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, err
		}
		f.EndDate = t
	}
	return f, nil
}
