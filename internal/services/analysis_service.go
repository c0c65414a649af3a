package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

const codeDateLayout = "2006-01-02"

// ReportLinks are the retrieval URLs advertised for one analysis run. They
// are valid as soon as the code is issued; the files behind them appear when
// the background run completes.
type ReportLinks struct {
	Code         string `json:"analysis_code"`
	JSONURL      string `json:"json_url"`
	ExcelURL     string `json:"excel_url"`
	PDFURL       string `json:"pdf_url"`
	CanonicalURL string `json:"canonical_url"`
}

// AnalysisService owns the analysis lifecycle: issuing codes, running the
// calculator, persisting the outcome, and fanning out report rendering.
type AnalysisService struct {
	filters    *FilterService
	calculator *EngagementCalculator
	analyses   analytics.AnalysisRepository
	directory  analytics.DirectoryRepository
	reports    analytics.ReportGenerator
	baseURL    string
	runTimeout time.Duration
	logger     *zap.Logger
	now        func() time.Time

	// codeMu serializes read-count-then-insert code generation; the unique
	// constraint on the code column is the backstop.
	codeMu sync.Mutex
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	filters *FilterService,
	calculator *EngagementCalculator,
	analyses analytics.AnalysisRepository,
	directory analytics.DirectoryRepository,
	reports analytics.ReportGenerator,
	baseURL string,
	runTimeout time.Duration,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		filters:    filters,
		calculator: calculator,
		analyses:   analyses,
		directory:  directory,
		reports:    reports,
		baseURL:    baseURL,
		runTimeout: runTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// GenerateCode issues the next analysis code for today: the run date, an
// optional tenant suffix, and a 1-based ordinal over codes already sharing
// that prefix.
func (s *AnalysisService) GenerateCode(ctx context.Context, suffix string) (string, error) {
	s.codeMu.Lock()
	defer s.codeMu.Unlock()

	prefix := s.now().UTC().Format(codeDateLayout)
	if suffix != "" {
		prefix = prefix + "-" + suffix
	}
	count, err := s.analyses.CountCodesWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to count analysis codes: %w", err)
	}
	return fmt.Sprintf("%s-%d", prefix, count+1), nil
}

// Links builds the retrieval URLs for an analysis code.
func (s *AnalysisService) Links(code string) ReportLinks {
	return ReportLinks{
		Code:         code,
		JSONURL:      fmt.Sprintf("%s/v1/analytics/download/%s/formats/json", s.baseURL, code),
		ExcelURL:     fmt.Sprintf("%s/v1/analytics/download/%s/formats/excel", s.baseURL, code),
		PDFURL:       fmt.Sprintf("%s/v1/analytics/download/%s/formats/pdf", s.baseURL, code),
		CanonicalURL: fmt.Sprintf("%s/v1/analytics/metrics/%s", s.baseURL, code),
	}
}

// Begin validates and normalizes the filter, issues a code, and starts the
// aggregation run in the background. The returned links are immediately
// shareable.
func (s *AnalysisService) Begin(ctx context.Context, f *analytics.Filter) (*ReportLinks, error) {
	normalized, err := s.filters.Normalize(ctx, f)
	if err != nil {
		return nil, err
	}

	code, err := s.GenerateCode(ctx, normalized.TenantCode)
	if err != nil {
		return nil, err
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		if err := s.Run(runCtx, code, normalized); err != nil {
			s.logger.Error("background analysis run failed",
				zap.String("code", code),
				zap.Error(err))
		}
	}()

	links := s.Links(code)
	return &links, nil
}

// Run executes one full aggregation for an already-normalized filter:
// calculate, persist, then render reports. Report rendering is best-effort;
// a persistence failure is the only fatal outcome.
func (s *AnalysisService) Run(ctx context.Context, code string, f analytics.Filter) error {
	started := s.now()
	doc := s.calculator.Calculate(ctx, code, f)

	if err := s.Save(ctx, code, f, doc); err != nil {
		return err
	}

	urls := s.reports.Generate(ctx, code, doc)
	s.logger.Info("analysis run completed",
		zap.String("code", code),
		zap.String("tenant", f.TenantName),
		zap.Int("reports", len(urls)),
		zap.Duration("elapsed", s.now().Sub(started)))
	return nil
}

// Save serializes the document and persists the analysis record.
func (s *AnalysisService) Save(ctx context.Context, code string, f analytics.Filter, doc *analytics.MetricsDocument) error {
	serialized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize metrics document: %w", err)
	}

	links := s.Links(code)
	record := &analytics.Record{
		ID:                uuid.New(),
		Code:              code,
		TenantID:          f.TenantID,
		TenantName:        f.TenantName,
		DateStr:           s.now().UTC().Format(codeDateLayout),
		SerializedMetrics: serialized,
		StartDate:         f.StartDate,
		EndDate:           f.EndDate,
		JSONURL:           links.JSONURL,
		ExcelURL:          links.ExcelURL,
		PDFURL:            links.PDFURL,
		CanonicalURL:      links.CanonicalURL,
		CreatedAt:         s.now().UTC(),
	}
	return s.analyses.Insert(ctx, record)
}

// GetByCode loads a persisted analysis record.
func (s *AnalysisService) GetByCode(ctx context.Context, code string) (*analytics.Record, error) {
	return s.analyses.GetByCode(ctx, code)
}

// GetDocument loads and deserializes the metrics document for a code.
func (s *AnalysisService) GetDocument(ctx context.Context, code string) (*analytics.MetricsDocument, error) {
	record, err := s.analyses.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var doc analytics.MetricsDocument
	if err := json.Unmarshal(record.SerializedMetrics, &doc); err != nil {
		return nil, fmt.Errorf("failed to deserialize metrics document: %w", err)
	}
	return &doc, nil
}

// GenerateDailyAnalytics runs one aggregation per tenant plus a cross-tenant
// pass. Each run is independent; a failed tenant is logged and skipped so the
// remaining tenants still get their daily document.
func (s *AnalysisService) GenerateDailyAnalytics(ctx context.Context) {
	tenants, err := s.directory.ListTenants(ctx)
	if err != nil {
		s.logger.Error("daily analytics: tenant listing failed", zap.Error(err))
		tenants = nil
	}

	for _, tenant := range tenants {
		tenant := tenant
		s.runDaily(ctx, &analytics.Filter{TenantID: &tenant.ID}, tenant.Code)
	}
	s.runDaily(ctx, nil, "")
}

func (s *AnalysisService) runDaily(ctx context.Context, f *analytics.Filter, suffix string) {
	normalized, err := s.filters.Normalize(ctx, f)
	if err != nil {
		s.logger.Error("daily analytics: normalization failed",
			zap.String("suffix", suffix),
			zap.Error(err))
		return
	}
	code, err := s.GenerateCode(ctx, suffix)
	if err != nil {
		s.logger.Error("daily analytics: code generation failed",
			zap.String("suffix", suffix),
			zap.Error(err))
		return
	}
	if err := s.Run(ctx, code, normalized); err != nil {
		s.logger.Error("daily analytics: run failed",
			zap.String("code", code),
			zap.Error(err))
	}
}
