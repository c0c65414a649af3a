package reports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// ReportService renders a completed metrics document into every configured
// format and uploads the results. One format failing never blocks the others;
// the returned map only carries the formats that made it to storage.
type ReportService struct {
	renderers []analytics.Renderer
	store     analytics.BlobStore
	logger    *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store analytics.BlobStore, logger *zap.Logger, renderers ...analytics.Renderer) *ReportService {
	return &ReportService{
		renderers: renderers,
		store:     store,
		logger:    logger,
	}
}

// Generate renders and uploads every format, returning format to URL.
func (s *ReportService) Generate(ctx context.Context, code string, doc *analytics.MetricsDocument) map[string]string {
	urls := make(map[string]string, len(s.renderers))
	for _, renderer := range s.renderers {
		content, err := renderer.Render(doc)
		if err != nil {
			s.logger.Error("report rendering failed",
				zap.String("code", code),
				zap.String("format", renderer.Format()),
				zap.Error(err))
			continue
		}
		url, err := s.store.Upload(ctx, ReportKey(code, renderer.Format()), content)
		if err != nil {
			s.logger.Error("report upload failed",
				zap.String("code", code),
				zap.String("format", renderer.Format()),
				zap.Error(err))
			continue
		}
		urls[renderer.Format()] = url
	}
	return urls
}

// ReportKey is the storage key for one analysis report file.
func ReportKey(code, format string) string {
	return fmt.Sprintf("reports/%s/%s.%s", code, code, extensionFor(format))
}

func extensionFor(format string) string {
	switch format {
	case "excel":
		return "xlsx"
	default:
		return format
	}
}
