package reports

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/carepulse/engage/internal/domain/analytics"
)

func sampleDocument() *analytics.MetricsDocument {
	filter := analytics.Filter{
		TenantName: "Mercy Health",
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}
	doc := analytics.NewMetricsDocument("2026-08-31-1", filter)
	doc.BasicStats.TotalUsers = 120
	doc.BasicStats.UsersByRole = []analytics.CountRow{{Label: "Patient", Count: 80}}
	doc.GenericEngagement.AvgSessionMinutes = 12.5
	doc.GenericEngagement.Retention.ExactDay = []analytics.RetentionRow{
		{Day: 1, ReturningUsers: 10, RetentionRate: 5.0},
	}
	doc.GenericEngagement.Retention.Interval = []analytics.RetentionRow{
		{Day: 1, ReturningUsers: 12, RetentionRate: 6.0},
	}
	doc.Medication.Taken = 5
	doc.Vitals.ByType = []analytics.VitalsRow{{VitalType: "weight", Manual: 2, Device: 1}}
	doc.Assessments.Responses = []analytics.AssessmentResponse{
		{Assessment: "intake", NodeTitle: "Pain today?", DisplayText: "Yes", Count: 6},
	}
	return doc
}

func TestJSONRenderer(t *testing.T) {
	r := NewJSONRenderer()
	assert.Equal(t, "json", r.Format())
	assert.Equal(t, "application/json", r.ContentType())

	out, err := r.Render(sampleDocument())
	require.NoError(t, err)

	var decoded analytics.MetricsDocument
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "2026-08-31-1", decoded.AnalysisCode)
	assert.Equal(t, int64(120), decoded.BasicStats.TotalUsers)
}

func TestExcelRenderer(t *testing.T) {
	r := NewExcelRenderer()
	assert.Equal(t, "excel", r.Format())

	out, err := r.Render(sampleDocument())
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Overview")
	assert.Contains(t, sheets, "Basic Stats")
	assert.Contains(t, sheets, "Engagement")
	assert.Contains(t, sheets, "Features")
	assert.Contains(t, sheets, "Care")
	assert.Contains(t, sheets, "Assessments")
	assert.NotContains(t, sheets, "Sheet1")

	code, err := f.GetCellValue("Overview", "B2")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-31-1", code)
}

func TestPDFRenderer(t *testing.T) {
	r := NewPDFRenderer()
	assert.Equal(t, "pdf", r.Format())

	out, err := r.Render(sampleDocument())
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "output should start with a PDF header")
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/2026-08-31-1/2026-08-31-1.json", ReportKey("2026-08-31-1", "json"))
	assert.Equal(t, "reports/2026-08-31-1/2026-08-31-1.xlsx", ReportKey("2026-08-31-1", "excel"))
	assert.Equal(t, "reports/2026-08-31-1/2026-08-31-1.pdf", ReportKey("2026-08-31-1", "pdf"))
}
