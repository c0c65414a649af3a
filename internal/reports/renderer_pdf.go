package reports

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// PDFRenderer produces a printable summary of the metrics document. It
// carries the headline numbers and breakdown tables; the full per-day series
// stay in the JSON and Excel outputs.
type PDFRenderer struct{}

// NewPDFRenderer creates a new PDF renderer
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Format() string {
	return "pdf"
}

func (r *PDFRenderer) ContentType() string {
	return "application/pdf"
}

func (r *PDFRenderer) Render(doc *analytics.MetricsDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Engagement Analytics Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Analysis Code: %s", doc.AnalysisCode))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Tenant: %s", doc.Filter.TenantName))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		doc.Filter.StartDate.Format("2006-01-02"),
		doc.Filter.EndDate.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	pdf.Ln(10)

	r.writeBasicStats(pdf, doc.BasicStats)
	r.writeEngagement(pdf, doc.GenericEngagement)
	r.writeCare(pdf, doc)
	r.writeAssessments(pdf, doc.Assessments)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 10)
}

func (r *PDFRenderer) keyValue(pdf *fpdf.Fpdf, key string, value any) {
	pdf.Cell(70, 6, key)
	pdf.Cell(0, 6, fmt.Sprintf("%v", value))
	pdf.Ln(6)
}

func (r *PDFRenderer) countTable(pdf *fpdf.Fpdf, title string, rows []analytics.CountRow) {
	if len(rows) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 6, title)
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows {
		pdf.Cell(70, 5, row.Label)
		pdf.Cell(0, 5, fmt.Sprintf("%d", row.Count))
		pdf.Ln(5)
	}
	pdf.Ln(3)
}

func (r *PDFRenderer) writeBasicStats(pdf *fpdf.Fpdf, stats *analytics.BasicStats) {
	r.sectionTitle(pdf, "Population")
	r.keyValue(pdf, "Total Users", stats.TotalUsers)
	r.keyValue(pdf, "Total Patients", stats.TotalPatients)
	r.keyValue(pdf, "Active Patients", stats.ActivePatients)
	pdf.Ln(3)
	r.countTable(pdf, "Users By Role", stats.UsersByRole)
	r.countTable(pdf, "Age Groups", stats.PatientDemographics.AgeGroups)
	r.countTable(pdf, "Gender", stats.PatientDemographics.Gender)
}

func (r *PDFRenderer) writeEngagement(pdf *fpdf.Fpdf, engagement *analytics.GenericEngagement) {
	r.sectionTitle(pdf, "Engagement")
	r.keyValue(pdf, "Avg Session Minutes", fmt.Sprintf("%.1f", engagement.AvgSessionMinutes))
	pdf.Ln(3)

	if len(engagement.Retention.ExactDay) > 0 {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(25, 6, "Day")
		pdf.Cell(40, 6, "Returned")
		pdf.Cell(0, 6, "Rate")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range engagement.Retention.ExactDay {
			pdf.Cell(25, 5, fmt.Sprintf("%d", row.Day))
			pdf.Cell(40, 5, fmt.Sprintf("%d", row.ReturningUsers))
			pdf.Cell(0, 5, fmt.Sprintf("%.2f%%", row.RetentionRate))
			pdf.Ln(5)
		}
		pdf.Ln(3)
	}
}

func (r *PDFRenderer) writeCare(pdf *fpdf.Fpdf, doc *analytics.MetricsDocument) {
	r.sectionTitle(pdf, "Medication Adherence")
	r.keyValue(pdf, "Taken", doc.Medication.Taken)
	r.keyValue(pdf, "Missed", doc.Medication.Missed)
	r.keyValue(pdf, "Unanswered", doc.Medication.Unanswered)
	pdf.Ln(3)

	r.sectionTitle(pdf, "Tasks")
	r.keyValue(pdf, "Health Journey Tasks", doc.HealthJourney.TotalTasks)
	r.keyValue(pdf, "Health Journey Completed", doc.HealthJourney.CompletedTasks)
	r.keyValue(pdf, "Patient Tasks", doc.PatientTasks.TotalTasks)
	r.keyValue(pdf, "Patient Tasks Completed", doc.PatientTasks.CompletedTasks)
	pdf.Ln(3)

	r.sectionTitle(pdf, "Vitals")
	r.keyValue(pdf, "Manual Entries", doc.Vitals.ManualEntries)
	r.keyValue(pdf, "Device Entries", doc.Vitals.DeviceEntries)
	pdf.Ln(3)
}

func (r *PDFRenderer) writeAssessments(pdf *fpdf.Fpdf, matrix *analytics.AssessmentMatrix) {
	r.sectionTitle(pdf, "Assessments")
	r.keyValue(pdf, "Custom Completed", matrix.CustomCompleted)
	r.keyValue(pdf, "Care Plan Completed", matrix.CarePlanCompleted)
	r.keyValue(pdf, "Distinct Responses", len(matrix.Responses))
}
