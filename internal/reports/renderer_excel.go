package reports

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// ExcelRenderer lays the metrics document out as a workbook, one sheet per
// document section, each table under a bold header row.
type ExcelRenderer struct{}

// NewExcelRenderer creates a new Excel renderer
func NewExcelRenderer() *ExcelRenderer {
	return &ExcelRenderer{}
}

func (r *ExcelRenderer) Format() string {
	return "excel"
}

func (r *ExcelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *ExcelRenderer) Render(doc *analytics.MetricsDocument) ([]byte, error) {
	f := excelize.NewFile()
	// Close explicitly rather than deferred: WriteTo needs the file open.

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{file: f, headerStyle: headerStyle}
	w.writeOverview(doc)
	w.writeBasicStats(doc.BasicStats)
	w.writeGenericEngagement(doc.GenericEngagement)
	w.writeFeatureEngagement(doc.FeatureEngagement)
	w.writeCareMatrices(doc)
	w.writeAssessments(doc.Assessments)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}

	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter accumulates the first error and turns later writes into no-ops,
// keeping the per-section code free of error plumbing.
type sheetWriter struct {
	file        *excelize.File
	headerStyle int
	sheet       string
	row         int
	err         error
}

func (w *sheetWriter) newSheet(name string) {
	if w.err != nil {
		return
	}
	if _, err := w.file.NewSheet(name); err != nil {
		w.err = fmt.Errorf("failed to create sheet %s: %w", name, err)
		return
	}
	w.sheet = name
	w.row = 1
}

func (w *sheetWriter) writeRow(values ...any) {
	if w.err != nil {
		return
	}
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, w.row)
		if err != nil {
			w.err = fmt.Errorf("failed to convert coordinates: %w", err)
			return
		}
		if err := w.file.SetCellValue(w.sheet, cell, value); err != nil {
			w.err = fmt.Errorf("failed to set cell %s: %w", cell, err)
			return
		}
	}
	w.row++
}

func (w *sheetWriter) writeHeader(titles ...any) {
	if w.err != nil {
		return
	}
	row := w.row
	w.writeRow(titles...)
	if w.err != nil {
		return
	}
	start, _ := excelize.CoordinatesToCellName(1, row)
	end, _ := excelize.CoordinatesToCellName(len(titles), row)
	if err := w.file.SetCellStyle(w.sheet, start, end, w.headerStyle); err != nil {
		w.err = fmt.Errorf("failed to set header style: %w", err)
	}
}

func (w *sheetWriter) skipRow() {
	w.row++
}

func (w *sheetWriter) countTable(title string, rows []analytics.CountRow) {
	w.writeHeader(title, "Count")
	for _, r := range rows {
		w.writeRow(r.Label, r.Count)
	}
	w.skipRow()
}

func (w *sheetWriter) monthlyTable(title string, rows []analytics.MonthlyCount) {
	w.writeHeader("Month", title)
	for _, r := range rows {
		w.writeRow(r.Month, r.Count)
	}
	w.skipRow()
}

func (w *sheetWriter) dateTable(title string, rows []analytics.DateCount) {
	w.writeHeader("Date", title)
	for _, r := range rows {
		w.writeRow(r.Date, r.Count)
	}
	w.skipRow()
}

func (w *sheetWriter) completionTable(title string, rows []analytics.CompletionRow) {
	w.writeHeader(title, "Total", "Completed")
	for _, r := range rows {
		w.writeRow(r.Label, r.Total, r.Completed)
	}
	w.skipRow()
}

func (w *sheetWriter) retentionTable(report analytics.RetentionReport) {
	w.writeHeader("Day", "Returned On Day", "Rate", "Returned Within Interval", "Rate")
	for i, exact := range report.ExactDay {
		var interval analytics.RetentionRow
		if i < len(report.Interval) {
			interval = report.Interval[i]
		}
		w.writeRow(exact.Day, exact.ReturningUsers, exact.RetentionRate,
			interval.ReturningUsers, interval.RetentionRate)
	}
	w.skipRow()
}

func (w *sheetWriter) writeOverview(doc *analytics.MetricsDocument) {
	w.newSheet("Overview")
	w.writeHeader("Field", "Value")
	w.writeRow("Analysis Code", doc.AnalysisCode)
	w.writeRow("Generated At", doc.GeneratedAt.Format("2006-01-02 15:04:05"))
	w.writeRow("Tenant", doc.Filter.TenantName)
	w.writeRow("Start Date", doc.Filter.StartDate.Format("2006-01-02"))
	w.writeRow("End Date", doc.Filter.EndDate.Format("2006-01-02"))
}

func (w *sheetWriter) writeBasicStats(stats *analytics.BasicStats) {
	w.newSheet("Basic Stats")
	w.writeHeader("Metric", "Value")
	w.writeRow("Total Users", stats.TotalUsers)
	w.writeRow("Total Patients", stats.TotalPatients)
	w.writeRow("Active Patients", stats.ActivePatients)
	w.skipRow()

	w.countTable("Users By Role", stats.UsersByRole)
	w.countTable("Age Group", stats.PatientDemographics.AgeGroups)
	w.countTable("Gender", stats.PatientDemographics.Gender)
	w.countTable("Ethnicity", stats.PatientDemographics.Ethnicity)
	w.countTable("Race", stats.PatientDemographics.Race)
	w.countTable("Health System", stats.PatientDemographics.HealthSystems)
	w.countTable("Hospital", stats.PatientDemographics.Hospitals)
	w.countTable("Caregiver", stats.PatientDemographics.Caregiver)
	w.monthlyTable("Registrations", stats.RegistrationHistory)
	w.monthlyTable("Deregistrations", stats.DeregistrationHistory)
	w.monthlyTable("Active At Month End", stats.ActiveAtMonthEnd)
}

func (w *sheetWriter) writeGenericEngagement(engagement *analytics.GenericEngagement) {
	w.newSheet("Engagement")
	w.writeHeader("Metric", "Value")
	w.writeRow("Avg Session Minutes", engagement.AvgSessionMinutes)
	w.skipRow()

	w.dateTable("Daily Active Users", engagement.DailyActiveUsers)
	w.dateTable("Weekly Active Users", engagement.WeeklyActiveUsers)
	w.monthlyTable("Monthly Active Users", engagement.MonthlyActiveUsers)
	w.monthlyTable("Logins", engagement.LoginFrequency)

	w.writeHeader("Month", "Feature", "Count")
	for _, item := range engagement.TopFeatures {
		w.writeRow(item.Month, item.Name, item.Count)
	}
	w.skipRow()

	w.writeHeader("Month", "Screen", "Count")
	for _, item := range engagement.TopScreens {
		w.writeRow(item.Month, item.Name, item.Count)
	}
	w.skipRow()

	w.retentionTable(engagement.Retention)

	w.writeHeader("Month", "Stickiness %")
	for _, row := range engagement.Stickiness {
		w.writeRow(row.Month, row.Percent)
	}
}

func (w *sheetWriter) writeFeatureEngagement(features []analytics.FeatureEngagement) {
	w.newSheet("Features")
	for _, feature := range features {
		w.writeHeader("Feature", string(feature.Category))
		w.writeRow("Avg Usage Minutes", feature.AvgUsageMinutes)
		w.skipRow()
		w.dateTable("Access Count", feature.AccessByDay)
		w.countTable("Events Per User", feature.EngagementRate)
		w.retentionTable(feature.Retention)
		w.countTable("Drop-Off Point", feature.DropOffPoints)
	}
}

func (w *sheetWriter) writeCareMatrices(doc *analytics.MetricsDocument) {
	w.newSheet("Care")
	w.writeHeader("Medication", "Count")
	w.writeRow("Taken", doc.Medication.Taken)
	w.writeRow("Missed", doc.Medication.Missed)
	w.writeRow("Unanswered", doc.Medication.Unanswered)
	w.skipRow()

	w.writeHeader("Health Journey", "Count")
	w.writeRow("Total Tasks", doc.HealthJourney.TotalTasks)
	w.writeRow("Completed Tasks", doc.HealthJourney.CompletedTasks)
	w.skipRow()
	w.completionTable("Care Plan", doc.HealthJourney.ByCarePlan)
	w.completionTable("User", doc.HealthJourney.ByUser)
	w.completionTable("Category", doc.HealthJourney.ByCategory)

	w.writeHeader("Patient Tasks", "Count")
	w.writeRow("Total Tasks", doc.PatientTasks.TotalTasks)
	w.writeRow("Completed Tasks", doc.PatientTasks.CompletedTasks)
	w.skipRow()
	w.completionTable("Category", doc.PatientTasks.ByCategory)
	w.completionTable("Quarter", doc.PatientTasks.ByQuarter)

	w.writeHeader("Vitals", "Manual", "Device")
	w.writeRow("All Types", doc.Vitals.ManualEntries, doc.Vitals.DeviceEntries)
	for _, row := range doc.Vitals.ByType {
		w.writeRow(row.VitalType, row.Manual, row.Device)
	}
}

func (w *sheetWriter) writeAssessments(matrix *analytics.AssessmentMatrix) {
	w.newSheet("Assessments")
	w.writeHeader("Metric", "Value")
	w.writeRow("Custom Completed", matrix.CustomCompleted)
	w.writeRow("Care Plan Completed", matrix.CarePlanCompleted)
	w.skipRow()

	w.writeHeader("Assessment", "Question", "Response", "Count")
	for _, resp := range matrix.Responses {
		w.writeRow(resp.Assessment, resp.NodeTitle, resp.DisplayText, resp.Count)
	}
}
