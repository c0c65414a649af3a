package analytics

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// StatsRepository answers population-count and demographic queries. Every
// query is a pure read bounded by the filter's date range, with tenant and
// role predicates applied only when present on the filter.
type StatsRepository interface {
	TotalUsers(ctx context.Context, f Filter) (int64, error)
	TotalPatients(ctx context.Context, f Filter) (int64, error)
	ActivePatients(ctx context.Context, f Filter) (int64, error)
	UsersByRole(ctx context.Context, f Filter) ([]CountRow, error)
	AgeGroups(ctx context.Context, f Filter) ([]CountRow, error)
	GenderBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
	EthnicityBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
	RaceBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
	HealthSystemBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
	HospitalBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
	CaregiverBreakdown(ctx context.Context, f Filter) ([]CountRow, error)
}

// EngagementRepository answers activity, session, and retention queries.
type EngagementRepository interface {
	RegistrationsByMonth(ctx context.Context, f Filter) ([]MonthlyCount, error)
	DeregistrationsByMonth(ctx context.Context, f Filter) ([]MonthlyCount, error)
	ActiveAtMonthEnd(ctx context.Context, f Filter) ([]MonthlyCount, error)
	DailyActiveUsers(ctx context.Context, f Filter) ([]DateCount, error)
	WeeklyActiveUsers(ctx context.Context, f Filter) ([]DateCount, error)
	MonthlyActiveUsers(ctx context.Context, f Filter) ([]MonthlyCount, error)
	AverageSessionMinutes(ctx context.Context, f Filter) (float64, error)
	LoginFrequency(ctx context.Context, f Filter) ([]MonthlyCount, error)
	TopFeatures(ctx context.Context, f Filter, n int) ([]MonthlyTopItem, error)
	TopScreens(ctx context.Context, f Filter, n int) ([]MonthlyTopItem, error)
	RegisteredUserCount(ctx context.Context, f Filter) (int64, error)
	ReturningOnDay(ctx context.Context, f Filter, day int) (int64, error)
	ReturningWithinInterval(ctx context.Context, f Filter, afterDay, day int) (int64, error)
	StickinessByMonth(ctx context.Context, f Filter) ([]StickinessRow, error)

	FeatureAccessByDay(ctx context.Context, f Filter, category FeatureCategory) ([]DateCount, error)
	FeatureEngagementRate(ctx context.Context, f Filter, category FeatureCategory) ([]CountRow, error)
	FeatureReturningOnDay(ctx context.Context, f Filter, category FeatureCategory, day int) (int64, error)
	FeatureReturningWithinInterval(ctx context.Context, f Filter, category FeatureCategory, afterDay, day int) (int64, error)
	FeatureAvgUsageMinutes(ctx context.Context, f Filter, category FeatureCategory) (float64, error)
	FeatureDropOffPoints(ctx context.Context, f Filter, category FeatureCategory, n int) ([]CountRow, error)
}

// CareRepository answers the domain-matrix queries: medication adherence,
// task completion, vitals entries, and assessments.
type CareRepository interface {
	MedicationAdherenceCounts(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyTotalTasks(ctx context.Context, f Filter) (int64, error)
	HealthJourneyCompletedTasks(ctx context.Context, f Filter) (int64, error)
	HealthJourneyTasksByCarePlan(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyCompletedByCarePlan(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyTasksByUser(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyCompletedByUser(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyTasksByCategory(ctx context.Context, f Filter) ([]CountRow, error)
	HealthJourneyCompletedByCategory(ctx context.Context, f Filter) ([]CountRow, error)
	PatientTotalTasks(ctx context.Context, f Filter) (int64, error)
	PatientCompletedTasks(ctx context.Context, f Filter) (int64, error)
	PatientTasksByCategory(ctx context.Context, f Filter) ([]CountRow, error)
	PatientCompletedByCategory(ctx context.Context, f Filter) ([]CountRow, error)
	PatientTasksByQuarter(ctx context.Context, f Filter) ([]CountRow, error)
	PatientCompletedByQuarter(ctx context.Context, f Filter) ([]CountRow, error)
	VitalsEntryCounts(ctx context.Context, f Filter) ([]VitalsRow, error)
	CustomAssessmentsCompleted(ctx context.Context, f Filter) (int64, error)
	CarePlanAssessmentsCompleted(ctx context.Context, f Filter) (int64, error)
	AssessmentResponses(ctx context.Context, f Filter) ([]AssessmentResponse, error)
	AssessmentOptions(ctx context.Context) ([]AssessmentOption, error)
}

// DirectoryRepository resolves tenants and roles.
type DirectoryRepository interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// AnalysisRepository persists analysis records. Insert is append-only;
// CountCodesWithPrefix backs analysis-code generation.
type AnalysisRepository interface {
	Insert(ctx context.Context, record *Record) error
	GetByCode(ctx context.Context, code string) (*Record, error)
	CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error)
}

// BlobStore persists rendered report files under keys derived from the
// analysis code and format.
type BlobStore interface {
	Upload(ctx context.Context, key string, content []byte) (string, error)
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, error)
}

// Renderer produces one output format from a metrics document.
type Renderer interface {
	Format() string
	ContentType() string
	Render(doc *MetricsDocument) ([]byte, error)
}

// ReportGenerator renders and stores every configured format for a completed
// run. Failures are logged by the implementation and reflected as missing
// entries in the returned format→URL map, never as an error that aborts the
// run.
type ReportGenerator interface {
	Generate(ctx context.Context, code string, doc *MetricsDocument) map[string]string
}
