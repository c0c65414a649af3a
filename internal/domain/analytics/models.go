package analytics

import (
	"time"

	"github.com/google/uuid"
)

// DocumentVersion is bumped whenever the shape of MetricsDocument changes in a
// way persisted records need to distinguish.
const DocumentVersion = 2

// FeatureCategory is a coarse grouping of tracked user actions used as the
// unit of per-feature engagement metrics.
type FeatureCategory string

const (
	CategorySession    FeatureCategory = "session"
	CategoryMedication FeatureCategory = "medication"
	CategorySymptoms   FeatureCategory = "symptoms"
	CategoryVitals     FeatureCategory = "vitals"
	CategoryCarePlan   FeatureCategory = "care_plan"
	CategoryUserTask   FeatureCategory = "user_task"
)

// FeatureCategories is the fixed set of categories the calculator iterates for
// per-feature engagement.
var FeatureCategories = []FeatureCategory{
	CategorySession,
	CategoryMedication,
	CategorySymptoms,
	CategoryVitals,
	CategoryCarePlan,
	CategoryUserTask,
}

// Retention is computed for this fixed day set, both as "returned on exactly
// day N" and "returned within (previous N, N]".
var RetentionDays = []int{1, 3, 7, 10, 15, 20, 25, 30}

// Filter scopes an aggregation run. A zero Filter is valid input to
// normalization; after normalization TenantName and the date bounds are always
// populated.
type Filter struct {
	TenantID   *uuid.UUID `json:"tenant_id,omitempty"`
	TenantName string     `json:"tenant_name,omitempty"`
	TenantCode string     `json:"tenant_code,omitempty"`
	RoleID     *int       `json:"role_id,omitempty"`
	StartDate  time.Time  `json:"start_date,omitempty"`
	EndDate    time.Time  `json:"end_date,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Tenant is a directory entry for an organization using the platform.
type Tenant struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

// Role is a directory entry for a user role ("Patient", "Caregiver", ...).
type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CountRow is a labeled count, the common shape of group-by results.
type CountRow struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DateCount is a per-day count.
type DateCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// MonthlyCount is a per-month count.
type MonthlyCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int64  `json:"count"`
}

// MonthlyTopItem ranks an item (feature category, screen) within a month.
type MonthlyTopItem struct {
	Month string `json:"month"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// RetentionRow reports how many of the registered cohort returned on (or
// within the interval ending at) Day after registration.
type RetentionRow struct {
	Day            int     `json:"day"`
	ReturningUsers int64   `json:"returning_users"`
	RetentionRate  float64 `json:"retention_rate"`
}

// RetentionReport carries both retention variants.
type RetentionReport struct {
	ExactDay []RetentionRow `json:"exact_day"`
	Interval []RetentionRow `json:"interval"`
}

// StickinessRow is the monthly DAU/MAU ratio as a percentage.
type StickinessRow struct {
	Month   string  `json:"month"`
	Percent float64 `json:"percent"`
}

// CompletionRow pairs a total with a completed count for one group.
type CompletionRow struct {
	Label     string `json:"label"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
}

// VitalsRow splits entry counts for one vital type by entry source.
type VitalsRow struct {
	VitalType string `json:"vital_type"`
	Manual    int64  `json:"manual"`
	Device    int64  `json:"device"`
}

// Demographics is the set of group-by-count breakdowns over the joined
// user/profile relation. Null source values surface as an "Unknown" row.
type Demographics struct {
	AgeGroups     []CountRow `json:"age_groups"`
	Gender        []CountRow `json:"gender"`
	Ethnicity     []CountRow `json:"ethnicity"`
	Race          []CountRow `json:"race"`
	HealthSystems []CountRow `json:"health_systems"`
	Hospitals     []CountRow `json:"hospitals"`
	Caregiver     []CountRow `json:"caregiver"`
}

// BasicStats holds registration and demographic statistics.
type BasicStats struct {
	TotalUsers            int64          `json:"total_users"`
	TotalPatients         int64          `json:"total_patients"`
	ActivePatients        int64          `json:"active_patients"`
	UsersByRole           []CountRow     `json:"users_by_role"`
	PatientDemographics   Demographics   `json:"patient_demographics"`
	RegistrationHistory   []MonthlyCount `json:"registration_history"`
	DeregistrationHistory []MonthlyCount `json:"deregistration_history"`
	ActiveAtMonthEnd      []MonthlyCount `json:"active_at_month_end"`
}

// NewBasicStats returns a BasicStats with every list initialized so renderers
// never see null.
func NewBasicStats() *BasicStats {
	return &BasicStats{
		UsersByRole: []CountRow{},
		PatientDemographics: Demographics{
			AgeGroups:     []CountRow{},
			Gender:        []CountRow{},
			Ethnicity:     []CountRow{},
			Race:          []CountRow{},
			HealthSystems: []CountRow{},
			Hospitals:     []CountRow{},
			Caregiver:     []CountRow{},
		},
		RegistrationHistory:   []MonthlyCount{},
		DeregistrationHistory: []MonthlyCount{},
		ActiveAtMonthEnd:      []MonthlyCount{},
	}
}

// GenericEngagement holds app-wide activity metrics.
type GenericEngagement struct {
	DailyActiveUsers   []DateCount      `json:"daily_active_users"`
	WeeklyActiveUsers  []DateCount      `json:"weekly_active_users"`
	MonthlyActiveUsers []MonthlyCount   `json:"monthly_active_users"`
	AvgSessionMinutes  float64          `json:"avg_session_minutes"`
	LoginFrequency     []MonthlyCount   `json:"login_frequency"`
	TopFeatures        []MonthlyTopItem `json:"top_features"`
	TopScreens         []MonthlyTopItem `json:"top_screens"`
	Retention          RetentionReport  `json:"retention"`
	Stickiness         []StickinessRow  `json:"stickiness"`
}

// NewGenericEngagement returns a GenericEngagement with empty lists.
func NewGenericEngagement() *GenericEngagement {
	return &GenericEngagement{
		DailyActiveUsers:   []DateCount{},
		WeeklyActiveUsers:  []DateCount{},
		MonthlyActiveUsers: []MonthlyCount{},
		LoginFrequency:     []MonthlyCount{},
		TopFeatures:        []MonthlyTopItem{},
		TopScreens:         []MonthlyTopItem{},
		Retention:          RetentionReport{ExactDay: []RetentionRow{}, Interval: []RetentionRow{}},
		Stickiness:         []StickinessRow{},
	}
}

// FeatureEngagement is one feature category's engagement record.
type FeatureEngagement struct {
	Category        FeatureCategory `json:"category"`
	AccessByDay     []DateCount     `json:"access_by_day"`
	EngagementRate  []CountRow      `json:"engagement_rate"` // per-user event counts
	Retention       RetentionReport `json:"retention"`
	AvgUsageMinutes float64         `json:"avg_usage_minutes"`
	DropOffPoints   []CountRow      `json:"drop_off_points"`
}

// NewFeatureEngagement returns an empty record for a category.
func NewFeatureEngagement(category FeatureCategory) FeatureEngagement {
	return FeatureEngagement{
		Category:       category,
		AccessByDay:    []DateCount{},
		EngagementRate: []CountRow{},
		Retention:      RetentionReport{ExactDay: []RetentionRow{}, Interval: []RetentionRow{}},
		DropOffPoints:  []CountRow{},
	}
}

// MedicationMatrix counts medication adherence outcomes.
type MedicationMatrix struct {
	Taken      int64 `json:"taken"`
	Missed     int64 `json:"missed"`
	Unanswered int64 `json:"unanswered"`
}

// HealthJourneyMatrix reports health-journey task completion.
type HealthJourneyMatrix struct {
	TotalTasks     int64           `json:"total_tasks"`
	CompletedTasks int64           `json:"completed_tasks"`
	ByCarePlan     []CompletionRow `json:"by_care_plan"`
	ByUser         []CompletionRow `json:"by_user"`
	ByCategory     []CompletionRow `json:"by_category"`
}

// NewHealthJourneyMatrix returns an empty matrix.
func NewHealthJourneyMatrix() *HealthJourneyMatrix {
	return &HealthJourneyMatrix{
		ByCarePlan: []CompletionRow{},
		ByUser:     []CompletionRow{},
		ByCategory: []CompletionRow{},
	}
}

// PatientTaskMatrix reports patient-task completion.
type PatientTaskMatrix struct {
	TotalTasks     int64           `json:"total_tasks"`
	CompletedTasks int64           `json:"completed_tasks"`
	ByCategory     []CompletionRow `json:"by_category"`
	ByQuarter      []CompletionRow `json:"by_quarter"`
}

// NewPatientTaskMatrix returns an empty matrix.
func NewPatientTaskMatrix() *PatientTaskMatrix {
	return &PatientTaskMatrix{ByCategory: []CompletionRow{}, ByQuarter: []CompletionRow{}}
}

// VitalsMatrix reports vitals entry counts split by entry source.
type VitalsMatrix struct {
	ManualEntries int64       `json:"manual_entries"`
	DeviceEntries int64       `json:"device_entries"`
	ByType        []VitalsRow `json:"by_type"`
}

// NewVitalsMatrix returns an empty matrix.
func NewVitalsMatrix() *VitalsMatrix {
	return &VitalsMatrix{ByType: []VitalsRow{}}
}

// Response types stored on assessment responses.
const (
	ResponseTypeMultiChoice = "Multi Choice Selection"
	ResponseTypeText        = "Text"
)

// AssessmentResponse is one distinct answer to one assessment question, with
// its occurrence count. DisplayText is filled by the calculator: option text
// for multiple-choice answers, the raw response for text answers.
type AssessmentResponse struct {
	Assessment  string `json:"assessment"`
	NodeID      string `json:"node_id"`
	Template    string `json:"template"`
	NodeTitle   string `json:"node_title"`
	Type        string `json:"type"`
	RawResponse string `json:"raw_response"`
	DisplayText string `json:"display_text"`
	Count       int64  `json:"count"`
}

// AssessmentOption maps a multiple-choice sequence number to its option text
// for one question node.
type AssessmentOption struct {
	NodeID    string `json:"node_id"`
	Template  string `json:"template"`
	NodeTitle string `json:"node_title"`
	Sequence  int    `json:"sequence"`
	Text      string `json:"text"`
}

// AssessmentMatrix reports assessment completion and response distributions.
type AssessmentMatrix struct {
	CustomCompleted   int64                `json:"custom_completed"`
	CarePlanCompleted int64                `json:"care_plan_completed"`
	Responses         []AssessmentResponse `json:"responses"`
}

// NewAssessmentMatrix returns an empty matrix.
func NewAssessmentMatrix() *AssessmentMatrix {
	return &AssessmentMatrix{Responses: []AssessmentResponse{}}
}

// MetricsDocument is the nested aggregate produced by one full calculation
// run. It is immutable once built; every section is non-nil and every list
// non-null even when a phase failed, so downstream renderers stay total.
type MetricsDocument struct {
	AnalysisCode      string               `json:"analysis_code"`
	Version           int                  `json:"version"`
	GeneratedAt       time.Time            `json:"generated_at"`
	Filter            Filter               `json:"filter"`
	BasicStats        *BasicStats          `json:"basic_stats"`
	GenericEngagement *GenericEngagement   `json:"generic_engagement"`
	FeatureEngagement []FeatureEngagement  `json:"feature_engagement"`
	Medication        *MedicationMatrix    `json:"medication"`
	HealthJourney     *HealthJourneyMatrix `json:"health_journey"`
	PatientTasks      *PatientTaskMatrix   `json:"patient_tasks"`
	Vitals            *VitalsMatrix        `json:"vitals"`
	Assessments       *AssessmentMatrix    `json:"assessments"`
}

// NewMetricsDocument returns a document with every section pre-initialized to
// its empty value.
func NewMetricsDocument(code string, filter Filter) *MetricsDocument {
	return &MetricsDocument{
		AnalysisCode:      code,
		Version:           DocumentVersion,
		GeneratedAt:       time.Now().UTC(),
		Filter:            filter,
		BasicStats:        NewBasicStats(),
		GenericEngagement: NewGenericEngagement(),
		FeatureEngagement: []FeatureEngagement{},
		Medication:        &MedicationMatrix{},
		HealthJourney:     NewHealthJourneyMatrix(),
		PatientTasks:      NewPatientTaskMatrix(),
		Vitals:            NewVitalsMatrix(),
		Assessments:       NewAssessmentMatrix(),
	}
}

// Record is the persisted outcome of one aggregation run, retrievable by
// analysis code. Records are append-only: there is no update or delete path.
type Record struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	TenantID          *uuid.UUID `json:"tenant_id,omitempty"`
	TenantName        string     `json:"tenant_name"`
	DateStr           string     `json:"date"`
	SerializedMetrics []byte     `json:"-"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
	JSONURL           string     `json:"json_url"`
	ExcelURL          string     `json:"excel_url"`
	PDFURL            string     `json:"pdf_url"`
	CanonicalURL      string     `json:"canonical_url"`
	CreatedAt         time.Time  `json:"created_at"`
}
