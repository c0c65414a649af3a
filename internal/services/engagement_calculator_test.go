package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

var errQuery = errors.New("query failed")

// The fake repositories return fixed values so assembled documents are
// predictable; any method named in fail returns errQuery instead.

type fakeStatsRepo struct {
	fail map[string]bool
}

func (r *fakeStatsRepo) count(name string, v int64) (int64, error) {
	if r.fail[name] {
		return 0, errQuery
	}
	return v, nil
}

func (r *fakeStatsRepo) rows(name string, v []analytics.CountRow) ([]analytics.CountRow, error) {
	if r.fail[name] {
		return nil, errQuery
	}
	return v, nil
}

func (r *fakeStatsRepo) TotalUsers(context.Context, analytics.Filter) (int64, error) {
	return r.count("TotalUsers", 120)
}
func (r *fakeStatsRepo) TotalPatients(context.Context, analytics.Filter) (int64, error) {
	return r.count("TotalPatients", 80)
}
func (r *fakeStatsRepo) ActivePatients(context.Context, analytics.Filter) (int64, error) {
	return r.count("ActivePatients", 60)
}
func (r *fakeStatsRepo) UsersByRole(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("UsersByRole", []analytics.CountRow{{Label: "Patient", Count: 80}, {Label: "Caregiver", Count: 40}})
}
func (r *fakeStatsRepo) AgeGroups(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("AgeGroups", []analytics.CountRow{{Label: "19-30", Count: 25}})
}
func (r *fakeStatsRepo) GenderBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("GenderBreakdown", []analytics.CountRow{{Label: "Female", Count: 50}})
}
func (r *fakeStatsRepo) EthnicityBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("EthnicityBreakdown", []analytics.CountRow{{Label: "Unknown", Count: 120}})
}
func (r *fakeStatsRepo) RaceBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("RaceBreakdown", []analytics.CountRow{{Label: "Unknown", Count: 120}})
}
func (r *fakeStatsRepo) HealthSystemBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("HealthSystemBreakdown", []analytics.CountRow{{Label: "General", Count: 120}})
}
func (r *fakeStatsRepo) HospitalBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("HospitalBreakdown", []analytics.CountRow{{Label: "Central", Count: 120}})
}
func (r *fakeStatsRepo) CaregiverBreakdown(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return r.rows("CaregiverBreakdown", []analytics.CountRow{{Label: "Yes", Count: 30}})
}

type fakeEngagementRepo struct {
	fail       map[string]bool
	registered int64
}

func (r *fakeEngagementRepo) RegistrationsByMonth(context.Context, analytics.Filter) ([]analytics.MonthlyCount, error) {
	if r.fail["RegistrationsByMonth"] {
		return nil, errQuery
	}
	return []analytics.MonthlyCount{{Month: "2026-07", Count: 12}}, nil
}
func (r *fakeEngagementRepo) DeregistrationsByMonth(context.Context, analytics.Filter) ([]analytics.MonthlyCount, error) {
	return []analytics.MonthlyCount{{Month: "2026-07", Count: 2}}, nil
}
func (r *fakeEngagementRepo) ActiveAtMonthEnd(context.Context, analytics.Filter) ([]analytics.MonthlyCount, error) {
	return []analytics.MonthlyCount{{Month: "2026-07", Count: 100}}, nil
}
func (r *fakeEngagementRepo) DailyActiveUsers(context.Context, analytics.Filter) ([]analytics.DateCount, error) {
	if r.fail["DailyActiveUsers"] {
		return nil, errQuery
	}
	return []analytics.DateCount{{Date: "2026-08-30", Count: 20}}, nil
}
func (r *fakeEngagementRepo) WeeklyActiveUsers(context.Context, analytics.Filter) ([]analytics.DateCount, error) {
	return []analytics.DateCount{{Date: "2026-08-24", Count: 45}}, nil
}
func (r *fakeEngagementRepo) MonthlyActiveUsers(context.Context, analytics.Filter) ([]analytics.MonthlyCount, error) {
	return []analytics.MonthlyCount{{Month: "2026-08", Count: 70}}, nil
}
func (r *fakeEngagementRepo) AverageSessionMinutes(context.Context, analytics.Filter) (float64, error) {
	return 12.5, nil
}
func (r *fakeEngagementRepo) LoginFrequency(context.Context, analytics.Filter) ([]analytics.MonthlyCount, error) {
	return []analytics.MonthlyCount{{Month: "2026-08", Count: 300}}, nil
}
func (r *fakeEngagementRepo) TopFeatures(context.Context, analytics.Filter, int) ([]analytics.MonthlyTopItem, error) {
	return []analytics.MonthlyTopItem{{Month: "2026-08", Name: "medication", Count: 150}}, nil
}
func (r *fakeEngagementRepo) TopScreens(context.Context, analytics.Filter, int) ([]analytics.MonthlyTopItem, error) {
	return []analytics.MonthlyTopItem{{Month: "2026-08", Name: "home", Count: 500}}, nil
}
func (r *fakeEngagementRepo) RegisteredUserCount(context.Context, analytics.Filter) (int64, error) {
	if r.fail["RegisteredUserCount"] {
		return 0, errQuery
	}
	return r.registered, nil
}
func (r *fakeEngagementRepo) ReturningOnDay(_ context.Context, _ analytics.Filter, day int) (int64, error) {
	return int64(day), nil
}
func (r *fakeEngagementRepo) ReturningWithinInterval(_ context.Context, _ analytics.Filter, _, day int) (int64, error) {
	return int64(day * 2), nil
}
func (r *fakeEngagementRepo) StickinessByMonth(context.Context, analytics.Filter) ([]analytics.StickinessRow, error) {
	return []analytics.StickinessRow{{Month: "2026-08", Percent: 28.5}}, nil
}
func (r *fakeEngagementRepo) FeatureAccessByDay(context.Context, analytics.Filter, analytics.FeatureCategory) ([]analytics.DateCount, error) {
	return []analytics.DateCount{{Date: "2026-08-30", Count: 15}}, nil
}
func (r *fakeEngagementRepo) FeatureEngagementRate(context.Context, analytics.Filter, analytics.FeatureCategory) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "1-5", Count: 40}}, nil
}
func (r *fakeEngagementRepo) FeatureReturningOnDay(_ context.Context, _ analytics.Filter, _ analytics.FeatureCategory, day int) (int64, error) {
	return int64(day + 1), nil
}
func (r *fakeEngagementRepo) FeatureReturningWithinInterval(_ context.Context, _ analytics.Filter, _ analytics.FeatureCategory, _, day int) (int64, error) {
	return int64(day + 2), nil
}
func (r *fakeEngagementRepo) FeatureAvgUsageMinutes(context.Context, analytics.Filter, analytics.FeatureCategory) (float64, error) {
	return 4.2, nil
}
func (r *fakeEngagementRepo) FeatureDropOffPoints(context.Context, analytics.Filter, analytics.FeatureCategory, int) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "screen_x", Count: 9}}, nil
}

type fakeCareRepo struct {
	fail map[string]bool
}

func (r *fakeCareRepo) MedicationAdherenceCounts(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	if r.fail["MedicationAdherenceCounts"] {
		return nil, errQuery
	}
	return []analytics.CountRow{{Label: "taken", Count: 5}, {Label: "missed", Count: 3}}, nil
}
func (r *fakeCareRepo) HealthJourneyTotalTasks(context.Context, analytics.Filter) (int64, error) {
	return 40, nil
}
func (r *fakeCareRepo) HealthJourneyCompletedTasks(context.Context, analytics.Filter) (int64, error) {
	return 25, nil
}
func (r *fakeCareRepo) HealthJourneyTasksByCarePlan(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "PlanA", Count: 30}, {Label: "PlanB", Count: 10}}, nil
}
func (r *fakeCareRepo) HealthJourneyCompletedByCarePlan(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "PlanA", Count: 20}}, nil
}
func (r *fakeCareRepo) HealthJourneyTasksByUser(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "u1", Count: 40}}, nil
}
func (r *fakeCareRepo) HealthJourneyCompletedByUser(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "u1", Count: 25}}, nil
}
func (r *fakeCareRepo) HealthJourneyTasksByCategory(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "exercise", Count: 22}, {Label: "diet", Count: 18}}, nil
}
func (r *fakeCareRepo) HealthJourneyCompletedByCategory(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "exercise", Count: 15}}, nil
}
func (r *fakeCareRepo) PatientTotalTasks(context.Context, analytics.Filter) (int64, error) {
	return 12, nil
}
func (r *fakeCareRepo) PatientCompletedTasks(context.Context, analytics.Filter) (int64, error) {
	return 9, nil
}
func (r *fakeCareRepo) PatientTasksByCategory(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "appointments", Count: 12}}, nil
}
func (r *fakeCareRepo) PatientCompletedByCategory(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "appointments", Count: 9}}, nil
}
func (r *fakeCareRepo) PatientTasksByQuarter(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "2026-Q3", Count: 12}}, nil
}
func (r *fakeCareRepo) PatientCompletedByQuarter(context.Context, analytics.Filter) ([]analytics.CountRow, error) {
	return []analytics.CountRow{{Label: "2026-Q3", Count: 9}}, nil
}
func (r *fakeCareRepo) VitalsEntryCounts(context.Context, analytics.Filter) ([]analytics.VitalsRow, error) {
	return []analytics.VitalsRow{
		{VitalType: "blood_pressure", Manual: 4, Device: 6},
		{VitalType: "weight", Manual: 2, Device: 0},
	}, nil
}
func (r *fakeCareRepo) CustomAssessmentsCompleted(context.Context, analytics.Filter) (int64, error) {
	return 3, nil
}
func (r *fakeCareRepo) CarePlanAssessmentsCompleted(context.Context, analytics.Filter) (int64, error) {
	return 2, nil
}
func (r *fakeCareRepo) AssessmentResponses(context.Context, analytics.Filter) ([]analytics.AssessmentResponse, error) {
	return []analytics.AssessmentResponse{
		{
			Assessment:  "intake",
			NodeID:      "n1",
			Template:    "t1",
			NodeTitle:   "Pain today?",
			Type:        analytics.ResponseTypeMultiChoice,
			RawResponse: "[1,2]",
			Count:       6,
		},
		{
			Assessment:  "intake",
			NodeID:      "n2",
			Template:    "t1",
			NodeTitle:   "Anything else?",
			Type:        analytics.ResponseTypeText,
			RawResponse: "Feeling fine",
			Count:       2,
		},
	}, nil
}
func (r *fakeCareRepo) AssessmentOptions(context.Context) ([]analytics.AssessmentOption, error) {
	return []analytics.AssessmentOption{
		{NodeID: "n1", Template: "t1", NodeTitle: "Pain today?", Sequence: 1, Text: "Yes"},
	}, nil
}

func newTestCalculator(stats *fakeStatsRepo, engagement *fakeEngagementRepo, care *fakeCareRepo) *EngagementCalculator {
	return NewEngagementCalculator(stats, engagement, care, 5*time.Second, 10, zap.NewNop())
}

func TestCalculateAssemblesDocument(t *testing.T) {
	calc := newTestCalculator(
		&fakeStatsRepo{},
		&fakeEngagementRepo{registered: 200},
		&fakeCareRepo{},
	)

	doc := calc.Calculate(context.Background(), "2026-08-31-1", analytics.Filter{TenantName: "mercy"})
	require.NotNil(t, doc)
	assert.Equal(t, "2026-08-31-1", doc.AnalysisCode)
	assert.Equal(t, "mercy", doc.Filter.TenantName)

	assert.Equal(t, int64(120), doc.BasicStats.TotalUsers)
	assert.Equal(t, int64(80), doc.BasicStats.TotalPatients)
	assert.Equal(t, int64(60), doc.BasicStats.ActivePatients)
	assert.Len(t, doc.BasicStats.UsersByRole, 2)

	assert.Equal(t, 12.5, doc.GenericEngagement.AvgSessionMinutes)
	require.Len(t, doc.GenericEngagement.Retention.ExactDay, len(analytics.RetentionDays))
	first := doc.GenericEngagement.Retention.ExactDay[0]
	assert.Equal(t, 1, first.Day)
	assert.Equal(t, int64(1), first.ReturningUsers)
	assert.InDelta(t, 0.5, first.RetentionRate, 0.001) // 1 of 200
	interval := doc.GenericEngagement.Retention.Interval[1]
	assert.Equal(t, 3, interval.Day)
	assert.Equal(t, int64(6), interval.ReturningUsers)
	assert.InDelta(t, 3.0, interval.RetentionRate, 0.001)

	require.Len(t, doc.FeatureEngagement, len(analytics.FeatureCategories))
	for i, category := range analytics.FeatureCategories {
		assert.Equal(t, category, doc.FeatureEngagement[i].Category)
		assert.Equal(t, 4.2, doc.FeatureEngagement[i].AvgUsageMinutes)
	}

	assert.Equal(t, int64(5), doc.Medication.Taken)
	assert.Equal(t, int64(3), doc.Medication.Missed)
	assert.Equal(t, int64(0), doc.Medication.Unanswered)

	require.Len(t, doc.HealthJourney.ByCategory, 2)
	assert.Equal(t, analytics.CompletionRow{Label: "exercise", Total: 22, Completed: 15}, doc.HealthJourney.ByCategory[0])
	assert.Equal(t, analytics.CompletionRow{Label: "diet", Total: 18, Completed: 0}, doc.HealthJourney.ByCategory[1])

	assert.Equal(t, int64(6), doc.Vitals.ManualEntries)
	assert.Equal(t, int64(6), doc.Vitals.DeviceEntries)

	require.Len(t, doc.Assessments.Responses, 2)
	assert.Equal(t, "Yes, Unknown Option 2", doc.Assessments.Responses[0].DisplayText)
	assert.Equal(t, "Feeling fine", doc.Assessments.Responses[1].DisplayText)
}

func TestCalculateDegradesFailedQueriesOnly(t *testing.T) {
	calc := newTestCalculator(
		&fakeStatsRepo{fail: map[string]bool{"TotalUsers": true}},
		&fakeEngagementRepo{registered: 200, fail: map[string]bool{"DailyActiveUsers": true}},
		&fakeCareRepo{fail: map[string]bool{"MedicationAdherenceCounts": true}},
	)

	doc := calc.Calculate(context.Background(), "2026-08-31-2", analytics.Filter{})
	require.NotNil(t, doc)

	// Failed slots get the empty value.
	assert.Equal(t, int64(0), doc.BasicStats.TotalUsers)
	assert.NotNil(t, doc.GenericEngagement.DailyActiveUsers)
	assert.Empty(t, doc.GenericEngagement.DailyActiveUsers)
	assert.Equal(t, int64(0), doc.Medication.Taken)

	// Siblings are unaffected.
	assert.Equal(t, int64(80), doc.BasicStats.TotalPatients)
	assert.Len(t, doc.GenericEngagement.WeeklyActiveUsers, 1)
	assert.Equal(t, int64(40), doc.HealthJourney.TotalTasks)
}

func TestCalculateZeroRegisteredUsersYieldsZeroRates(t *testing.T) {
	calc := newTestCalculator(
		&fakeStatsRepo{},
		&fakeEngagementRepo{registered: 0},
		&fakeCareRepo{},
	)

	doc := calc.Calculate(context.Background(), "2026-08-31-3", analytics.Filter{})
	for _, row := range doc.GenericEngagement.Retention.ExactDay {
		assert.Equal(t, 0.0, row.RetentionRate)
	}
}

func TestMergeCompletion(t *testing.T) {
	out := mergeCompletion(
		[]analytics.CountRow{{Label: "a", Count: 10}, {Label: "b", Count: 4}},
		[]analytics.CountRow{{Label: "a", Count: 7}},
	)
	assert.Equal(t, []analytics.CompletionRow{
		{Label: "a", Total: 10, Completed: 7},
		{Label: "b", Total: 4, Completed: 0},
	}, out)
}

func TestCountByLabel(t *testing.T) {
	rows := []analytics.CountRow{{Label: "taken", Count: 5}}
	assert.Equal(t, int64(5), countByLabel(rows, "taken"))
	assert.Equal(t, int64(0), countByLabel(rows, "missed"))
}
