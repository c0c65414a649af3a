package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// queryResult is one fan-out slot: the metric value together with the error
// that produced it, so "zero" and "the query failed" stay distinguishable
// until the document is assembled.
type queryResult[T any] struct {
	value T
	err   error
}

// EngagementCalculator orchestrates the aggregation phases. Each phase fans
// its metric queries out concurrently, waits for the whole batch, and joins
// results into one section of the metrics document. A failed or timed-out
// query degrades its own slot to the documented empty value; a panicking
// phase degrades its whole section. Nothing aborts sibling work.
type EngagementCalculator struct {
	stats        analytics.StatsRepository
	engagement   analytics.EngagementRepository
	care         analytics.CareRepository
	logger       *zap.Logger
	queryTimeout time.Duration
	topN         int
}

// NewEngagementCalculator creates a new engagement calculator
func NewEngagementCalculator(
	stats analytics.StatsRepository,
	engagement analytics.EngagementRepository,
	care analytics.CareRepository,
	queryTimeout time.Duration,
	topN int,
	logger *zap.Logger,
) *EngagementCalculator {
	return &EngagementCalculator{
		stats:        stats,
		engagement:   engagement,
		care:         care,
		logger:       logger,
		queryTimeout: queryTimeout,
		topN:         topN,
	}
}

// Calculate runs every aggregation phase for an already-normalized filter and
// returns the assembled document. Phases run sequentially; queries within a
// phase run concurrently.
func (c *EngagementCalculator) Calculate(ctx context.Context, code string, f analytics.Filter) *analytics.MetricsDocument {
	doc := analytics.NewMetricsDocument(code, f)

	c.phase("basic_stats", func() { doc.BasicStats = c.CalculateBasicStats(ctx, f) })
	c.phase("generic_engagement", func() { doc.GenericEngagement = c.CalculateGenericEngagement(ctx, f) })
	c.phase("feature_engagement", func() {
		for _, category := range analytics.FeatureCategories {
			doc.FeatureEngagement = append(doc.FeatureEngagement, c.CalculateFeatureEngagement(ctx, f, category))
		}
	})
	c.phase("medication", func() { doc.Medication = c.calcMedication(ctx, f) })
	c.phase("health_journey", func() { doc.HealthJourney = c.calcHealthJourney(ctx, f) })
	c.phase("patient_tasks", func() { doc.PatientTasks = c.calcPatientTasks(ctx, f) })
	c.phase("vitals", func() { doc.Vitals = c.calcVitals(ctx, f) })
	c.phase("assessments", func() { doc.Assessments = c.calcAssessments(ctx, f) })

	return doc
}

// phase isolates one aggregation phase: a panic is logged and leaves the
// section at its pre-initialized empty value.
func (c *EngagementCalculator) phase(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("aggregation phase failed",
				zap.String("phase", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

// spawn runs one metric query on its own goroutine under the per-query
// timeout.
func (c *EngagementCalculator) spawn(ctx context.Context, wg *sync.WaitGroup, fn func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("metric query panicked", zap.Any("panic", r))
			}
		}()
		qctx := ctx
		if c.queryTimeout > 0 {
			var cancel context.CancelFunc
			qctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
			defer cancel()
		}
		fn(qctx)
	}()
}

// unwrap helpers log a failed slot with the query identity and substitute the
// documented empty value.

func unwrapCount(logger *zap.Logger, name string, r queryResult[int64]) int64 {
	if r.err != nil {
		logger.Warn("metric query failed", zap.String("metric", name), zap.Error(r.err))
		return 0
	}
	return r.value
}

func unwrapFloat(logger *zap.Logger, name string, r queryResult[float64]) float64 {
	if r.err != nil {
		logger.Warn("metric query failed", zap.String("metric", name), zap.Error(r.err))
		return 0.0
	}
	return r.value
}

func unwrapRows[T any](logger *zap.Logger, name string, r queryResult[[]T]) []T {
	if r.err != nil {
		logger.Warn("metric query failed", zap.String("metric", name), zap.Error(r.err))
		return []T{}
	}
	if r.value == nil {
		return []T{}
	}
	return r.value
}

// CalculateBasicStats runs the registration/demographics phase.
func (c *EngagementCalculator) CalculateBasicStats(ctx context.Context, f analytics.Filter) *analytics.BasicStats {
	var (
		totalUsers     queryResult[int64]
		totalPatients  queryResult[int64]
		activePatients queryResult[int64]
		byRole         queryResult[[]analytics.CountRow]
		ageGroups      queryResult[[]analytics.CountRow]
		gender         queryResult[[]analytics.CountRow]
		ethnicity      queryResult[[]analytics.CountRow]
		race           queryResult[[]analytics.CountRow]
		healthSystems  queryResult[[]analytics.CountRow]
		hospitals      queryResult[[]analytics.CountRow]
		caregiver      queryResult[[]analytics.CountRow]
		registrations  queryResult[[]analytics.MonthlyCount]
		deregistered   queryResult[[]analytics.MonthlyCount]
		activeMonthEnd queryResult[[]analytics.MonthlyCount]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { totalUsers.value, totalUsers.err = c.stats.TotalUsers(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { totalPatients.value, totalPatients.err = c.stats.TotalPatients(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { activePatients.value, activePatients.err = c.stats.ActivePatients(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byRole.value, byRole.err = c.stats.UsersByRole(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { ageGroups.value, ageGroups.err = c.stats.AgeGroups(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { gender.value, gender.err = c.stats.GenderBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { ethnicity.value, ethnicity.err = c.stats.EthnicityBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { race.value, race.err = c.stats.RaceBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { healthSystems.value, healthSystems.err = c.stats.HealthSystemBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { hospitals.value, hospitals.err = c.stats.HospitalBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { caregiver.value, caregiver.err = c.stats.CaregiverBreakdown(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) {
		registrations.value, registrations.err = c.engagement.RegistrationsByMonth(qctx, f)
	})
	c.spawn(ctx, &wg, func(qctx context.Context) {
		deregistered.value, deregistered.err = c.engagement.DeregistrationsByMonth(qctx, f)
	})
	c.spawn(ctx, &wg, func(qctx context.Context) {
		activeMonthEnd.value, activeMonthEnd.err = c.engagement.ActiveAtMonthEnd(qctx, f)
	})
	wg.Wait()

	return &analytics.BasicStats{
		TotalUsers:     unwrapCount(c.logger, "total_users", totalUsers),
		TotalPatients:  unwrapCount(c.logger, "total_patients", totalPatients),
		ActivePatients: unwrapCount(c.logger, "active_patients", activePatients),
		UsersByRole:    unwrapRows(c.logger, "users_by_role", byRole),
		PatientDemographics: analytics.Demographics{
			AgeGroups:     unwrapRows(c.logger, "age_groups", ageGroups),
			Gender:        unwrapRows(c.logger, "gender", gender),
			Ethnicity:     unwrapRows(c.logger, "ethnicity", ethnicity),
			Race:          unwrapRows(c.logger, "race", race),
			HealthSystems: unwrapRows(c.logger, "health_systems", healthSystems),
			Hospitals:     unwrapRows(c.logger, "hospitals", hospitals),
			Caregiver:     unwrapRows(c.logger, "caregiver", caregiver),
		},
		RegistrationHistory:   unwrapRows(c.logger, "registration_history", registrations),
		DeregistrationHistory: unwrapRows(c.logger, "deregistration_history", deregistered),
		ActiveAtMonthEnd:      unwrapRows(c.logger, "active_at_month_end", activeMonthEnd),
	}
}

// CalculateGenericEngagement runs the app-wide activity phase.
func (c *EngagementCalculator) CalculateGenericEngagement(ctx context.Context, f analytics.Filter) *analytics.GenericEngagement {
	var (
		dau        queryResult[[]analytics.DateCount]
		wau        queryResult[[]analytics.DateCount]
		mau        queryResult[[]analytics.MonthlyCount]
		avgSession queryResult[float64]
		logins     queryResult[[]analytics.MonthlyCount]
		features   queryResult[[]analytics.MonthlyTopItem]
		screens    queryResult[[]analytics.MonthlyTopItem]
		stickiness queryResult[[]analytics.StickinessRow]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { dau.value, dau.err = c.engagement.DailyActiveUsers(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { wau.value, wau.err = c.engagement.WeeklyActiveUsers(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { mau.value, mau.err = c.engagement.MonthlyActiveUsers(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { avgSession.value, avgSession.err = c.engagement.AverageSessionMinutes(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { logins.value, logins.err = c.engagement.LoginFrequency(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { features.value, features.err = c.engagement.TopFeatures(qctx, f, c.topN) })
	c.spawn(ctx, &wg, func(qctx context.Context) { screens.value, screens.err = c.engagement.TopScreens(qctx, f, c.topN) })
	c.spawn(ctx, &wg, func(qctx context.Context) { stickiness.value, stickiness.err = c.engagement.StickinessByMonth(qctx, f) })
	retention := c.retentionReport(ctx, f, "")
	wg.Wait()

	return &analytics.GenericEngagement{
		DailyActiveUsers:   unwrapRows(c.logger, "daily_active_users", dau),
		WeeklyActiveUsers:  unwrapRows(c.logger, "weekly_active_users", wau),
		MonthlyActiveUsers: unwrapRows(c.logger, "monthly_active_users", mau),
		AvgSessionMinutes:  unwrapFloat(c.logger, "avg_session_minutes", avgSession),
		LoginFrequency:     unwrapRows(c.logger, "login_frequency", logins),
		TopFeatures:        unwrapRows(c.logger, "top_features", features),
		TopScreens:         unwrapRows(c.logger, "top_screens", screens),
		Retention:          retention,
		Stickiness:         unwrapRows(c.logger, "stickiness", stickiness),
	}
}

// retentionReport fans out the fixed retention day set, both variants, plus
// the registered-user denominator. Result positions follow the day set, so
// rows stay ordered regardless of completion order. An empty category scopes
// to all activity.
func (c *EngagementCalculator) retentionReport(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory) analytics.RetentionReport {
	days := analytics.RetentionDays
	exact := make([]queryResult[int64], len(days))
	interval := make([]queryResult[int64], len(days))
	var registered queryResult[int64]

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) {
		registered.value, registered.err = c.engagement.RegisteredUserCount(qctx, f)
	})
	for i, day := range days {
		i, day := i, day
		afterDay := 0
		if i > 0 {
			afterDay = days[i-1]
		}
		if category == "" {
			c.spawn(ctx, &wg, func(qctx context.Context) {
				exact[i].value, exact[i].err = c.engagement.ReturningOnDay(qctx, f, day)
			})
			c.spawn(ctx, &wg, func(qctx context.Context) {
				interval[i].value, interval[i].err = c.engagement.ReturningWithinInterval(qctx, f, afterDay, day)
			})
		} else {
			c.spawn(ctx, &wg, func(qctx context.Context) {
				exact[i].value, exact[i].err = c.engagement.FeatureReturningOnDay(qctx, f, category, day)
			})
			c.spawn(ctx, &wg, func(qctx context.Context) {
				interval[i].value, interval[i].err = c.engagement.FeatureReturningWithinInterval(qctx, f, category, afterDay, day)
			})
		}
	}
	wg.Wait()

	denominator := unwrapCount(c.logger, "registered_user_count", registered)
	report := analytics.RetentionReport{
		ExactDay: make([]analytics.RetentionRow, 0, len(days)),
		Interval: make([]analytics.RetentionRow, 0, len(days)),
	}
	for i, day := range days {
		exactCount := unwrapCount(c.logger, "returning_on_day", exact[i])
		intervalCount := unwrapCount(c.logger, "returning_within_interval", interval[i])
		report.ExactDay = append(report.ExactDay, analytics.RetentionRow{
			Day:            day,
			ReturningUsers: exactCount,
			RetentionRate:  analytics.RetentionRate(exactCount, denominator),
		})
		report.Interval = append(report.Interval, analytics.RetentionRow{
			Day:            day,
			ReturningUsers: intervalCount,
			RetentionRate:  analytics.RetentionRate(intervalCount, denominator),
		})
	}
	return report
}

// CalculateFeatureEngagement runs one feature category's engagement phase.
func (c *EngagementCalculator) CalculateFeatureEngagement(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory) analytics.FeatureEngagement {
	var (
		access   queryResult[[]analytics.DateCount]
		rate     queryResult[[]analytics.CountRow]
		duration queryResult[float64]
		dropOff  queryResult[[]analytics.CountRow]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { access.value, access.err = c.engagement.FeatureAccessByDay(qctx, f, category) })
	c.spawn(ctx, &wg, func(qctx context.Context) { rate.value, rate.err = c.engagement.FeatureEngagementRate(qctx, f, category) })
	c.spawn(ctx, &wg, func(qctx context.Context) {
		duration.value, duration.err = c.engagement.FeatureAvgUsageMinutes(qctx, f, category)
	})
	c.spawn(ctx, &wg, func(qctx context.Context) {
		dropOff.value, dropOff.err = c.engagement.FeatureDropOffPoints(qctx, f, category, c.topN)
	})
	retention := c.retentionReport(ctx, f, category)
	wg.Wait()

	name := string(category)
	return analytics.FeatureEngagement{
		Category:        category,
		AccessByDay:     unwrapRows(c.logger, name+"_access_by_day", access),
		EngagementRate:  unwrapRows(c.logger, name+"_engagement_rate", rate),
		Retention:       retention,
		AvgUsageMinutes: unwrapFloat(c.logger, name+"_avg_usage_minutes", duration),
		DropOffPoints:   unwrapRows(c.logger, name+"_drop_off_points", dropOff),
	}
}

func (c *EngagementCalculator) calcMedication(ctx context.Context, f analytics.Filter) *analytics.MedicationMatrix {
	var adherence queryResult[[]analytics.CountRow]
	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) {
		adherence.value, adherence.err = c.care.MedicationAdherenceCounts(qctx, f)
	})
	wg.Wait()

	rows := unwrapRows(c.logger, "medication_adherence", adherence)
	return &analytics.MedicationMatrix{
		Taken:      countByLabel(rows, "taken"),
		Missed:     countByLabel(rows, "missed"),
		Unanswered: countByLabel(rows, "unanswered"),
	}
}

func (c *EngagementCalculator) calcHealthJourney(ctx context.Context, f analytics.Filter) *analytics.HealthJourneyMatrix {
	var (
		total      queryResult[int64]
		completed  queryResult[int64]
		byPlan     queryResult[[]analytics.CountRow]
		byPlanDone queryResult[[]analytics.CountRow]
		byUser     queryResult[[]analytics.CountRow]
		byUserDone queryResult[[]analytics.CountRow]
		byCategory queryResult[[]analytics.CountRow]
		byCatDone  queryResult[[]analytics.CountRow]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { total.value, total.err = c.care.HealthJourneyTotalTasks(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { completed.value, completed.err = c.care.HealthJourneyCompletedTasks(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byPlan.value, byPlan.err = c.care.HealthJourneyTasksByCarePlan(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byPlanDone.value, byPlanDone.err = c.care.HealthJourneyCompletedByCarePlan(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byUser.value, byUser.err = c.care.HealthJourneyTasksByUser(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byUserDone.value, byUserDone.err = c.care.HealthJourneyCompletedByUser(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byCategory.value, byCategory.err = c.care.HealthJourneyTasksByCategory(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byCatDone.value, byCatDone.err = c.care.HealthJourneyCompletedByCategory(qctx, f) })
	wg.Wait()

	return &analytics.HealthJourneyMatrix{
		TotalTasks:     unwrapCount(c.logger, "health_journey_total", total),
		CompletedTasks: unwrapCount(c.logger, "health_journey_completed", completed),
		ByCarePlan: mergeCompletion(
			unwrapRows(c.logger, "health_journey_by_care_plan", byPlan),
			unwrapRows(c.logger, "health_journey_completed_by_care_plan", byPlanDone)),
		ByUser: mergeCompletion(
			unwrapRows(c.logger, "health_journey_by_user", byUser),
			unwrapRows(c.logger, "health_journey_completed_by_user", byUserDone)),
		ByCategory: mergeCompletion(
			unwrapRows(c.logger, "health_journey_by_category", byCategory),
			unwrapRows(c.logger, "health_journey_completed_by_category", byCatDone)),
	}
}

func (c *EngagementCalculator) calcPatientTasks(ctx context.Context, f analytics.Filter) *analytics.PatientTaskMatrix {
	var (
		total      queryResult[int64]
		completed  queryResult[int64]
		byCategory queryResult[[]analytics.CountRow]
		byCatDone  queryResult[[]analytics.CountRow]
		byQuarter  queryResult[[]analytics.CountRow]
		byQtrDone  queryResult[[]analytics.CountRow]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { total.value, total.err = c.care.PatientTotalTasks(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { completed.value, completed.err = c.care.PatientCompletedTasks(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byCategory.value, byCategory.err = c.care.PatientTasksByCategory(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byCatDone.value, byCatDone.err = c.care.PatientCompletedByCategory(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byQuarter.value, byQuarter.err = c.care.PatientTasksByQuarter(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { byQtrDone.value, byQtrDone.err = c.care.PatientCompletedByQuarter(qctx, f) })
	wg.Wait()

	return &analytics.PatientTaskMatrix{
		TotalTasks:     unwrapCount(c.logger, "patient_tasks_total", total),
		CompletedTasks: unwrapCount(c.logger, "patient_tasks_completed", completed),
		ByCategory: mergeCompletion(
			unwrapRows(c.logger, "patient_tasks_by_category", byCategory),
			unwrapRows(c.logger, "patient_tasks_completed_by_category", byCatDone)),
		ByQuarter: mergeCompletion(
			unwrapRows(c.logger, "patient_tasks_by_quarter", byQuarter),
			unwrapRows(c.logger, "patient_tasks_completed_by_quarter", byQtrDone)),
	}
}

func (c *EngagementCalculator) calcVitals(ctx context.Context, f analytics.Filter) *analytics.VitalsMatrix {
	var byType queryResult[[]analytics.VitalsRow]
	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { byType.value, byType.err = c.care.VitalsEntryCounts(qctx, f) })
	wg.Wait()

	rows := unwrapRows(c.logger, "vitals_entry_counts", byType)
	matrix := &analytics.VitalsMatrix{ByType: rows}
	for _, row := range rows {
		matrix.ManualEntries += row.Manual
		matrix.DeviceEntries += row.Device
	}
	return matrix
}

func (c *EngagementCalculator) calcAssessments(ctx context.Context, f analytics.Filter) *analytics.AssessmentMatrix {
	var (
		custom    queryResult[int64]
		carePlan  queryResult[int64]
		responses queryResult[[]analytics.AssessmentResponse]
		options   queryResult[[]analytics.AssessmentOption]
	)

	var wg sync.WaitGroup
	c.spawn(ctx, &wg, func(qctx context.Context) { custom.value, custom.err = c.care.CustomAssessmentsCompleted(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { carePlan.value, carePlan.err = c.care.CarePlanAssessmentsCompleted(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { responses.value, responses.err = c.care.AssessmentResponses(qctx, f) })
	c.spawn(ctx, &wg, func(qctx context.Context) { options.value, options.err = c.care.AssessmentOptions(qctx) })
	wg.Wait()

	return &analytics.AssessmentMatrix{
		CustomCompleted:   unwrapCount(c.logger, "custom_assessments_completed", custom),
		CarePlanCompleted: unwrapCount(c.logger, "care_plan_assessments_completed", carePlan),
		Responses: resolveResponses(
			unwrapRows(c.logger, "assessment_responses", responses),
			unwrapRows(c.logger, "assessment_options", options)),
	}
}

// countByLabel picks one labeled count out of a group-by result, defaulting
// to 0 when the label is absent.
func countByLabel(rows []analytics.CountRow, label string) int64 {
	for _, row := range rows {
		if row.Label == label {
			return row.Count
		}
	}
	return 0
}

// mergeCompletion joins task totals with completed counts by group label;
// groups with no completions default to 0.
func mergeCompletion(totals, completed []analytics.CountRow) []analytics.CompletionRow {
	done := make(map[string]int64, len(completed))
	for _, row := range completed {
		done[row.Label] = row.Count
	}
	out := make([]analytics.CompletionRow, 0, len(totals))
	for _, row := range totals {
		out = append(out, analytics.CompletionRow{
			Label:     row.Label,
			Total:     row.Count,
			Completed: done[row.Label],
		})
	}
	return out
}
