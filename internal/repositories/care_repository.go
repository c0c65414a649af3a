package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// Care task kinds as stored on the care_tasks relation.
const (
	taskKindJourney = "journey"
	taskKindPatient = "patient"
)

// CareRepository implements analytics.CareRepository with PostgreSQL. It
// covers medication logs, care tasks, vitals entries, and assessments.
type CareRepository struct {
	db *pgxpool.Pool
}

// NewCareRepository creates a new PostgreSQL care repository
func NewCareRepository(db *pgxpool.Pool) *CareRepository {
	return &CareRepository{db: db}
}

// MedicationAdherenceCounts groups medication log entries by outcome
// (taken / missed / unanswered).
func (r *CareRepository) MedicationAdherenceCounts(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	clause, args := scope(f, "m.logged_at", "u.tenant_id", "u.role_id")
	query := fmt.Sprintf(`
		SELECT m.status, COUNT(*)
		FROM medication_logs m
		JOIN users u ON u.id = m.user_id
		WHERE %s
		GROUP BY m.status`, clause)
	return queryCountRows(ctx, r.db, query, args)
}

func (r *CareRepository) taskCount(ctx context.Context, f analytics.Filter, kind string, completedOnly bool) (int64, error) {
	clause, args := scope(f, "t.due_at", "u.tenant_id", "u.role_id")
	args = append(args, kind)
	cond := fmt.Sprintf(" AND t.kind = $%d", len(args))
	if completedOnly {
		cond += " AND t.completed"
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM care_tasks t
		JOIN users u ON u.id = t.user_id
		WHERE %s%s`, clause, cond)
	return queryCount(ctx, r.db, query, args)
}

func (r *CareRepository) taskCountsBy(ctx context.Context, f analytics.Filter, kind, groupExpr string, completedOnly bool) ([]analytics.CountRow, error) {
	clause, args := scope(f, "t.due_at", "u.tenant_id", "u.role_id")
	args = append(args, kind)
	cond := fmt.Sprintf(" AND t.kind = $%d", len(args))
	if completedOnly {
		cond += " AND t.completed"
	}
	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(%s, ''), 'Unknown'), COUNT(*)
		FROM care_tasks t
		JOIN users u ON u.id = t.user_id
		WHERE %s%s
		GROUP BY 1
		ORDER BY 1`, groupExpr, clause, cond)
	return queryCountRows(ctx, r.db, query, args)
}

// HealthJourneyTotalTasks counts health-journey tasks due in the window.
func (r *CareRepository) HealthJourneyTotalTasks(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.taskCount(ctx, f, taskKindJourney, false)
}

// HealthJourneyCompletedTasks counts completed health-journey tasks.
func (r *CareRepository) HealthJourneyCompletedTasks(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.taskCount(ctx, f, taskKindJourney, true)
}

// HealthJourneyTasksByCarePlan groups health-journey tasks by care plan.
func (r *CareRepository) HealthJourneyTasksByCarePlan(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.care_plan", false)
}

// HealthJourneyCompletedByCarePlan groups completed health-journey tasks by
// care plan.
func (r *CareRepository) HealthJourneyCompletedByCarePlan(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.care_plan", true)
}

// HealthJourneyTasksByUser groups health-journey tasks by user.
func (r *CareRepository) HealthJourneyTasksByUser(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.user_id::text", false)
}

// HealthJourneyCompletedByUser groups completed health-journey tasks by user.
func (r *CareRepository) HealthJourneyCompletedByUser(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.user_id::text", true)
}

// HealthJourneyTasksByCategory groups health-journey tasks by category.
func (r *CareRepository) HealthJourneyTasksByCategory(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.category", false)
}

// HealthJourneyCompletedByCategory groups completed health-journey tasks by
// category.
func (r *CareRepository) HealthJourneyCompletedByCategory(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindJourney, "t.category", true)
}

// PatientTotalTasks counts patient tasks due in the window.
func (r *CareRepository) PatientTotalTasks(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.taskCount(ctx, f, taskKindPatient, false)
}

// PatientCompletedTasks counts completed patient tasks.
func (r *CareRepository) PatientCompletedTasks(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.taskCount(ctx, f, taskKindPatient, true)
}

// PatientTasksByCategory groups patient tasks by category.
func (r *CareRepository) PatientTasksByCategory(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindPatient, "t.category", false)
}

// PatientCompletedByCategory groups completed patient tasks by category.
func (r *CareRepository) PatientCompletedByCategory(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindPatient, "t.category", true)
}

// PatientTasksByQuarter groups patient tasks by calendar quarter.
func (r *CareRepository) PatientTasksByQuarter(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindPatient, "TO_CHAR(t.due_at, 'YYYY-\"Q\"Q')", false)
}

// PatientCompletedByQuarter groups completed patient tasks by quarter.
func (r *CareRepository) PatientCompletedByQuarter(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.taskCountsBy(ctx, f, taskKindPatient, "TO_CHAR(t.due_at, 'YYYY-\"Q\"Q')", true)
}

// VitalsEntryCounts splits vitals entry counts per vital type by entry source
// (manual vs device).
func (r *CareRepository) VitalsEntryCounts(ctx context.Context, f analytics.Filter) ([]analytics.VitalsRow, error) {
	clause, args := scope(f, "v.recorded_at", "u.tenant_id", "u.role_id")
	query := fmt.Sprintf(`
		SELECT v.vital_type,
		       COUNT(*) FILTER (WHERE v.source = 'manual'),
		       COUNT(*) FILTER (WHERE v.source = 'device')
		FROM vitals_entries v
		JOIN users u ON u.id = v.user_id
		WHERE %s
		GROUP BY v.vital_type
		ORDER BY v.vital_type`, clause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.VitalsRow{}
	for rows.Next() {
		var row analytics.VitalsRow
		if err := rows.Scan(&row.VitalType, &row.Manual, &row.Device); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *CareRepository) assessmentsCompleted(ctx context.Context, f analytics.Filter, carePlanScoped bool) (int64, error) {
	clause, args := scope(f, "a.completed_at", "u.tenant_id", "u.role_id")
	planCond := " AND a.care_plan IS NULL"
	if carePlanScoped {
		planCond = " AND a.care_plan IS NOT NULL"
	}
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT (a.user_id, a.assessment))
		FROM assessment_responses a
		JOIN users u ON u.id = a.user_id
		WHERE %s%s`, clause, planCond)
	return queryCount(ctx, r.db, query, args)
}

// CustomAssessmentsCompleted counts completed assessments not tied to a care
// plan.
func (r *CareRepository) CustomAssessmentsCompleted(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.assessmentsCompleted(ctx, f, false)
}

// CarePlanAssessmentsCompleted counts completed care-plan assessments.
func (r *CareRepository) CarePlanAssessmentsCompleted(ctx context.Context, f analytics.Filter) (int64, error) {
	return r.assessmentsCompleted(ctx, f, true)
}

// AssessmentResponses returns the per-question response distribution. The
// DisplayText slot is left empty; the calculator resolves it against the
// option lookup.
func (r *CareRepository) AssessmentResponses(ctx context.Context, f analytics.Filter) ([]analytics.AssessmentResponse, error) {
	clause, args := scope(f, "a.completed_at", "u.tenant_id", "u.role_id")
	query := fmt.Sprintf(`
		SELECT a.assessment, a.node_id, a.template, a.node_title, a.response_type, a.response, COUNT(*)
		FROM assessment_responses a
		JOIN users u ON u.id = a.user_id
		WHERE %s
		GROUP BY 1, 2, 3, 4, 5, 6
		ORDER BY 1, 4`, clause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.AssessmentResponse{}
	for rows.Next() {
		var resp analytics.AssessmentResponse
		if err := rows.Scan(&resp.Assessment, &resp.NodeID, &resp.Template, &resp.NodeTitle, &resp.Type, &resp.RawResponse, &resp.Count); err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// AssessmentOptions loads the multiple-choice option lookup table.
func (r *CareRepository) AssessmentOptions(ctx context.Context) ([]analytics.AssessmentOption, error) {
	query := `
		SELECT node_id, template, node_title, sequence, option_text
		FROM assessment_options
		ORDER BY node_id, sequence`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.AssessmentOption{}
	for rows.Next() {
		var opt analytics.AssessmentOption
		if err := rows.Scan(&opt.NodeID, &opt.Template, &opt.NodeTitle, &opt.Sequence, &opt.Text); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}
