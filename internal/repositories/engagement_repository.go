package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// Screen visits are tracked as one fixed event category/name pair, with the
// screen identified by the event subject.
const (
	screenEventCategory = "navigation"
	screenEventName     = "screen_view"
	loginEventPrefix    = "login"
)

// EngagementRepository implements analytics.EngagementRepository with
// PostgreSQL. Activity queries run over the events relation joined to users
// so tenant and role predicates apply uniformly.
type EngagementRepository struct {
	db *pgxpool.Pool
}

// NewEngagementRepository creates a new PostgreSQL engagement repository
func NewEngagementRepository(db *pgxpool.Pool) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// RegistrationsByMonth counts registrations per calendar month.
func (r *EngagementRepository) RegistrationsByMonth(ctx context.Context, f analytics.Filter) ([]analytics.MonthlyCount, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT TO_CHAR(DATE_TRUNC('month', u.registered_at), 'YYYY-MM'), COUNT(*)
		FROM users u
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, clause)
	return queryMonthlyCounts(ctx, r.db, query, args)
}

// DeregistrationsByMonth counts deregistrations per calendar month.
func (r *EngagementRepository) DeregistrationsByMonth(ctx context.Context, f analytics.Filter) ([]analytics.MonthlyCount, error) {
	clause, args := scope(f, "u.deregistered_at", "u.tenant_id", "u.role_id")
	query := fmt.Sprintf(`
		SELECT TO_CHAR(DATE_TRUNC('month', u.deregistered_at), 'YYYY-MM'), COUNT(*)
		FROM users u
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, clause)
	return queryMonthlyCounts(ctx, r.db, query, args)
}

// ActiveAtMonthEnd counts users registered on or before each month-end in the
// window and not yet deregistered at that point.
func (r *EngagementRepository) ActiveAtMonthEnd(ctx context.Context, f analytics.Filter) ([]analytics.MonthlyCount, error) {
	args := []any{f.StartDate, f.EndDate}
	extra := ""
	if f.TenantID != nil {
		args = append(args, *f.TenantID)
		extra += fmt.Sprintf(" AND u.tenant_id = $%d", len(args))
	}
	if f.RoleID != nil {
		args = append(args, *f.RoleID)
		extra += fmt.Sprintf(" AND u.role_id = $%d", len(args))
	}
	query := fmt.Sprintf(`
		WITH month_ends AS (
			SELECT (DATE_TRUNC('month', m) + INTERVAL '1 month' - INTERVAL '1 day')::date AS month_end
			FROM GENERATE_SERIES(DATE_TRUNC('month', $1::timestamptz), DATE_TRUNC('month', $2::timestamptz), INTERVAL '1 month') AS m
		)
		SELECT TO_CHAR(me.month_end, 'YYYY-MM'), COUNT(u.id)
		FROM month_ends me
		LEFT JOIN users u
			ON u.registered_at::date <= me.month_end
			AND (u.deregistered_at IS NULL OR u.deregistered_at::date > me.month_end)%s
		GROUP BY me.month_end
		ORDER BY me.month_end`, extra)
	return queryMonthlyCounts(ctx, r.db, query, args)
}

// DailyActiveUsers counts distinct active users per calendar day.
func (r *EngagementRepository) DailyActiveUsers(ctx context.Context, f analytics.Filter) ([]analytics.DateCount, error) {
	clause, args := eventScope(f)
	query := fmt.Sprintf(`
		SELECT TO_CHAR(e.occurred_at::date, 'YYYY-MM-DD'), COUNT(DISTINCT e.user_id)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, clause)
	return queryDateCounts(ctx, r.db, query, args)
}

// WeeklyActiveUsers counts distinct active users per week, keyed by the week's
// start date.
func (r *EngagementRepository) WeeklyActiveUsers(ctx context.Context, f analytics.Filter) ([]analytics.DateCount, error) {
	clause, args := eventScope(f)
	query := fmt.Sprintf(`
		SELECT TO_CHAR(DATE_TRUNC('week', e.occurred_at)::date, 'YYYY-MM-DD'), COUNT(DISTINCT e.user_id)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, clause)
	return queryDateCounts(ctx, r.db, query, args)
}

// MonthlyActiveUsers counts distinct active users per calendar month.
func (r *EngagementRepository) MonthlyActiveUsers(ctx context.Context, f analytics.Filter) ([]analytics.MonthlyCount, error) {
	clause, args := eventScope(f)
	query := fmt.Sprintf(`
		SELECT TO_CHAR(DATE_TRUNC('month', e.occurred_at), 'YYYY-MM'), COUNT(DISTINCT e.user_id)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, clause)
	return queryMonthlyCounts(ctx, r.db, query, args)
}

// AverageSessionMinutes averages max-minus-min event timestamps per user per
// day, in minutes. A session is one user's events within a calendar day.
// Returns 0 when no sessions fall inside the window.
func (r *EngagementRepository) AverageSessionMinutes(ctx context.Context, f analytics.Filter) (float64, error) {
	clause, args := eventScope(f)
	query := fmt.Sprintf(`
		SELECT COALESCE(AVG(session_minutes), 0)
		FROM (
			SELECT EXTRACT(EPOCH FROM MAX(e.occurred_at) - MIN(e.occurred_at)) / 60 AS session_minutes
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s
			GROUP BY e.user_id, e.occurred_at::date
		) sessions`, clause)
	return queryFloat(ctx, r.db, query, args)
}

// LoginFrequency counts login events per month, matching events whose name
// carries the login prefix.
func (r *EngagementRepository) LoginFrequency(ctx context.Context, f analytics.Filter) ([]analytics.MonthlyCount, error) {
	clause, args := eventScope(f)
	args = append(args, loginEventPrefix+"%")
	query := fmt.Sprintf(`
		SELECT TO_CHAR(DATE_TRUNC('month', e.occurred_at), 'YYYY-MM'), COUNT(*)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s AND e.name LIKE $%d
		GROUP BY 1
		ORDER BY 1`, clause, len(args))
	return queryMonthlyCounts(ctx, r.db, query, args)
}

func (r *EngagementRepository) topItemsByMonth(ctx context.Context, f analytics.Filter, itemExpr, extraCond string, extraArgs []any, n int) ([]analytics.MonthlyTopItem, error) {
	clause, args := eventScope(f)
	cond := ""
	for _, a := range extraArgs {
		args = append(args, a)
		// extraCond carries one %d verb per extra argument, in order.
	}
	if extraCond != "" {
		placeholders := make([]any, len(extraArgs))
		for i := range extraArgs {
			placeholders[i] = len(args) - len(extraArgs) + i + 1
		}
		cond = " AND " + fmt.Sprintf(extraCond, placeholders...)
	}
	args = append(args, n)
	query := fmt.Sprintf(`
		SELECT month, item, cnt FROM (
			SELECT TO_CHAR(DATE_TRUNC('month', e.occurred_at), 'YYYY-MM') AS month,
			       %s AS item,
			       COUNT(*) AS cnt,
			       ROW_NUMBER() OVER (
			           PARTITION BY DATE_TRUNC('month', e.occurred_at)
			           ORDER BY COUNT(*) DESC
			       ) AS rank
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s%s
			GROUP BY 1, 2
		) ranked
		WHERE rank <= $%d
		ORDER BY month, cnt DESC`, itemExpr, clause, cond, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.MonthlyTopItem{}
	for rows.Next() {
		var item analytics.MonthlyTopItem
		if err := rows.Scan(&item.Month, &item.Name, &item.Count); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// TopFeatures ranks the most-used feature categories per month.
func (r *EngagementRepository) TopFeatures(ctx context.Context, f analytics.Filter, n int) ([]analytics.MonthlyTopItem, error) {
	return r.topItemsByMonth(ctx, f, "e.category", "", nil, n)
}

// TopScreens ranks the most-visited screens per month.
func (r *EngagementRepository) TopScreens(ctx context.Context, f analytics.Filter, n int) ([]analytics.MonthlyTopItem, error) {
	return r.topItemsByMonth(ctx, f, "e.subject",
		"e.category = $%d AND e.name = $%d",
		[]any{screenEventCategory, screenEventName}, n)
}

// RegisteredUserCount is the retention denominator: users registered inside
// the window.
func (r *EngagementRepository) RegisteredUserCount(ctx context.Context, f analytics.Filter) (int64, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM users u WHERE %s`, clause)
	return queryCount(ctx, r.db, query, args)
}

func (r *EngagementRepository) returning(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory, afterDay, day int) (int64, error) {
	clause, args := userScope(f)
	catCond := ""
	if category != "" {
		args = append(args, string(category))
		catCond = fmt.Sprintf(" AND e.category = $%d", len(args))
	}
	args = append(args, afterDay)
	lower := len(args)
	args = append(args, day)
	upper := len(args)
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT u.id)
		FROM users u
		JOIN events e ON e.user_id = u.id
		WHERE %s%s
		  AND e.occurred_at::date > u.registered_at::date + $%d
		  AND e.occurred_at::date <= u.registered_at::date + $%d`,
		clause, catCond, lower, upper)
	return queryCount(ctx, r.db, query, args)
}

// ReturningOnDay counts users active exactly day N after registration.
func (r *EngagementRepository) ReturningOnDay(ctx context.Context, f analytics.Filter, day int) (int64, error) {
	return r.returning(ctx, f, "", day-1, day)
}

// ReturningWithinInterval counts users active within (afterDay, day] after
// registration.
func (r *EngagementRepository) ReturningWithinInterval(ctx context.Context, f analytics.Filter, afterDay, day int) (int64, error) {
	return r.returning(ctx, f, "", afterDay, day)
}

// StickinessByMonth computes average-daily-active over monthly-active as a
// percentage, per month.
func (r *EngagementRepository) StickinessByMonth(ctx context.Context, f analytics.Filter) ([]analytics.StickinessRow, error) {
	clause, args := eventScope(f)
	query := fmt.Sprintf(`
		WITH daily AS (
			SELECT DATE_TRUNC('month', e.occurred_at) AS month,
			       e.occurred_at::date AS day,
			       COUNT(DISTINCT e.user_id) AS dau
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s
			GROUP BY 1, 2
		),
		monthly AS (
			SELECT DATE_TRUNC('month', e.occurred_at) AS month,
			       COUNT(DISTINCT e.user_id) AS mau
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s
			GROUP BY 1
		)
		SELECT TO_CHAR(m.month, 'YYYY-MM'),
		       CASE WHEN m.mau = 0 THEN 0
		            ELSE ROUND((AVG(d.dau) / m.mau * 100)::numeric, 2)
		       END
		FROM monthly m
		JOIN daily d ON d.month = m.month
		GROUP BY m.month, m.mau
		ORDER BY m.month`, clause, clause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.StickinessRow{}
	for rows.Next() {
		var row analytics.StickinessRow
		if err := rows.Scan(&row.Month, &row.Percent); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FeatureAccessByDay counts a category's events per calendar day.
func (r *EngagementRepository) FeatureAccessByDay(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory) ([]analytics.DateCount, error) {
	clause, args := eventScope(f)
	args = append(args, string(category))
	query := fmt.Sprintf(`
		SELECT TO_CHAR(e.occurred_at::date, 'YYYY-MM-DD'), COUNT(*)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s AND e.category = $%d
		GROUP BY 1
		ORDER BY 1`, clause, len(args))
	return queryDateCounts(ctx, r.db, query, args)
}

// FeatureEngagementRate reports per-user event counts for a category.
func (r *EngagementRepository) FeatureEngagementRate(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory) ([]analytics.CountRow, error) {
	clause, args := eventScope(f)
	args = append(args, string(category))
	query := fmt.Sprintf(`
		SELECT e.user_id::text, COUNT(*)
		FROM events e
		JOIN users u ON u.id = e.user_id
		WHERE %s AND e.category = $%d
		GROUP BY e.user_id
		ORDER BY COUNT(*) DESC`, clause, len(args))
	return queryCountRows(ctx, r.db, query, args)
}

// FeatureReturningOnDay is the exact-day retention variant scoped to one
// category.
func (r *EngagementRepository) FeatureReturningOnDay(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory, day int) (int64, error) {
	return r.returning(ctx, f, category, day-1, day)
}

// FeatureReturningWithinInterval is the interval retention variant scoped to
// one category.
func (r *EngagementRepository) FeatureReturningWithinInterval(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory, afterDay, day int) (int64, error) {
	return r.returning(ctx, f, category, afterDay, day)
}

// FeatureAvgUsageMinutes averages per-user per-day usage spans for one
// category, in minutes.
func (r *EngagementRepository) FeatureAvgUsageMinutes(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory) (float64, error) {
	clause, args := eventScope(f)
	args = append(args, string(category))
	query := fmt.Sprintf(`
		SELECT COALESCE(AVG(usage_minutes), 0)
		FROM (
			SELECT EXTRACT(EPOCH FROM MAX(e.occurred_at) - MIN(e.occurred_at)) / 60 AS usage_minutes
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s AND e.category = $%d
			GROUP BY e.user_id, e.occurred_at::date
		) spans`, clause, len(args))
	return queryFloat(ctx, r.db, query, args)
}

// FeatureDropOffPoints ranks the last events users fire in a category before
// going inactive.
func (r *EngagementRepository) FeatureDropOffPoints(ctx context.Context, f analytics.Filter, category analytics.FeatureCategory, n int) ([]analytics.CountRow, error) {
	clause, args := eventScope(f)
	args = append(args, string(category))
	catIdx := len(args)
	args = append(args, n)
	query := fmt.Sprintf(`
		SELECT name, COUNT(*)
		FROM (
			SELECT DISTINCT ON (e.user_id) e.user_id, e.name
			FROM events e
			JOIN users u ON u.id = e.user_id
			WHERE %s AND e.category = $%d
			ORDER BY e.user_id, e.occurred_at DESC
		) last_events
		GROUP BY name
		ORDER BY COUNT(*) DESC
		LIMIT $%d`, clause, catIdx, len(args))
	return queryCountRows(ctx, r.db, query, args)
}
