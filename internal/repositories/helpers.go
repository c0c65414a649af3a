package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// scope builds the shared predicate every metric query carries: the inclusive
// date-range bound on tsCol, plus tenant and role binds only when present on
// the filter. Column names are compile-time constants; only values travel as
// bind parameters. The returned args slice can be extended by the caller with
// further $n placeholders.
func scope(f analytics.Filter, tsCol, tenantCol, roleCol string) (string, []any) {
	// EndDate is an inclusive date bound over timestamp columns.
	args := []any{f.StartDate, f.EndDate.AddDate(0, 0, 1)}
	clause := fmt.Sprintf("%s >= $1 AND %s < $2", tsCol, tsCol)
	if f.TenantID != nil {
		args = append(args, *f.TenantID)
		clause += fmt.Sprintf(" AND %s = $%d", tenantCol, len(args))
	}
	if f.RoleID != nil && roleCol != "" {
		args = append(args, *f.RoleID)
		clause += fmt.Sprintf(" AND %s = $%d", roleCol, len(args))
	}
	return clause, args
}

// userScope scopes queries over the users table by registration date.
func userScope(f analytics.Filter) (string, []any) {
	return scope(f, "u.registered_at", "u.tenant_id", "u.role_id")
}

// eventScope scopes queries over the events table joined to users.
func eventScope(f analytics.Filter) (string, []any) {
	return scope(f, "e.occurred_at", "u.tenant_id", "u.role_id")
}

func queryCount(ctx context.Context, db *pgxpool.Pool, sql string, args []any) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func queryFloat(ctx context.Context, db *pgxpool.Pool, sql string, args []any) (float64, error) {
	var v float64
	if err := db.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func queryCountRows(ctx context.Context, db *pgxpool.Pool, sql string, args []any) ([]analytics.CountRow, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.CountRow{}
	for rows.Next() {
		var r analytics.CountRow
		if err := rows.Scan(&r.Label, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryDateCounts(ctx context.Context, db *pgxpool.Pool, sql string, args []any) ([]analytics.DateCount, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.DateCount{}
	for rows.Next() {
		var r analytics.DateCount
		if err := rows.Scan(&r.Date, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryMonthlyCounts(ctx context.Context, db *pgxpool.Pool, sql string, args []any) ([]analytics.MonthlyCount, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []analytics.MonthlyCount{}
	for rows.Next() {
		var r analytics.MonthlyCount
		if err := rows.Scan(&r.Month, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ageBucketCase renders the fixed age-bucket boundaries as a SQL CASE over an
// age expression, so SQL grouping and the Go AgeBucket helper can never drift.
func ageBucketCase(ageExpr string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, bound := range analytics.AgeBucketBounds {
		fmt.Fprintf(&b, " WHEN %s BETWEEN %d AND %d THEN '%s'", ageExpr, bound.Min, bound.Max, bound.Label)
	}
	fmt.Fprintf(&b, " ELSE '%s' END", analytics.AgeBucketUnknown)
	return b.String()
}
