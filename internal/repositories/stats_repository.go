package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// StatsRepository implements analytics.StatsRepository with PostgreSQL.
// All queries are reads over the users / user_profiles / roles relations,
// bounded by the filter's registration-date window.
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository creates a new PostgreSQL stats repository
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// TotalUsers counts users registered inside the filter window.
func (r *StatsRepository) TotalUsers(ctx context.Context, f analytics.Filter) (int64, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM users u WHERE %s`, clause)
	return queryCount(ctx, r.db, query, args)
}

// TotalPatients counts registered users holding the Patient role.
func (r *StatsRepository) TotalPatients(ctx context.Context, f analytics.Filter) (int64, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = 'Patient' AND %s`, clause)
	return queryCount(ctx, r.db, query, args)
}

// ActivePatients counts patients that are currently active and not
// deregistered.
func (r *StatsRepository) ActivePatients(ctx context.Context, f analytics.Filter) (int64, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = 'Patient'
		  AND u.is_active
		  AND u.deregistered_at IS NULL
		  AND %s`, clause)
	return queryCount(ctx, r.db, query, args)
}

// UsersByRole groups registered users by role name.
func (r *StatsRepository) UsersByRole(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT r.name, COUNT(*)
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE %s
		GROUP BY r.name
		ORDER BY COUNT(*) DESC`, clause)
	return queryCountRows(ctx, r.db, query, args)
}

// AgeGroups buckets patients into the fixed age ranges; missing birth dates
// fall into Unknown.
func (r *StatsRepository) AgeGroups(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	clause, args := userScope(f)
	bucket := ageBucketCase("DATE_PART('year', AGE(p.birth_date))::int")
	query := fmt.Sprintf(`
		SELECT %s AS age_group, COUNT(*)
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE %s
		GROUP BY age_group
		ORDER BY age_group`, bucket, clause)
	return queryCountRows(ctx, r.db, query, args)
}

func (r *StatsRepository) profileBreakdown(ctx context.Context, f analytics.Filter, column string) ([]analytics.CountRow, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(p.%s, ''), 'Unknown'), COUNT(*)
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE %s
		GROUP BY 1
		ORDER BY COUNT(*) DESC`, column, clause)
	return queryCountRows(ctx, r.db, query, args)
}

// GenderBreakdown groups users by reported gender.
func (r *StatsRepository) GenderBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.profileBreakdown(ctx, f, "gender")
}

// EthnicityBreakdown groups users by reported ethnicity.
func (r *StatsRepository) EthnicityBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.profileBreakdown(ctx, f, "ethnicity")
}

// RaceBreakdown groups users by reported race.
func (r *StatsRepository) RaceBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.profileBreakdown(ctx, f, "race")
}

// HealthSystemBreakdown groups users by their health system.
func (r *StatsRepository) HealthSystemBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.profileBreakdown(ctx, f, "health_system")
}

// HospitalBreakdown groups users by their hospital.
func (r *StatsRepository) HospitalBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	return r.profileBreakdown(ctx, f, "hospital")
}

// CaregiverBreakdown groups users by caregiver status.
func (r *StatsRepository) CaregiverBreakdown(ctx context.Context, f analytics.Filter) ([]analytics.CountRow, error) {
	clause, args := userScope(f)
	query := fmt.Sprintf(`
		SELECT CASE
			WHEN p.has_caregiver IS NULL THEN 'Unknown'
			WHEN p.has_caregiver THEN 'Yes'
			ELSE 'No'
		END, COUNT(*)
		FROM users u
		LEFT JOIN user_profiles p ON p.user_id = u.id
		WHERE %s
		GROUP BY 1
		ORDER BY COUNT(*) DESC`, clause)
	return queryCountRows(ctx, r.db, query, args)
}
