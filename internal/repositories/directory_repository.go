package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// DirectoryRepository implements analytics.DirectoryRepository with
// PostgreSQL.
type DirectoryRepository struct {
	db *pgxpool.Pool
}

// NewDirectoryRepository creates a new PostgreSQL directory repository
func NewDirectoryRepository(db *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetTenant retrieves a tenant by ID
func (r *DirectoryRepository) GetTenant(ctx context.Context, id uuid.UUID) (*analytics.Tenant, error) {
	query := `SELECT id, name, code FROM tenants WHERE id = $1`

	var t analytics.Tenant
	if err := r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Code); err != nil {
		if err == pgx.ErrNoRows {
			return nil, analytics.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// GetRoleByName retrieves a role by its display name
func (r *DirectoryRepository) GetRoleByName(ctx context.Context, name string) (*analytics.Role, error) {
	query := `SELECT id, name FROM roles WHERE name = $1`

	var role analytics.Role
	if err := r.db.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name); err != nil {
		if err == pgx.ErrNoRows {
			return nil, analytics.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListTenants returns every tenant in the directory
func (r *DirectoryRepository) ListTenants(ctx context.Context) ([]analytics.Tenant, error) {
	query := `SELECT id, name, code FROM tenants ORDER BY code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	out := []analytics.Tenant{}
	for rows.Next() {
		var t analytics.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Code); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
