package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// Role ids outside this range are treated as absent and replaced with the
// default role.
const (
	minRoleID = 0
	maxRoleID = 20
)

// TenantNameUnspecified labels runs that aggregate across all tenants.
const TenantNameUnspecified = "unspecified"

// FilterService resolves a possibly-partial analytics filter into a complete,
// bounded one. Directory lookups are best-effort: a failed lookup never makes
// normalization fail.
type FilterService struct {
	directory       analytics.DirectoryRepository
	lookbackDays    int
	defaultRoleName string
	logger          *zap.Logger
	now             func() time.Time
}

// NewFilterService creates a new filter service
func NewFilterService(directory analytics.DirectoryRepository, lookbackDays int, defaultRoleName string, logger *zap.Logger) *FilterService {
	return &FilterService{
		directory:       directory,
		lookbackDays:    lookbackDays,
		defaultRoleName: defaultRoleName,
		logger:          logger,
		now:             time.Now,
	}
}

// Normalize fills every defaultable field of the filter. A nil input yields
// the full-default filter: no tenant, default role, lookback window ending
// today. The only error case is an explicitly supplied start date after the
// end date.
func (s *FilterService) Normalize(ctx context.Context, f *analytics.Filter) (analytics.Filter, error) {
	var out analytics.Filter
	if f != nil {
		out = *f
	}

	today := s.now().Truncate(24 * time.Hour)
	if out.StartDate.IsZero() {
		out.StartDate = today.AddDate(0, 0, -s.lookbackDays)
	}
	if out.EndDate.IsZero() {
		out.EndDate = today
	}
	if out.StartDate.After(out.EndDate) {
		return analytics.Filter{}, analytics.ErrInvalidDateRange
	}

	if out.RoleID == nil || *out.RoleID < minRoleID || *out.RoleID > maxRoleID {
		out.RoleID = nil
		role, err := s.directory.GetRoleByName(ctx, s.defaultRoleName)
		if err != nil {
			s.logger.Warn("default role lookup failed",
				zap.String("role", s.defaultRoleName),
				zap.Error(err))
		} else {
			id := role.ID
			out.RoleID = &id
		}
	}

	if out.TenantID != nil {
		tenant, err := s.directory.GetTenant(ctx, *out.TenantID)
		if err != nil {
			// Lookup miss keeps whatever name was passed in.
			s.logger.Warn("tenant lookup failed",
				zap.String("tenant_id", out.TenantID.String()),
				zap.Error(err))
		} else {
			out.TenantName = tenant.Name
			out.TenantCode = tenant.Code
		}
	}
	if out.TenantName == "" {
		out.TenantName = TenantNameUnspecified
	}

	return out, nil
}
