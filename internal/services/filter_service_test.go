package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

func newTestFilterService(directory *mockDirectoryRepository) *FilterService {
	svc := NewFilterService(directory, 900, "Patient", zap.NewNop())
	svc.now = func() time.Time {
		return time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	}
	return svc
}

func TestNormalizeNilFilterYieldsDefaults(t *testing.T) {
	directory := new(mockDirectoryRepository)
	directory.On("GetRoleByName", mock.Anything, "Patient").
		Return(&analytics.Role{ID: 3, Name: "Patient"}, nil)

	svc := newTestFilterService(directory)
	out, err := svc.Normalize(context.Background(), nil)
	require.NoError(t, err)

	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, today, out.EndDate)
	assert.Equal(t, today.AddDate(0, 0, -900), out.StartDate)
	assert.Equal(t, TenantNameUnspecified, out.TenantName)
	require.NotNil(t, out.RoleID)
	assert.Equal(t, 3, *out.RoleID)
	assert.Nil(t, out.TenantID)
}

func TestNormalizeKeepsExplicitDates(t *testing.T) {
	directory := new(mockDirectoryRepository)
	svc := newTestFilterService(directory)

	roleID := 5
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	out, err := svc.Normalize(context.Background(), &analytics.Filter{
		RoleID:    &roleID,
		StartDate: start,
		EndDate:   end,
	})
	require.NoError(t, err)

	assert.Equal(t, start, out.StartDate)
	assert.Equal(t, end, out.EndDate)
	require.NotNil(t, out.RoleID)
	assert.Equal(t, 5, *out.RoleID)
	directory.AssertNotCalled(t, "GetRoleByName", mock.Anything, mock.Anything)
}

func TestNormalizeRejectsInvertedDateRange(t *testing.T) {
	directory := new(mockDirectoryRepository)
	svc := newTestFilterService(directory)

	_, err := svc.Normalize(context.Background(), &analytics.Filter{
		StartDate: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, analytics.ErrInvalidDateRange)
}

func TestNormalizeReplacesOutOfRangeRole(t *testing.T) {
	directory := new(mockDirectoryRepository)
	directory.On("GetRoleByName", mock.Anything, "Patient").
		Return(&analytics.Role{ID: 3, Name: "Patient"}, nil)

	svc := newTestFilterService(directory)

	for _, bad := range []int{-1, 21, 99} {
		bad := bad
		out, err := svc.Normalize(context.Background(), &analytics.Filter{RoleID: &bad})
		require.NoError(t, err)
		require.NotNil(t, out.RoleID)
		assert.Equal(t, 3, *out.RoleID, "role id %d should fall back to default", bad)
	}
}

func TestNormalizeRoleLookupFailureLeavesRoleUnset(t *testing.T) {
	directory := new(mockDirectoryRepository)
	directory.On("GetRoleByName", mock.Anything, "Patient").
		Return(nil, analytics.ErrRoleNotFound)

	svc := newTestFilterService(directory)
	out, err := svc.Normalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out.RoleID)
}

func TestNormalizeResolvesTenant(t *testing.T) {
	tenantID := uuid.New()
	directory := new(mockDirectoryRepository)
	directory.On("GetRoleByName", mock.Anything, "Patient").
		Return(&analytics.Role{ID: 3, Name: "Patient"}, nil)
	directory.On("GetTenant", mock.Anything, tenantID).
		Return(&analytics.Tenant{ID: tenantID, Name: "Mercy Health", Code: "mercy"}, nil)

	svc := newTestFilterService(directory)
	out, err := svc.Normalize(context.Background(), &analytics.Filter{TenantID: &tenantID})
	require.NoError(t, err)

	assert.Equal(t, "Mercy Health", out.TenantName)
	assert.Equal(t, "mercy", out.TenantCode)
}

func TestNormalizeTenantLookupFailureKeepsPassedName(t *testing.T) {
	tenantID := uuid.New()
	directory := new(mockDirectoryRepository)
	directory.On("GetRoleByName", mock.Anything, "Patient").
		Return(&analytics.Role{ID: 3, Name: "Patient"}, nil)
	directory.On("GetTenant", mock.Anything, tenantID).
		Return(nil, analytics.ErrTenantNotFound)

	svc := newTestFilterService(directory)
	out, err := svc.Normalize(context.Background(), &analytics.Filter{
		TenantID:   &tenantID,
		TenantName: "as-supplied",
	})
	require.NoError(t, err)
	assert.Equal(t, "as-supplied", out.TenantName)
}
