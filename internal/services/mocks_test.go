package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/carepulse/engage/internal/domain/analytics"
)

type mockDirectoryRepository struct {
	mock.Mock
}

func (m *mockDirectoryRepository) GetTenant(ctx context.Context, id uuid.UUID) (*analytics.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Tenant), args.Error(1)
}

func (m *mockDirectoryRepository) GetRoleByName(ctx context.Context, name string) (*analytics.Role, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Role), args.Error(1)
}

func (m *mockDirectoryRepository) ListTenants(ctx context.Context) ([]analytics.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Tenant), args.Error(1)
}

type mockAnalysisRepository struct {
	mock.Mock
}

func (m *mockAnalysisRepository) Insert(ctx context.Context, record *analytics.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockAnalysisRepository) GetByCode(ctx context.Context, code string) (*analytics.Record, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.Record), args.Error(1)
}

func (m *mockAnalysisRepository) CountCodesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	args := m.Called(ctx, prefix)
	return args.Get(0).(int64), args.Error(1)
}

type mockReportGenerator struct {
	mock.Mock
}

func (m *mockReportGenerator) Generate(ctx context.Context, code string, doc *analytics.MetricsDocument) map[string]string {
	args := m.Called(ctx, code, doc)
	if args.Get(0) == nil {
		return map[string]string{}
	}
	return args.Get(0).(map[string]string)
}
